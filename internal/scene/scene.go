package scene

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/banshee-data/pointsemantic/internal/pointcloud"
)

var (
	// ErrEmptyScene is returned for scenes without points.
	ErrEmptyScene = errors.New("empty scene")
	// ErrLabelCount is returned when labels and points differ in length.
	ErrLabelCount = errors.New("label count does not match point count")
	// ErrLabelOutOfRange is returned for ground-truth labels outside the dataset.
	ErrLabelOutOfRange = errors.New("ground-truth label out of range")
	// ErrNoColor is returned when colour input is requested from a colourless scene.
	ErrNoColor = errors.New("scene has no colour")
	// ErrInvalidOptions is returned for unusable sampling options.
	ErrInvalidOptions = errors.New("invalid scene options")
	// ErrInvalidSample is returned for non-positive batch or sample sizes.
	ErrInvalidSample = errors.New("invalid sample request")
	// ErrNonFinitePoint is returned for NaN or infinite coordinates, which
	// PCL writes for invalid points.
	ErrNonFinitePoint = errors.New("non-finite point coordinate")
	// ErrEmptyBox is returned when no scene point lies in a sampling box.
	ErrEmptyBox = errors.New("empty sampling box")
)

// Options controls scene loading and sampling.
type Options struct {
	BoxSizeX, BoxSizeY float64
	UseColor           bool
	UseGeometry        bool
	GeometryRadius     float64
	NumClasses         int // ground-truth labels must lie in [0, NumClasses); 0 skips the check
	Seed               int64
}

// Validate reports the first unusable option.
func (o Options) Validate() error {
	if o.BoxSizeX <= 0 || o.BoxSizeY <= 0 {
		return fmt.Errorf("%w: box size %vx%v", ErrInvalidOptions, o.BoxSizeX, o.BoxSizeY)
	}
	if o.UseGeometry && o.GeometryRadius <= 0 {
		return fmt.Errorf("%w: geometry radius %v", ErrInvalidOptions, o.GeometryRadius)
	}
	if o.NumClasses < 0 {
		return fmt.Errorf("%w: num classes %d", ErrInvalidOptions, o.NumClasses)
	}
	return nil
}

// AdditionDim is the number of feature columns a sample carries after x, y, z.
func (o Options) AdditionDim() int {
	d := 0
	if o.UseColor {
		d += 3
	}
	if o.UseGeometry {
		d += GeometryDim
	}
	return d
}

// Scene is one labelled point cloud. SampleBatch is safe for concurrent use.
type Scene struct {
	name     string
	points   []pointcloud.Point
	colors   [][3]uint8
	labels   []int
	geometry [][GeometryDim]float64
	index    *pointcloud.GridIndex
	opts     Options

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScene validates the cloud against its labels and prepares the spatial
// index and, when enabled, per-point geometry descriptors.
func NewScene(name string, cloud *pointcloud.Cloud, labels []int, opts Options) (*Scene, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if cloud.Len() == 0 {
		return nil, fmt.Errorf("scene %s: %w", name, ErrEmptyScene)
	}
	if len(labels) != cloud.Len() {
		return nil, fmt.Errorf("scene %s: %d labels for %d points: %w", name, len(labels), cloud.Len(), ErrLabelCount)
	}
	if opts.UseColor && !cloud.HasColor() {
		return nil, fmt.Errorf("scene %s: %w", name, ErrNoColor)
	}
	for i, p := range cloud.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return nil, fmt.Errorf("scene %s: point %d is (%v, %v, %v): %w", name, i, p.X, p.Y, p.Z, ErrNonFinitePoint)
		}
	}
	if opts.NumClasses > 0 {
		for i, l := range labels {
			if l < 0 || l >= opts.NumClasses {
				return nil, fmt.Errorf("scene %s: label %d at point %d: %w", name, l, i, ErrLabelOutOfRange)
			}
		}
	}

	s := &Scene{
		name:   name,
		points: cloud.Points,
		colors: cloud.Colors,
		labels: labels,
		opts:   opts,
		index:  pointcloud.NewGridIndex(cloud.Points, math.Min(opts.BoxSizeX, opts.BoxSizeY)/2),
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}
	if opts.UseGeometry {
		s.geometry = ComputeGeometry(cloud.Points, opts.GeometryRadius)
	}
	return s, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Name is the scene's file name without extension.
func (s *Scene) Name() string { return s.name }

// Len is the number of points in the scene.
func (s *Scene) Len() int { return len(s.points) }

// Options returns the options the scene was built with.
func (s *Scene) Options() Options { return s.opts }
