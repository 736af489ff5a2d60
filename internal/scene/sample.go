package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Batch is a set of equally sized samples drawn from one scene. Every
// per-sample matrix has one row per sampled point.
type Batch struct {
	Centered []*mat.Dense // box-local coordinates
	Points   []*mat.Dense // scene coordinates
	Colors   []*mat.Dense // RGB in [0, 1]; nil when the scene has no colour
	Geometry []*mat.Dense // nil unless geometry is enabled
	Labels   [][]int      // ground truth
}

// Size is the number of samples.
func (b *Batch) Size() int { return len(b.Centered) }

// Input concatenates centred coordinates with the requested feature
// channels, colour before geometry.
func (b *Batch) Input(useColor, useGeometry bool) ([]*mat.Dense, error) {
	if useColor && b.Colors == nil {
		return nil, ErrNoColor
	}
	if useGeometry && b.Geometry == nil {
		return nil, fmt.Errorf("%w: geometry not computed", ErrInvalidOptions)
	}
	out := make([]*mat.Dense, b.Size())
	for i, c := range b.Centered {
		parts := []*mat.Dense{c}
		if useColor {
			parts = append(parts, b.Colors[i])
		}
		if useGeometry {
			parts = append(parts, b.Geometry[i])
		}
		out[i] = hstack(parts)
	}
	return out, nil
}

func hstack(parts []*mat.Dense) *mat.Dense {
	if len(parts) == 1 {
		return parts[0]
	}
	n, _ := parts[0].Dims()
	width := 0
	for _, p := range parts {
		_, c := p.Dims()
		width += c
	}
	out := mat.NewDense(n, width, nil)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		off := 0
		for _, p := range parts {
			off += copy(row[off:], p.RawRowView(i))
		}
	}
	return out
}

// SampleBatch draws batchSize samples of numPoints points each.
func (s *Scene) SampleBatch(batchSize, numPoints int) (*Batch, error) {
	if batchSize < 1 || numPoints < 1 {
		return nil, fmt.Errorf("%w: batch %d, points %d", ErrInvalidSample, batchSize, numPoints)
	}
	b := &Batch{
		Centered: make([]*mat.Dense, batchSize),
		Points:   make([]*mat.Dense, batchSize),
		Labels:   make([][]int, batchSize),
	}
	if s.colors != nil {
		b.Colors = make([]*mat.Dense, batchSize)
	}
	if s.geometry != nil {
		b.Geometry = make([]*mat.Dense, batchSize)
	}
	for i := 0; i < batchSize; i++ {
		idx, err := s.sampleIndices(numPoints)
		if err != nil {
			return nil, err
		}
		b.Points[i], b.Centered[i] = s.coordinates(idx)
		b.Labels[i] = make([]int, numPoints)
		for j, k := range idx {
			b.Labels[i][j] = s.labels[k]
		}
		if b.Colors != nil {
			c := mat.NewDense(numPoints, 3, nil)
			for j, k := range idx {
				row := c.RawRowView(j)
				for ch := 0; ch < 3; ch++ {
					row[ch] = float64(s.colors[k][ch]) / 255
				}
			}
			b.Colors[i] = c
		}
		if b.Geometry != nil {
			g := mat.NewDense(numPoints, GeometryDim, nil)
			for j, k := range idx {
				copy(g.RawRowView(j), s.geometry[k][:])
			}
			b.Geometry[i] = g
		}
	}
	return b, nil
}

// sampleIndices picks a random centre point and returns numPoints indices
// from the box around it: a uniform subset without replacement when the box
// holds enough points, otherwise every box point followed by uniform repeats.
func (s *Scene) sampleIndices(numPoints int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	center := s.points[s.rng.Intn(len(s.points))]
	box := s.index.BoxQuery(center.X, center.Y, s.opts.BoxSizeX/2, s.opts.BoxSizeY/2)
	if len(box) == 0 {
		return nil, fmt.Errorf("scene %s: box around (%v, %v): %w", s.name, center.X, center.Y, ErrEmptyBox)
	}

	out := make([]int, numPoints)
	if len(box) >= numPoints {
		for i := 0; i < numPoints; i++ {
			j := i + s.rng.Intn(len(box)-i)
			box[i], box[j] = box[j], box[i]
		}
		copy(out, box[:numPoints])
		return out, nil
	}
	n := copy(out, box)
	for i := n; i < numPoints; i++ {
		out[i] = box[s.rng.Intn(len(box))]
	}
	s.rng.Shuffle(numPoints, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// coordinates returns scene coordinates and box-local coordinates of idx.
// The box-local frame puts the x/y box centre, derived from the sample's
// minimum corner, at the origin and the lowest sampled point at z = 0.
func (s *Scene) coordinates(idx []int) (points, centered *mat.Dense) {
	n := len(idx)
	points = mat.NewDense(n, 3, nil)
	minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
	for j, k := range idx {
		p := s.points[k]
		row := points.RawRowView(j)
		row[0], row[1], row[2] = p.X, p.Y, p.Z
		minX, minY, minZ = math.Min(minX, p.X), math.Min(minY, p.Y), math.Min(minZ, p.Z)
	}
	shift := []float64{minX + s.opts.BoxSizeX/2, minY + s.opts.BoxSizeY/2, minZ}
	centered = mat.NewDense(n, 3, nil)
	for j := 0; j < n; j++ {
		src, dst := points.RawRowView(j), centered.RawRowView(j)
		for c := 0; c < 3; c++ {
			dst[c] = src[c] - shift[c]
		}
	}
	return points, centered
}
