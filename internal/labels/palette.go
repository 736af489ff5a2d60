package labels

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Space names a label space for colouring: the common space or a dataset's
// native space.
type Space struct {
	common  bool
	dataset Dataset
}

// CommonSpace is the shared six-class space.
var CommonSpace = Space{common: true}

// NativeSpace is the label space of dataset d.
func NativeSpace(d Dataset) Space {
	return Space{dataset: d}
}

// ParseSpace accepts "common" or any dataset name.
func ParseSpace(name string) (Space, error) {
	if name == "common" {
		return CommonSpace, nil
	}
	d, err := ParseDataset(name)
	if err != nil {
		return Space{}, err
	}
	return NativeSpace(d), nil
}

func (s Space) String() string {
	if s.common {
		return "common"
	}
	return s.dataset.String()
}

// NumClasses is the number of labels in the space.
func (s Space) NumClasses() int {
	if s.common {
		return CommonNumClasses
	}
	return s.dataset.NumClasses()
}

var palettes = map[string][]colorful.Color{
	"common": hexPalette(
		"#ffffff", // unlabeled
		"#8b5a2b", // ground
		"#ff0000", // building
		"#00a000", // vegetation
		"#ffff00", // vehicle
		"#0000ff", // street furniture
	),
	"semantic": hexPalette(
		"#ffffff", // unlabeled
		"#0000ff", // man-made terrain
		"#800000", // natural terrain
		"#ff00ff", // high vegetation
		"#008000", // low vegetation
		"#ff0000", // buildings
		"#000080", // hard scape
		"#008080", // scanning artifact
		"#ffff00", // cars
	),
	"npm": hexPalette(
		"#ffffff", // unclassified
		"#8b5a2b", // ground
		"#ff0000", // building
		"#ff8c00", // pole
		"#9400d3", // bollard
		"#00ced1", // trash can
		"#0000ff", // barrier
		"#ff69b4", // pedestrian
		"#ffff00", // car
		"#00a000", // natural
	),
}

func hexPalette(hex ...string) []colorful.Color {
	out := make([]colorful.Color, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		out[i] = c
	}
	return out
}

// Color returns the RGB triple assigned to label in space s.
func Color(label int, s Space) ([3]uint8, error) {
	p := palettes[s.String()]
	if label < 0 || label >= len(p) {
		return [3]uint8{}, fmt.Errorf("%w: %d not in [0, %d) for %v palette", ErrLabelOutOfRange, label, len(p), s)
	}
	r, g, b := p[label].RGB255()
	return [3]uint8{r, g, b}, nil
}

// ColorsFor maps every label to its palette colour.
func ColorsFor(labels []int, s Space) ([][3]uint8, error) {
	out := make([][3]uint8, len(labels))
	for i, l := range labels {
		c, err := Color(l, s)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
