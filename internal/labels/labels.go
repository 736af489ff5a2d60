package labels

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDataset is returned when a dataset or label-space name is not recognised.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrLabelOutOfRange is returned when a label is outside its label space.
	ErrLabelOutOfRange = errors.New("label out of range")
)

// Dataset identifies a source domain and therefore a native label space.
type Dataset int

const (
	// Semantic is the Semantic3D outdoor benchmark (9 classes including unlabeled).
	Semantic Dataset = iota
	// NPM is the Paris-Lille NPM3D benchmark (10 classes including unclassified).
	NPM
)

// Datasets lists every supported dataset in declaration order.
var Datasets = []Dataset{Semantic, NPM}

// ParseDataset maps a command-line dataset name to its Dataset.
func ParseDataset(name string) (Dataset, error) {
	switch name {
	case "semantic":
		return Semantic, nil
	case "npm":
		return NPM, nil
	default:
		return 0, fmt.Errorf("%w: %q (want semantic or npm)", ErrUnknownDataset, name)
	}
}

// String returns the command-line name, which is also used in output file names.
func (d Dataset) String() string {
	switch d {
	case Semantic:
		return "semantic"
	case NPM:
		return "npm"
	default:
		return fmt.Sprintf("Dataset(%d)", int(d))
	}
}

// NumClasses is the size of the dataset's native label space.
func (d Dataset) NumClasses() int {
	return len(d.ClassNames())
}

// ClassNames returns the native class names indexed by label.
func (d Dataset) ClassNames() []string {
	switch d {
	case Semantic:
		return semanticClassNames
	case NPM:
		return npmClassNames
	default:
		return nil
	}
}

var semanticClassNames = []string{
	"unlabeled",
	"man-made terrain",
	"natural terrain",
	"high vegetation",
	"low vegetation",
	"buildings",
	"hard scape",
	"scanning artifact",
	"cars",
}

var npmClassNames = []string{
	"unclassified",
	"ground",
	"building",
	"pole",
	"bollard",
	"trash can",
	"barrier",
	"pedestrian",
	"car",
	"natural",
}

// CommonNumClasses is the size of the shared label space.
const CommonNumClasses = 6

// Common label values.
const (
	CommonUnlabeled = iota
	CommonGround
	CommonBuilding
	CommonVegetation
	CommonVehicle
	CommonStreetFurniture
)

// CommonClassNames returns the shared class names indexed by label.
func CommonClassNames() []string {
	return []string{"unlabeled", "ground", "building", "vegetation", "vehicle", "street furniture"}
}

// toCommon is indexed by native label. Every native label has an entry.
var toCommon = map[Dataset][]int{
	Semantic: {
		CommonUnlabeled,       // unlabeled
		CommonGround,          // man-made terrain
		CommonGround,          // natural terrain
		CommonVegetation,      // high vegetation
		CommonVegetation,      // low vegetation
		CommonBuilding,        // buildings
		CommonStreetFurniture, // hard scape
		CommonUnlabeled,       // scanning artifact
		CommonVehicle,         // cars
	},
	NPM: {
		CommonUnlabeled,       // unclassified
		CommonGround,          // ground
		CommonBuilding,        // building
		CommonStreetFurniture, // pole
		CommonStreetFurniture, // bollard
		CommonStreetFurniture, // trash can
		CommonStreetFurniture, // barrier
		CommonUnlabeled,       // pedestrian
		CommonVehicle,         // car
		CommonVegetation,      // natural
	},
}

// CommonLabel maps one native label into the common space.
func CommonLabel(label int, d Dataset) (int, error) {
	table, ok := toCommon[d]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownDataset, d)
	}
	if label < 0 || label >= len(table) {
		return 0, fmt.Errorf("%w: %d not in [0, %d) for %v", ErrLabelOutOfRange, label, len(table), d)
	}
	return table[label], nil
}

// ToCommon maps native labels of dataset d into the common space. The mapping
// is total over [0, d.NumClasses()); any other value fails the whole call and
// nothing is returned.
func ToCommon(native []int, d Dataset) ([]int, error) {
	out := make([]int, len(native))
	for i, l := range native {
		c, err := CommonLabel(l, d)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
