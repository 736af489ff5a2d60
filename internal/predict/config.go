package predict

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/metrics"
)

var (
	// ErrNonFiniteOutput is returned when the network emits NaN or Inf.
	ErrNonFiniteOutput = errors.New("non-finite network output")
	// ErrOutputShape is returned when the network output does not match the batch.
	ErrOutputShape = errors.New("unexpected network output shape")
	// ErrUnknownModel is returned for unsupported model names.
	ErrUnknownModel = errors.New("unknown model name")
	// ErrInvalidConfig is returned for unusable driver settings.
	ErrInvalidConfig = errors.New("invalid prediction config")
)

// ModelName identifies a supported network variant. Both variants share the
// folding architecture; they differ only in how they were trained.
type ModelName int

const (
	PointSemanticFolding ModelName = iota
	PBCFolding
)

// ModelNames lists every supported model.
var ModelNames = []ModelName{PointSemanticFolding, PBCFolding}

// ParseModelName maps a command-line model name to a ModelName.
func ParseModelName(s string) (ModelName, error) {
	switch s {
	case "pointsemantic_folding":
		return PointSemanticFolding, nil
	case "PBC_folding":
		return PBCFolding, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
}

func (m ModelName) String() string {
	switch m {
	case PointSemanticFolding:
		return "pointsemantic_folding"
	case PBCFolding:
		return "PBC_folding"
	default:
		return fmt.Sprintf("ModelName(%d)", int(m))
	}
}

// Config holds the per-run driver settings.
type Config struct {
	Model      ModelName
	From       labels.Dataset // dataset the network was trained on
	To         labels.Dataset // dataset being predicted
	Split      string
	NumSamples int // samples drawn per scene
	NumPoint   int // points per sample
	BatchSize  int

	UseColor    bool
	UseGeometry bool

	Policy metrics.AbsentPolicy
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.NumSamples < 1:
		return fmt.Errorf("%w: num samples %d", ErrInvalidConfig, c.NumSamples)
	case c.NumPoint < 1:
		return fmt.Errorf("%w: num point %d", ErrInvalidConfig, c.NumPoint)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// Comparable reports whether native labels of both datasets can be compared.
func (c Config) Comparable() bool { return c.From == c.To }

// BatchSizes splits NumSamples into ceil(NumSamples/BatchSize) batches; only
// the last may be smaller.
func (c Config) BatchSizes() []int {
	n := (c.NumSamples + c.BatchSize - 1) / c.BatchSize
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = min(c.BatchSize, c.NumSamples-i*c.BatchSize)
	}
	return sizes
}
