package pointnet

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// FeaturePropagation upsamples coarse features onto a finer point set by
// inverse-distance interpolation, optionally joined with skip features.
type FeaturePropagation struct {
	mlp *mlp
}

func newFeaturePropagation(in int, widths []int, rng *rand.Rand) *FeaturePropagation {
	return &FeaturePropagation{mlp: newMLP(in, widths, rng)}
}

// OutDim is the output feature width.
func (fp *FeaturePropagation) OutDim() int { return fp.mlp.outDim() }

// Forward interpolates coarseFeats from coarseXYZ onto fineXYZ, prepends the
// skip features if any and runs the stage MLP.
func (fp *FeaturePropagation) Forward(fineXYZ, coarseXYZ *mat.Dense, skip Skip, coarseFeats *mat.Dense, mode Mode) (*mat.Dense, error) {
	n, _ := fineXYZ.Dims()
	s, _ := coarseXYZ.Dims()
	cs, dc := coarseFeats.Dims()
	if cs != s {
		return nil, fmt.Errorf("feature propagation: %d coarse points, %d feature rows: %w", s, cs, ErrShapeMismatch)
	}
	if want := fp.mlp.inDim(); skip.Dim()+dc != want {
		return nil, fmt.Errorf("feature propagation: input width %d, want %d: %w", skip.Dim()+dc, want, ErrShapeMismatch)
	}

	interp := ThreeNearest(fineXYZ, coarseXYZ).Apply(coarseFeats)
	x := interp
	if f, ok := skip.Features(); ok {
		fn, ds := f.Dims()
		if fn != n {
			return nil, fmt.Errorf("feature propagation: %d fine points, %d skip rows: %w", n, fn, ErrShapeMismatch)
		}
		x = mat.NewDense(n, ds+dc, nil)
		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			copy(row, f.RawRowView(i))
			copy(row[ds:], interp.RawRowView(i))
		}
	}
	return fp.mlp.Forward(x, mode), nil
}

func (fp *FeaturePropagation) register(prefix string, ps *paramSet) {
	fp.mlp.register(prefix+".mlp", ps)
}
