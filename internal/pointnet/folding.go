package pointnet

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FoldingConfig sizes the folding decoder.
type FoldingConfig struct {
	GridSize   int     // points per grid side; output has GridSize² points
	GridExtent float64 // grid spans [-GridExtent, GridExtent] on both axes
	Hidden     int     // width of the two hidden layers of each fold
}

// NumPoints is the number of reconstructed points.
func (c FoldingConfig) NumPoints() int { return c.GridSize * c.GridSize }

// FoldingDecoder deforms a fixed 2D grid into 3D points in two folds, each
// conditioned on a global code vector.
type FoldingDecoder struct {
	cfg     FoldingConfig
	codeDim int
	grid    *mat.Dense
	fold1   [3]*Linear
	fold2   [3]*Linear
}

func newFoldingDecoder(cfg FoldingConfig, codeDim int, rng *rand.Rand) *FoldingDecoder {
	f := &FoldingDecoder{cfg: cfg, codeDim: codeDim, grid: meshGrid(cfg.GridSize, cfg.GridExtent)}
	h := cfg.Hidden
	f.fold1 = [3]*Linear{newLinear(codeDim+2, h, rng), newLinear(h, h, rng), newLinear(h, 3, rng)}
	f.fold2 = [3]*Linear{newLinear(codeDim+3, h, rng), newLinear(h, h, rng), newLinear(h, 3, rng)}
	return f
}

// meshGrid lays out size² points row-major over a square of half-width extent.
func meshGrid(size int, extent float64) *mat.Dense {
	axis := make([]float64, size)
	if size == 1 {
		axis[0] = 0
	} else {
		floats.Span(axis, -extent, extent)
	}
	g := mat.NewDense(size*size, 2, nil)
	for i, x := range axis {
		for j, y := range axis {
			row := g.RawRowView(i*size + j)
			row[0], row[1] = x, y
		}
	}
	return g
}

// Forward reconstructs GridSize² points from code.
func (f *FoldingDecoder) Forward(code []float64) (*mat.Dense, error) {
	if len(code) != f.codeDim {
		return nil, fmt.Errorf("folding: code width %d, want %d: %w", len(code), f.codeDim, ErrShapeMismatch)
	}
	first := f.fold(f.fold1, code, f.grid)
	return f.fold(f.fold2, code, first), nil
}

// fold runs one three-layer fold on [code | local] for every row of local.
// The code contribution to the first layer is shared by all rows, so it is
// computed once.
func (f *FoldingDecoder) fold(layers [3]*Linear, code []float64, local *mat.Dense) *mat.Dense {
	in := layers[0]
	n, lc := local.Dims()
	shared := mat.NewVecDense(in.Out, nil)
	shared.MulVec(in.W.Slice(0, f.codeDim, 0, in.Out).T(), mat.NewVecDense(f.codeDim, code))
	bias := shared.RawVector().Data
	floats.Add(bias, in.B)

	x := mat.NewDense(n, in.Out, nil)
	x.Mul(local, in.W.Slice(f.codeDim, f.codeDim+lc, 0, in.Out))
	addRowVector(x, bias)
	relu(x)
	x = layers[1].Forward(x)
	relu(x)
	return layers[2].Forward(x)
}

func (f *FoldingDecoder) register(prefix string, ps *paramSet) {
	for i, l := range f.fold1 {
		l.register(prefixf("%s.fold1.%d", prefix, i), ps)
	}
	for i, l := range f.fold2 {
		l.register(prefixf("%s.fold2.%d", prefix, i), ps)
	}
}
