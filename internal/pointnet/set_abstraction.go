package pointnet

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SetAbstractionConfig describes one downsampling stage.
type SetAbstractionConfig struct {
	NumPoints  int     // centroids kept
	Radius     float64 // ball-query radius
	NumSamples int     // neighbours per centroid
	MLP        []int   // output widths of the shared pointwise MLP
	Dropout    float64 // attention-coefficient dropout (train only)
	Alpha      float64 // LeakyReLU slope of attention logits
}

// SetAbstraction samples centroids, groups their neighbourhoods and
// aggregates each group with single-head graph attention.
type SetAbstraction struct {
	cfg  SetAbstractionConfig
	mlp  *mlp
	attn struct {
		center   []float64
		neighbor []float64
	}
}

func newSetAbstraction(cfg SetAbstractionConfig, featDim int, rng *rand.Rand) *SetAbstraction {
	sa := &SetAbstraction{cfg: cfg, mlp: newMLP(3+featDim, cfg.MLP, rng)}
	d := sa.mlp.outDim()
	bound := 1 / math.Sqrt(float64(d))
	sa.attn.center = make([]float64, d)
	sa.attn.neighbor = make([]float64, d)
	for i := 0; i < d; i++ {
		sa.attn.center[i] = (rng.Float64()*2 - 1) * bound
		sa.attn.neighbor[i] = (rng.Float64()*2 - 1) * bound
	}
	return sa
}

// FeatDim is the input feature width, excluding coordinates.
func (sa *SetAbstraction) FeatDim() int { return sa.mlp.inDim() - 3 }

// OutDim is the output feature width.
func (sa *SetAbstraction) OutDim() int { return sa.mlp.outDim() }

// Forward returns the sampled centroid coordinates and their aggregated
// features. feats may be nil when the stage takes no features.
func (sa *SetAbstraction) Forward(xyz, feats *mat.Dense, mode Mode, rng *rand.Rand) (*mat.Dense, *mat.Dense, error) {
	n, _ := xyz.Dims()
	d := 0
	if feats != nil {
		var fn int
		fn, d = feats.Dims()
		if fn != n {
			return nil, nil, fmt.Errorf("set abstraction: %d coordinates, %d feature rows: %w", n, fn, ErrShapeMismatch)
		}
	}
	if d != sa.FeatDim() {
		return nil, nil, fmt.Errorf("set abstraction: feature width %d, want %d: %w", d, sa.FeatDim(), ErrShapeMismatch)
	}

	m, k := sa.cfg.NumPoints, sa.cfg.NumSamples
	centers, err := FarthestPointSample(xyz, m)
	if err != nil {
		return nil, nil, err
	}
	newXYZ := gatherRows(xyz, centers)
	groups := BallQuery(sa.cfg.Radius, k, xyz, newXYZ)

	// Rows [0, m*k) are neighbours grouped per centroid; rows [m*k, m*k+m)
	// are the centroids themselves with zero relative offset.
	grouped := mat.NewDense(m*k+m, 3+d, nil)
	for c := 0; c < m; c++ {
		ctr := newXYZ.RawRowView(c)
		for j, g := range groups[c] {
			row := grouped.RawRowView(c*k + j)
			p := xyz.RawRowView(g)
			row[0], row[1], row[2] = p[0]-ctr[0], p[1]-ctr[1], p[2]-ctr[2]
			if d > 0 {
				copy(row[3:], feats.RawRowView(g))
			}
		}
		if d > 0 {
			copy(grouped.RawRowView(m*k + c)[3:], feats.RawRowView(centers[c]))
		}
	}

	h := sa.mlp.Forward(grouped, mode)
	out := sa.aggregate(h, m, k, mode, rng)
	return newXYZ, out, nil
}

// aggregate computes per-centroid attention over its neighbours:
// e_j = LeakyReLU(a_c·h_c + a_n·h_j), α = softmax(e), out = Σ α_j h_j.
func (sa *SetAbstraction) aggregate(h *mat.Dense, m, k int, mode Mode, rng *rand.Rand) *mat.Dense {
	_, dOut := h.Dims()
	rows := m*k + m
	sc := mat.NewVecDense(rows, nil)
	sc.MulVec(h, mat.NewVecDense(dOut, sa.attn.center))
	sn := mat.NewVecDense(rows, nil)
	sn.MulVec(h, mat.NewVecDense(dOut, sa.attn.neighbor))

	drop := mode == Train && sa.cfg.Dropout > 0 && rng != nil
	out := mat.NewDense(m, dOut, nil)
	logits := make([]float64, k)
	for c := 0; c < m; c++ {
		self := sc.AtVec(m*k + c)
		for j := 0; j < k; j++ {
			logits[j] = leakyRelu(self+sn.AtVec(c*k+j), sa.cfg.Alpha)
		}
		floats.AddConst(-floats.LogSumExp(logits), logits)
		row := out.RawRowView(c)
		for j := 0; j < k; j++ {
			a := math.Exp(logits[j])
			if drop {
				if rng.Float64() < sa.cfg.Dropout {
					continue
				}
				a /= 1 - sa.cfg.Dropout
			}
			floats.AddScaled(row, a, h.RawRowView(c*k+j))
		}
	}
	return out
}

func (sa *SetAbstraction) register(prefix string, ps *paramSet) {
	sa.mlp.register(prefix+".mlp", ps)
	d := sa.OutDim()
	ps.add(prefix+".attn.center", []int{d}, sa.attn.center)
	ps.add(prefix+".attn.neighbor", []int{d}, sa.attn.neighbor)
}
