package pointnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FarthestPointSample returns m row indices of xyz (n×3) chosen by iterative
// farthest-point sampling, seeded at row 0.
func FarthestPointSample(xyz *mat.Dense, m int) ([]int, error) {
	n, c := xyz.Dims()
	if c != 3 {
		return nil, fmt.Errorf("farthest point sample: xyz has %d columns: %w", c, ErrShapeMismatch)
	}
	if m > n {
		return nil, fmt.Errorf("farthest point sample: want %d of %d points: %w", m, n, ErrTooFewPoints)
	}
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	idx := make([]int, m)
	farthest := 0
	for i := 0; i < m; i++ {
		idx[i] = farthest
		ctr := xyz.RawRowView(farthest)
		for j := 0; j < n; j++ {
			if d := sqDist(xyz.RawRowView(j), ctr); d < dist[j] {
				dist[j] = d
			}
		}
		farthest = floats.MaxIdx(dist)
	}
	return idx, nil
}

// BallQuery returns, for each row of centers, exactly k indices of xyz whose
// points lie within radius of the center. Points are taken in index order;
// short groups are padded with their first member.
func BallQuery(radius float64, k int, xyz, centers *mat.Dense) [][]int {
	n, _ := xyz.Dims()
	m, _ := centers.Dims()
	r2 := radius * radius
	groups := make([][]int, m)
	for c := 0; c < m; c++ {
		ctr := centers.RawRowView(c)
		g := make([]int, 0, k)
		nearest, best := 0, math.Inf(1)
		for j := 0; j < n && len(g) < k; j++ {
			d := sqDist(xyz.RawRowView(j), ctr)
			if d <= r2 {
				g = append(g, j)
			}
			if d < best {
				nearest, best = j, d
			}
		}
		if len(g) == 0 {
			g = append(g, nearest)
		}
		for len(g) < k {
			g = append(g, g[0])
		}
		groups[c] = g
	}
	return groups
}

// Interpolation holds inverse-squared-distance weights from fine points to
// their nearest coarse points.
type Interpolation struct {
	K      int
	Index  []int     // len(fine)*K
	Weight []float64 // len(fine)*K, each group sums to 1
}

// ThreeNearest computes interpolation weights from the three nearest coarse
// points (or all of them when fewer than three exist).
func ThreeNearest(fine, coarse *mat.Dense) Interpolation {
	n, _ := fine.Dims()
	s, _ := coarse.Dims()
	k := 3
	if s < k {
		k = s
	}
	in := Interpolation{K: k, Index: make([]int, n*k), Weight: make([]float64, n*k)}
	bestD := make([]float64, k)
	bestI := make([]int, k)
	for i := 0; i < n; i++ {
		p := fine.RawRowView(i)
		for t := range bestD {
			bestD[t] = math.Inf(1)
			bestI[t] = 0
		}
		for j := 0; j < s; j++ {
			d := sqDist(p, coarse.RawRowView(j))
			if d >= bestD[k-1] {
				continue
			}
			t := k - 1
			for t > 0 && bestD[t-1] > d {
				bestD[t] = bestD[t-1]
				bestI[t] = bestI[t-1]
				t--
			}
			bestD[t] = d
			bestI[t] = j
		}
		w := in.Weight[i*k : (i+1)*k]
		for t := 0; t < k; t++ {
			in.Index[i*k+t] = bestI[t]
			w[t] = 1 / (bestD[t] + 1e-8)
		}
		floats.Scale(1/floats.Sum(w), w)
	}
	return in
}

// Apply interpolates the coarse feature rows onto the fine points.
func (in Interpolation) Apply(feats *mat.Dense) *mat.Dense {
	_, d := feats.Dims()
	n := len(in.Index) / in.K
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for t := 0; t < in.K; t++ {
			floats.AddScaled(row, in.Weight[i*in.K+t], feats.RawRowView(in.Index[i*in.K+t]))
		}
	}
	return out
}

func sqDist(a, b []float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// gatherRows copies the listed rows of src into a new matrix.
func gatherRows(src *mat.Dense, idx []int) *mat.Dense {
	_, c := src.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, j := range idx {
		copy(out.RawRowView(i), src.RawRowView(j))
	}
	return out
}
