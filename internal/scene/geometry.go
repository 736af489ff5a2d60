package scene

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pointsemantic/internal/pointcloud"
)

// GeometryDim is the number of geometry descriptor channels per point.
const GeometryDim = 3

// minGeometryNeighbors is the smallest neighbourhood with a usable covariance.
const minGeometryNeighbors = 3

// ComputeGeometry returns linearity, planarity and scattering for every
// point from the eigenvalues l1 >= l2 >= l3 of its neighbourhood covariance:
// (l1-l2)/l1, (l2-l3)/l1 and l3/l1. Points with fewer than three neighbours
// within radius, or a degenerate neighbourhood, get zeros.
func ComputeGeometry(points []pointcloud.Point, radius float64) [][GeometryDim]float64 {
	out := make([][GeometryDim]float64, len(points))
	index := pointcloud.NewGridIndex(points, radius)

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(points) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(points); start += chunk {
		end := min(start+chunk, len(points))
		wg.Go(func() {
			for i := start; i < end; i++ {
				out[i] = descriptor(points, index.RadiusQuery(points[i], radius))
			}
		})
	}
	wg.Wait()
	return out
}

func descriptor(points []pointcloud.Point, nbrs []int) [GeometryDim]float64 {
	var d [GeometryDim]float64
	if len(nbrs) < minGeometryNeighbors {
		return d
	}
	x := mat.NewDense(len(nbrs), 3, nil)
	for r, k := range nbrs {
		p := points[k]
		x.SetRow(r, []float64{p.X, p.Y, p.Z})
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, false) {
		return d
	}
	vals := eig.Values(nil) // ascending
	l1, l2, l3 := vals[2], vals[1], max(vals[0], 0)
	if l1 <= 1e-12 {
		return d
	}
	d[0] = (l1 - l2) / l1
	d[1] = (l2 - l3) / l1
	d[2] = l3 / l1
	return d
}
