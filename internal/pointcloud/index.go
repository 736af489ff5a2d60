package pointcloud

import "math"

// estimatedPointsPerCell is used for initial grid capacity estimation.
const estimatedPointsPerCell = 4

// GridIndex buckets points into square (x, y) cells so box and radius
// queries touch only nearby cells. Z is ignored for bucketing.
type GridIndex struct {
	CellSize float64
	Grid     map[int64][]int // cell ID → point indices
	points   []Point
}

// NewGridIndex builds an index over points. cellSize should be close to the
// typical query extent.
func NewGridIndex(points []Point, cellSize float64) *GridIndex {
	gi := &GridIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int, len(points)/estimatedPointsPerCell+1),
		points:   points,
	}
	for i, p := range points {
		id := cellID(gi.cellCoord(p.X), gi.cellCoord(p.Y))
		gi.Grid[id] = append(gi.Grid[id], i)
	}
	return gi
}

func (gi *GridIndex) cellCoord(v float64) int64 {
	return int64(math.Floor(v / gi.CellSize))
}

// cellID pairs two signed cell coordinates into one key: zigzag maps them to
// non-negative integers, then Szudzik's pairing function combines them.
func cellID(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// BoxQuery returns indices of points with |x-cx| <= halfX and |y-cy| <= halfY,
// in ascending index order within each cell, cells visited row by row.
func (gi *GridIndex) BoxQuery(cx, cy, halfX, halfY float64) []int {
	var out []int
	x0, x1 := gi.cellCoord(cx-halfX), gi.cellCoord(cx+halfX)
	y0, y1 := gi.cellCoord(cy-halfY), gi.cellCoord(cy+halfY)
	for gx := x0; gx <= x1; gx++ {
		for gy := y0; gy <= y1; gy++ {
			for _, idx := range gi.Grid[cellID(gx, gy)] {
				p := gi.points[idx]
				if math.Abs(p.X-cx) <= halfX && math.Abs(p.Y-cy) <= halfY {
					out = append(out, idx)
				}
			}
		}
	}
	return out
}

// RadiusQuery returns indices of all points within radius of q, using full
// 3D distance.
func (gi *GridIndex) RadiusQuery(q Point, radius float64) []int {
	var out []int
	r2 := radius * radius
	x0, x1 := gi.cellCoord(q.X-radius), gi.cellCoord(q.X+radius)
	y0, y1 := gi.cellCoord(q.Y-radius), gi.cellCoord(q.Y+radius)
	for gx := x0; gx <= x1; gx++ {
		for gy := y0; gy <= y1; gy++ {
			for _, idx := range gi.Grid[cellID(gx, gy)] {
				if gi.points[idx].Dist2(q) <= r2 {
					out = append(out, idx)
				}
			}
		}
	}
	return out
}
