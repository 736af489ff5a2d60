package pointcloud

// Point is a position in the scene frame (metres).
type Point struct {
	X, Y, Z float64
}

// Dist2 is the squared Euclidean distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

// Cloud is a point set with optional per-point colours.
type Cloud struct {
	Points []Point
	Colors [][3]uint8 // nil when the source has no colour
}

// Len is the number of points.
func (c *Cloud) Len() int {
	return len(c.Points)
}

// HasColor reports whether every point carries a colour.
func (c *Cloud) HasColor() bool {
	return c.Colors != nil && len(c.Colors) == len(c.Points)
}
