package engine

import "math"

// Distance is the Euclidean distance between two cells.
func Distance(a, b Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Visible reports whether target lies within radius of observer. There is
// no occlusion; vision is a plain radius check evaluated on demand.
func Visible(observer, target Position, radius float64) bool {
	return Distance(observer, target) <= radius
}
