package spatial

// Plane is an oriented half-space in velocity space. The feasible side is
// { v : Normal . (Point - v) <= 0 }, i.e. Point and the Normal's side of
// the plane; points behind it are infeasible. Normal is expected to be unit length, except when a
// numerical degeneracy upstream produced a NaN component — the plane is
// still appended as-is, downstream solvers tolerate it.
type Plane struct {
	Point  Vec3
	Normal Vec3
}

// SignedDistance returns Normal . (Point - v), positive when v violates
// the plane's feasible half-space.
func (p Plane) SignedDistance(v Vec3) float32 {
	return p.Normal.Dot(p.Point.Sub(v))
}
