// Package lp implements the nested linear programs that sit at the
// algorithmic heart of ORCA: LP1 solves a 1D program on a line, LP2 a 2D
// program on a plane-bounded disk, LP3 the full 3D program under a
// spherical speed constraint and a set of half-space constraints, and
// LP4 a relaxed fallback used when LP3 is infeasible.
package lp

import (
	"math"

	"github.com/pthm-cable/orca3d/spatial"
)

// Epsilon is the tolerance used to detect near-parallel lines/planes and
// near-zero directions.
const Epsilon = 1e-5

// line is a directed line used internally by LP1/LP2.
type line struct {
	point     spatial.Vec3
	direction spatial.Vec3
}

// intersectPlanes returns the line where plane a meets plane b (in that
// order: a plays the "earlier constraint" role, b the "current
// constraint" role), along with its unit direction. ok is false when a
// and b are (nearly) parallel.
func intersectPlanes(a, b spatial.Plane) (pt, dir spatial.Vec3, ok bool) {
	crossProduct := a.Normal.Cross(b.Normal)
	if crossProduct.LengthSq() <= Epsilon {
		return spatial.Vec3{}, spatial.Vec3{}, false
	}

	dir = crossProduct.Normalize()
	lineNormal := dir.Cross(b.Normal)
	pt = b.Point.Add(lineNormal.Scale(a.Point.Sub(b.Point).Dot(a.Normal) / lineNormal.Dot(a.Normal)))
	return pt, dir, true
}

// Solve3D minimises the distance from optVelocity (or, when directionOpt
// is set, maximises the projection onto optVelocity, which must then be
// of unit length) subject to |v| <= radius and every plane's half-space
// constraint, in plane order. On success it returns the full plane count
// and result holds the optimal velocity. On failure it returns the index
// of the first plane the 3D program could not satisfy, and result holds
// the last feasible value found before failure.
func Solve3D(planes []spatial.Plane, radius float32, optVelocity spatial.Vec3, directionOpt bool) (result spatial.Vec3, failedPlane int) {
	switch {
	case directionOpt:
		// Optimizing direction: optVelocity is of unit length already.
		result = optVelocity.Scale(radius)
	case optVelocity.LengthSq() > radius*radius:
		result = optVelocity.Normalize().Scale(radius)
	default:
		result = optVelocity
	}

	for i, p := range planes {
		if p.Normal.Dot(p.Point.Sub(result)) > 0 {
			prev := result
			newResult, ok := solve2D(planes, i, radius, optVelocity, directionOpt)
			if !ok {
				return prev, i
			}
			result = newResult
		}
	}

	return result, len(planes)
}

// solve2D restricts the 3D program to plane planeNo.
func solve2D(planes []spatial.Plane, planeNo int, radius float32, optVelocity spatial.Vec3, directionOpt bool) (spatial.Vec3, bool) {
	p := planes[planeNo]
	planeDist := p.Point.Dot(p.Normal)
	planeDistSq := planeDist * planeDist
	radiusSq := radius * radius

	if planeDistSq > radiusSq {
		return spatial.Vec3{}, false
	}

	planeRadiusSq := radiusSq - planeDistSq
	planeCenter := p.Normal.Scale(planeDist)

	var result spatial.Vec3
	if directionOpt {
		planeOptVelocity := optVelocity.Sub(p.Normal.Scale(optVelocity.Dot(p.Normal)))
		planeOptVelocityLengthSq := planeOptVelocity.LengthSq()

		if planeOptVelocityLengthSq <= Epsilon {
			result = planeCenter
		} else {
			result = planeCenter.Add(planeOptVelocity.Scale(sqrt32(planeRadiusSq / planeOptVelocityLengthSq)))
		}
	} else {
		result = optVelocity.Add(p.Normal.Scale(p.Point.Sub(optVelocity).Dot(p.Normal)))

		if result.LengthSq() > radiusSq {
			planeResult := result.Sub(planeCenter)
			planeResultLengthSq := planeResult.LengthSq()
			result = planeCenter.Add(planeResult.Scale(sqrt32(planeRadiusSq / planeResultLengthSq)))
		}
	}

	for i := 0; i < planeNo; i++ {
		pi := planes[i]
		if pi.Normal.Dot(pi.Point.Sub(result)) > 0 {
			point, dir, ok := intersectPlanes(pi, p)
			if !ok {
				// Plane i is (almost) parallel to plane planeNo and fully
				// invalidates it.
				return spatial.Vec3{}, false
			}
			ln := line{point: point, direction: dir}

			newResult, ok := solve1D(planes, i, ln, radius, optVelocity, directionOpt)
			if !ok {
				return spatial.Vec3{}, false
			}
			result = newResult
		}
	}

	return result, true
}

// solve1D intersects ln with the speed sphere, clips the resulting
// interval against every earlier plane, then picks the optimal point or
// direction within the surviving interval.
func solve1D(planes []spatial.Plane, planeNo int, ln line, radius float32, optVelocity spatial.Vec3, directionOpt bool) (spatial.Vec3, bool) {
	dotProduct := ln.point.Dot(ln.direction)
	discriminant := dotProduct*dotProduct + radius*radius - ln.point.LengthSq()

	if discriminant < 0 {
		return spatial.Vec3{}, false
	}

	sqrtDiscriminant := sqrt32(discriminant)
	tLeft := -dotProduct - sqrtDiscriminant
	tRight := -dotProduct + sqrtDiscriminant

	for i := 0; i < planeNo; i++ {
		pi := planes[i]
		numerator := pi.Point.Sub(ln.point).Dot(pi.Normal)
		denominator := ln.direction.Dot(pi.Normal)

		if denominator*denominator <= Epsilon {
			if numerator > 0 {
				return spatial.Vec3{}, false
			}
			continue
		}

		t := numerator / denominator
		if denominator >= 0 {
			tLeft = max32(tLeft, t)
		} else {
			tRight = min32(tRight, t)
		}

		if tLeft > tRight {
			return spatial.Vec3{}, false
		}
	}

	var t float32
	if directionOpt {
		if optVelocity.Dot(ln.direction) > 0 {
			t = tRight
		} else {
			t = tLeft
		}
	} else {
		t = ln.direction.Dot(optVelocity.Sub(ln.point))
		switch {
		case t < tLeft:
			t = tLeft
		case t > tRight:
			t = tRight
		}
	}

	return ln.point.Add(ln.direction.Scale(t)), true
}

// Solve4D is the relaxed fallback invoked when Solve3D fails at
// beginPlane. It progressively projects onto the most-violated plane,
// returning the velocity that minimises the maximum constraint
// violation under the speed-sphere relaxation.
func Solve4D(planes []spatial.Plane, beginPlane int, radius float32, result spatial.Vec3) spatial.Vec3 {
	var distance float32

	for i := beginPlane; i < len(planes); i++ {
		p := planes[i]
		if p.Normal.Dot(p.Point.Sub(result)) > distance {
			projPlanes := make([]spatial.Plane, 0, i)

			for j := 0; j < i; j++ {
				pj := planes[j]

				point, _, ok := intersectPlanes(pj, p)
				if !ok {
					if p.Normal.Dot(pj.Normal) > 0 {
						// Plane i and plane j are (almost) parallel and
						// point in the same direction: plane j is redundant.
						continue
					}
					// Parallel and opposite: straddle the midpoint.
					point = p.Point.Add(pj.Point).Scale(0.5)
				}

				projPlanes = append(projPlanes, spatial.Plane{
					Point:  point,
					Normal: pj.Normal.Sub(p.Normal).Normalize(),
				})
			}

			tempResult := result
			newResult, failedAt := Solve3D(projPlanes, radius, p.Normal, true)
			if failedAt < len(projPlanes) {
				// This should not happen; floating-point anomaly. Keep
				// the previous result and move on to the next plane.
				result = tempResult
			} else {
				result = newResult
			}

			distance = p.Normal.Dot(p.Point.Sub(result))
		}
	}

	return result
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
