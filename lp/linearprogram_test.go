package lp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/orca3d/lp"
	"github.com/pthm-cable/orca3d/spatial"
)

func TestSolve3DNoConstraints(t *testing.T) {
	opt := spatial.Vec3{X: 1, Y: 0, Z: 0}
	result, failedPlane := lp.Solve3D(nil, 2, opt, false)

	require.Equal(t, 0, failedPlane)
	require.InDelta(t, opt.X, result.X, 1e-5)
	require.InDelta(t, opt.Y, result.Y, 1e-5)
	require.InDelta(t, opt.Z, result.Z, 1e-5)
}

func TestSolve3DClampsToSphere(t *testing.T) {
	opt := spatial.Vec3{X: 10, Y: 0, Z: 0}
	result, failedPlane := lp.Solve3D(nil, 1, opt, false)

	require.Equal(t, 0, failedPlane)
	require.InDelta(t, 1.0, result.Length(), 1e-5)
}

func TestSolve3DSingleHalfSpaceProjectsOntoPlane(t *testing.T) {
	// Plane through the origin with normal +X: a plane's feasible side is
	// where normal . (point - v) <= 0, i.e. v.X >= point.X = 0. An
	// optVelocity on the infeasible side (x < 0) must be projected onto
	// the plane.
	planes := []spatial.Plane{{Point: spatial.Vec3{}, Normal: spatial.Vec3{X: 1}}}
	opt := spatial.Vec3{X: -5, Y: 0, Z: 0}

	result, failedPlane := lp.Solve3D(planes, 10, opt, false)

	require.Equal(t, 1, failedPlane, "expected success (index == len(planes))")
	require.InDelta(t, 0.0, result.X, 1e-4)
	require.InDelta(t, 0.0, result.Y, 1e-4)
	require.InDelta(t, 0.0, result.Z, 1e-4)
}

func TestSolve3DInfeasibleReturnsFailingPlaneAndFallsBackToLP4(t *testing.T) {
	// Two disjoint half-spaces: "v.X >= 2" and "v.X <= -2" share no point,
	// so LP3 must fail.
	planes := []spatial.Plane{
		{Point: spatial.Vec3{X: 2}, Normal: spatial.Vec3{X: 1}},
		{Point: spatial.Vec3{X: -2}, Normal: spatial.Vec3{X: -1}},
	}
	opt := spatial.Vec3{}

	result, failedPlane := lp.Solve3D(planes, 1, opt, false)
	require.Less(t, failedPlane, len(planes))

	relaxed := lp.Solve4D(planes, failedPlane, 1, result)
	require.LessOrEqual(t, relaxed.Length(), float32(1.0001))
}

func TestSolve4DRespectsSpeedLimit(t *testing.T) {
	// Eight planes from symmetric "surrounding" neighbours all requiring
	// v to point away from the origin in overlapping directions: this is
	// the classic LP3-infeasible, LP4-relaxed scenario (spec scenario S6).
	dirs := []spatial.Vec3{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
		{X: 0.7071, Y: 0.7071}, {X: -0.7071, Y: -0.7071},
	}
	planes := make([]spatial.Plane, len(dirs))
	for i, d := range dirs {
		planes[i] = spatial.Plane{Point: d.Scale(0.5), Normal: d}
	}

	opt := spatial.Vec3{}
	result, failedPlane := lp.Solve3D(planes, 1, opt, false)
	if failedPlane < len(planes) {
		result = lp.Solve4D(planes, failedPlane, 1, result)
	}

	require.LessOrEqual(t, result.Length(), float32(1.0001))
}
