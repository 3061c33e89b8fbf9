package pose

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
)

const epsilon = 1e-6

// almostEqual checks if two floats are equal within epsilon tolerance
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func assertVectorNear(t *testing.T, want, got r3.Vector, tol float64, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, tol, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, tol, msgAndArgs...)
}

func assertPoseNear(t *testing.T, want, got Pose, tol float64) {
	t.Helper()
	assert.Less(t, RotationDistance(want.Rotation, got.Rotation), tol, "rotation: want %v, got %v", want, got)
	assertVectorNear(t, want.Translation, got.Translation, tol, "translation: want %v, got %v", want, got)
}

func randomVector(rng *rand.Rand, scale float64) r3.Vector {
	return r3.Vector{
		X: (rng.Float64()*2 - 1) * scale,
		Y: (rng.Float64()*2 - 1) * scale,
		Z: (rng.Float64()*2 - 1) * scale,
	}
}

func randomRotation(rng *rand.Rand) quat.Number {
	axis := randomVector(rng, 1)
	for axis.Norm() < 1e-3 {
		axis = randomVector(rng, 1)
	}
	return QuaternionFromAxisAngle(axis, (rng.Float64()*2-1)*math.Pi)
}

func randomPose(rng *rand.Rand) Pose {
	return Pose{Rotation: randomRotation(rng), Translation: randomVector(rng, 10)}
}

func randomPoints(rng *rand.Rand, n int, scale float64) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = randomVector(rng, scale)
	}
	return pts
}
