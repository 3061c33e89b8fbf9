package pose

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPoseResidual(t *testing.T) {
	b := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	a := []r3.Vector{{X: 1, Y: 3}, {Y: 1}, {Z: 1}}

	got, err := PoseResidual(a, b, Identity())
	require.NoError(t, err)
	assert.InDelta(t, 3.0/9.0, got, 1e-12)

	rms, err := RMSError(a, b, Identity())
	require.NoError(t, err)
	assert.InDelta(t, 1.7320508075688772, rms, 1e-12)

	_, err = PoseResidual(a, b[:2], Identity())
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestPoseCovariance(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	truth := randomPose(rng)
	b := randomPoints(rng, 40, 5)
	a := TransformPoints(truth, b)
	for i := range a {
		a[i] = a[i].Add(randomVector(rng, 0.01))
	}
	p, err := EstimateRigidTransform(a, b)
	require.NoError(t, err)

	cov, err := PoseCovariance(a, b, p)
	require.NoError(t, err)
	assert.Equal(t, 6, cov.SymmetricDim())

	var eig mat.EigenSym
	require.True(t, eig.Factorize(cov, false))
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(t, v, -1e-15)
	}
	for i := 0; i < 6; i++ {
		assert.Greater(t, cov.At(i, i), 0.0)
	}
}

func TestPoseCovarianceExactFitIsZero(t *testing.T) {
	b := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 1, Z: 1}}
	cov, err := PoseCovariance(b, b, Identity())
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(cov, mat.NewSymDense(6, nil), 1e-15))
}
