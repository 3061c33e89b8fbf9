package pose

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanarTransformApply(t *testing.T) {
	tests := []struct {
		name string
		tr   PlanarTransform
		in   orb.Point
		want orb.Point
	}{
		{"identity", PlanarTransform{}, orb.Point{3, 4}, orb.Point{3, 4}},
		{"translation", PlanarTransform{Tx: 1, Ty: -2}, orb.Point{3, 4}, orb.Point{4, 2}},
		{"quarter turn", PlanarTransform{Angle: math.Pi / 2}, orb.Point{1, 0}, orb.Point{0, 1}},
		{"half turn and shift", PlanarTransform{Angle: math.Pi, Tx: 10}, orb.Point{1, 1}, orb.Point{9, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tr.Apply(tt.in)
			assert.InDelta(t, tt.want[0], got[0], 1e-12)
			assert.InDelta(t, tt.want[1], got[1], 1e-12)
		})
	}
}

func TestEstimatePlanarTransform(t *testing.T) {
	want := PlanarTransform{Angle: 2.5, Tx: -3, Ty: 7}
	b := []orb.Point{{0, 0}, {4, 1}, {-2, 3}, {1, -5}}
	a := make([]orb.Point, len(b))
	for i, p := range b {
		a[i] = want.Apply(p)
	}

	got, err := EstimatePlanarTransform(a, b)
	require.NoError(t, err)
	assert.InDelta(t, want.Angle, got.Angle, 1e-9)
	assert.InDelta(t, want.Tx, got.Tx, 1e-9)
	assert.InDelta(t, want.Ty, got.Ty, 1e-9)
}

func TestEstimatePlanarTransformErrors(t *testing.T) {
	_, err := EstimatePlanarTransform([]orb.Point{{0, 0}}, []orb.Point{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = EstimatePlanarTransform([]orb.Point{{0, 0}}, []orb.Point{{0, 0}})
	assert.ErrorIs(t, err, ErrTooFewPoints)

	same := []orb.Point{{1, 1}, {1, 1}}
	_, err = EstimatePlanarTransform(same, same)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestPlanarTransformPoseAgreesWithApply(t *testing.T) {
	tr := PlanarTransform{Angle: -0.7, Tx: 2, Ty: 5}
	p := orb.Point{3, -1}
	want := tr.Apply(p)
	got := tr.Pose().Apply(r3.Vector{X: p[0], Y: p[1]})
	assert.InDelta(t, want[0], got.X, 1e-12)
	assert.InDelta(t, want[1], got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)
}

func TestRobustEstimatePlanarTransform(t *testing.T) {
	rng := rand.New(rand.NewSource(51))
	want := PlanarTransform{Angle: 0.9, Tx: 120, Ty: -40}

	n := 50
	a := make([]orb.Point, n)
	b := make([]orb.Point, n)
	for i := range b {
		b[i] = orb.Point{rng.Float64() * 100, rng.Float64() * 100}
		a[i] = want.Apply(b[i])
	}
	for _, i := range rng.Perm(n)[:10] {
		a[i] = orb.Point{a[i][0] + 50 + rng.Float64()*50, a[i][1] - 30}
	}

	params, err := RansacParamsFromOutlierRatio(0.1, 2, n, 0.3, 0.9999)
	require.NoError(t, err)
	params.RNG = rand.New(rand.NewSource(6))

	result, err := RobustEstimatePlanarTransform(a, b, params)
	require.NoError(t, err)
	assert.Equal(t, 40, result.InlierCount)
	assert.InDelta(t, want.Angle, result.Model.Angle, 1e-9)
	assert.InDelta(t, want.Tx, result.Model.Tx, 1e-6)
	assert.InDelta(t, want.Ty, result.Model.Ty, 1e-6)

	_, err = RobustEstimatePlanarTransform(a, b[:3], params)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
