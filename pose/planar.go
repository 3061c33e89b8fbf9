package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// PlanarPair pairs a point in frame A with the same point in frame B.
type PlanarPair struct {
	A orb.Point
	B orb.Point
}

// Apply transforms p: rotation by Angle then translation.
func (t PlanarTransform) Apply(p orb.Point) orb.Point {
	sin, cos := math.Sincos(t.Angle)
	return orb.Point{
		cos*p[0] - sin*p[1] + t.Tx,
		sin*p[0] + cos*p[1] + t.Ty,
	}
}

// Pose lifts the planar transform to a 3D pose rotating about the Z axis.
func (t PlanarTransform) Pose() Pose {
	return Pose{
		Rotation:    QuaternionFromAxisAngle(r3.Vector{Z: 1}, t.Angle),
		Translation: r3.Vector{X: t.Tx, Y: t.Ty},
	}
}

// EstimatePlanarTransform returns the 2D rigid transform T minimizing
// sum |a[i] - T*b[i]|^2 (Procrustes on the centered sets).
func EstimatePlanarTransform(a, b []orb.Point) (PlanarTransform, error) {
	if len(a) != len(b) {
		return PlanarTransform{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	if len(a) < 2 {
		return PlanarTransform{}, fmt.Errorf("%w: need at least 2, got %d", ErrTooFewPoints, len(a))
	}

	ca, cb := planarCentroid(a), planarCentroid(b)

	// dot and cross terms of the centered cross-covariance
	var sDot, sCross float64
	for i := range a {
		ax, ay := a[i][0]-ca[0], a[i][1]-ca[1]
		bx, by := b[i][0]-cb[0], b[i][1]-cb[1]
		sDot += bx*ax + by*ay
		sCross += bx*ay - by*ax
	}
	if sDot == 0 && sCross == 0 {
		return PlanarTransform{}, fmt.Errorf("%w: points have no spread", ErrDegenerate)
	}

	theta := math.Atan2(sCross, sDot)
	sin, cos := math.Sincos(theta)
	return PlanarTransform{
		Angle: theta,
		Tx:    ca[0] - (cos*cb[0] - sin*cb[1]),
		Ty:    ca[1] - (sin*cb[0] + cos*cb[1]),
	}, nil
}

func planarCentroid(pts []orb.Point) orb.Point {
	var c orb.Point
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
	}
	n := float64(len(pts))
	return orb.Point{c[0] / n, c[1] / n}
}

// PlanarEstimator adapts EstimatePlanarTransform to RANSAC.
type PlanarEstimator struct{}

func (PlanarEstimator) Estimate(sample []PlanarPair) (PlanarTransform, bool) {
	a := make([]orb.Point, len(sample))
	b := make([]orb.Point, len(sample))
	for i, s := range sample {
		a[i], b[i] = s.A, s.B
	}
	t, err := EstimatePlanarTransform(a, b)
	return t, err == nil
}

// PlanarEvaluator scores a pair by the planar distance |A - T*B|.
type PlanarEvaluator struct{}

func (PlanarEvaluator) Evaluate(t PlanarTransform, p PlanarPair) float64 {
	q := t.Apply(p.B)
	return math.Hypot(p.A[0]-q[0], p.A[1]-q[1])
}

// RobustEstimatePlanarTransform runs RANSAC over 2D point pairs.
func RobustEstimatePlanarTransform(a, b []orb.Point, params RansacParams) (RansacResult[PlanarTransform], error) {
	if len(a) != len(b) {
		return RansacResult[PlanarTransform]{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	pairs := make([]PlanarPair, len(a))
	for i := range a {
		pairs[i] = PlanarPair{A: a[i], B: b[i]}
	}
	return Ransac[PlanarPair, PlanarTransform](pairs, PlanarEstimator{}, PlanarEvaluator{}, params)
}
