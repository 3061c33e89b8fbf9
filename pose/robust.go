package pose

import (
	"github.com/golang/geo/r3"
)

// PointPairEstimator fits a rigid transform to a sample of correspondences.
type PointPairEstimator struct{}

func (PointPairEstimator) Estimate(sample []Correspondence) (Pose, bool) {
	a, b := Unzip(sample)
	p, err := EstimateRigidTransform(a, b)
	if err != nil {
		return Pose{}, false
	}
	return p, true
}

// PointPairEvaluator scores a correspondence by the distance |A - P*B|.
type PointPairEvaluator struct{}

func (PointPairEvaluator) Evaluate(p Pose, c Correspondence) float64 {
	return c.A.Sub(p.Apply(c.B)).Norm()
}

// RobustEstimateRigidTransform runs RANSAC over the point pairs using Horn's
// solver as the estimator and the Euclidean alignment error as the residual.
func RobustEstimateRigidTransform(a, b []r3.Vector, params RansacParams) (RansacResult[Pose], error) {
	pairs, err := Zip(a, b)
	if err != nil {
		return RansacResult[Pose]{}, err
	}
	return Ransac[Correspondence, Pose](pairs, PointPairEstimator{}, PointPairEvaluator{}, params)
}
