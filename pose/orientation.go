package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// MinCorrespondences is the smallest number of point pairs that fixes a rotation.
const MinCorrespondences = 3

// eigenGapTolerance is the relative gap required between the two largest
// eigenvalues of the key matrix. Collinear points produce a repeated
// dominant eigenvalue.
const eigenGapTolerance = 1e-9

func checkPairs(a, b []r3.Vector, min int) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	if len(a) < min {
		return fmt.Errorf("%w: need at least %d, got %d", ErrTooFewPoints, min, len(a))
	}
	return nil
}

// EstimateRigidTransform computes the pose P minimizing sum |a[i] - P*b[i]|^2
// using Horn's closed-form quaternion method.
func EstimateRigidTransform(a, b []r3.Vector) (Pose, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return Pose{}, err
	}
	return estimateRigid(a, b, Centroid(a), Centroid(b))
}

// EstimateRigidTransformWithCentroids is EstimateRigidTransform with the set
// centroids supplied by the caller.
func EstimateRigidTransformWithCentroids(a, b []r3.Vector, ca, cb r3.Vector) (Pose, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return Pose{}, err
	}
	return estimateRigid(a, b, ca, cb)
}

func estimateRigid(a, b []r3.Vector, ca, cb r3.Vector) (Pose, error) {
	q, err := rotationFromCovariance(crossCovariance(a, b, ca, cb))
	if err != nil {
		return Pose{}, err
	}
	return Pose{
		Rotation:    q,
		Translation: ca.Sub(Rotate(q, cb)),
	}, nil
}

// EstimateRotation computes only the rotation part of the alignment of b onto a.
func EstimateRotation(a, b []r3.Vector) (quat.Number, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return quat.Number{}, err
	}
	return rotationFromCovariance(crossCovariance(a, b, Centroid(a), Centroid(b)))
}

// EstimateRotationWithCentroids is EstimateRotation with caller supplied centroids.
func EstimateRotationWithCentroids(a, b []r3.Vector, ca, cb r3.Vector) (quat.Number, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return quat.Number{}, err
	}
	return rotationFromCovariance(crossCovariance(a, b, ca, cb))
}

// crossCovariance returns M = sum (b[i]-cb)(a[i]-ca)^T.
func crossCovariance(a, b []r3.Vector, ca, cb r3.Vector) [3][3]float64 {
	var m [3][3]float64
	for i := range a {
		da := a[i].Sub(ca)
		db := b[i].Sub(cb)
		av := [3]float64{da.X, da.Y, da.Z}
		bv := [3]float64{db.X, db.Y, db.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				m[r][c] += bv[r] * av[c]
			}
		}
	}
	return m
}

// keyMatrix builds Horn's symmetric 4x4 matrix N from the cross-covariance.
// The eigenvector of its largest eigenvalue is the optimal quaternion (w, x, y, z).
func keyMatrix(m [3][3]float64) *mat.SymDense {
	n := mat.NewSymDense(4, nil)
	n.SetSym(0, 0, m[0][0]+m[1][1]+m[2][2])
	n.SetSym(1, 1, m[0][0]-m[1][1]-m[2][2])
	n.SetSym(2, 2, -m[0][0]+m[1][1]-m[2][2])
	n.SetSym(3, 3, -m[0][0]-m[1][1]+m[2][2])

	n.SetSym(0, 1, m[1][2]-m[2][1])
	n.SetSym(0, 2, m[2][0]-m[0][2])
	n.SetSym(0, 3, m[0][1]-m[1][0])
	n.SetSym(1, 2, m[0][1]+m[1][0])
	n.SetSym(1, 3, m[2][0]+m[0][2])
	n.SetSym(2, 3, m[1][2]+m[2][1])
	return n
}

func rotationFromCovariance(m [3][3]float64) (quat.Number, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(keyMatrix(m), true); !ok {
		return quat.Number{}, fmt.Errorf("%w: eigen decomposition failed", ErrDegenerate)
	}

	// Values are in ascending order.
	values := eig.Values(nil)
	largest, second := values[3], values[2]
	if !(largest > 0) {
		return quat.Number{}, fmt.Errorf("%w: dominant eigenvalue %g is not positive", ErrDegenerate, largest)
	}
	if largest-second <= eigenGapTolerance*math.Abs(largest) {
		return quat.Number{}, fmt.Errorf("%w: dominant eigenvalue is not unique", ErrDegenerate)
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	q := quat.Number{
		Real: vecs.At(0, 3),
		Imag: vecs.At(1, 3),
		Jmag: vecs.At(2, 3),
		Kmag: vecs.At(3, 3),
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return normalizeQuat(q), nil
}
