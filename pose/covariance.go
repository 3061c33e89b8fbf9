package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// PoseResidual returns the mean alignment error sum |a[i] - P*b[i]| / (3n).
func PoseResidual(a, b []r3.Vector, p Pose) (float64, error) {
	if err := checkPairs(a, b, 1); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += a[i].Sub(p.Apply(b[i])).Norm()
	}
	return sum / float64(3*len(a)), nil
}

// RMSError returns the root mean square of |a[i] - P*b[i]|.
func RMSError(a, b []r3.Vector, p Pose) (float64, error) {
	if err := checkPairs(a, b, 1); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += a[i].Sub(p.Apply(b[i])).Norm2()
	}
	return math.Sqrt(sum / float64(len(a))), nil
}

// PoseCovariance estimates the 6x6 covariance of p, ordered as translation
// (x, y, z) followed by a small rotation vector applied on the left of the
// rotation. It scales the pseudo-inverse of J^T J by PoseResidual.
func PoseCovariance(a, b []r3.Vector, p Pose) (*mat.SymDense, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return nil, err
	}
	residual, err := PoseResidual(a, b, p)
	if err != nil {
		return nil, err
	}

	jac := mat.NewDense(3*len(b), 6, nil)
	for i, v := range b {
		rb := Rotate(p.Rotation, v)
		row := 3 * i
		jac.Set(row, 0, 1)
		jac.Set(row+1, 1, 1)
		jac.Set(row+2, 2, 1)
		// d(R b)/d(theta) = -[R b]x
		jac.Set(row, 4, rb.Z)
		jac.Set(row, 5, -rb.Y)
		jac.Set(row+1, 3, -rb.Z)
		jac.Set(row+1, 5, rb.X)
		jac.Set(row+2, 3, rb.Y)
		jac.Set(row+2, 4, -rb.X)
	}

	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	pinv, err := pseudoInverse(&jtj)
	if err != nil {
		return nil, err
	}

	cov := mat.NewSymDense(6, nil)
	for r := 0; r < 6; r++ {
		for c := r; c < 6; c++ {
			cov.SetSym(r, c, residual*(pinv.At(r, c)+pinv.At(c, r))/2)
		}
	}
	return cov, nil
}

// pseudoInverse returns the Moore-Penrose inverse of a via SVD.
func pseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("%w: singular value decomposition failed", ErrDegenerate)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	tol := 1e-12
	if len(values) > 0 {
		tol *= values[0]
	}
	inv := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tol {
			inv.Set(i, i, 1/s)
		}
	}

	var tmp, out mat.Dense
	tmp.Mul(&v, inv)
	out.Mul(&tmp, u.T())
	return &out, nil
}
