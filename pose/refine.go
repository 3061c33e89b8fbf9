package pose

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// pointTransformProblem maps a pose vector (tx, ty, tz, qx, qy, qz, qw) to
// the stacked coordinates of P*b for every point b.
type pointTransformProblem struct {
	points []r3.Vector
}

func (pr *pointTransformProblem) Size() int { return 3 * len(pr.points) }

func (pr *pointTransformProblem) Evaluate(result, params []float64) {
	p := poseFromVector(params)
	for i, b := range pr.points {
		putVector(result[3*i:], p.Apply(b))
	}
}

func (pr *pointTransformProblem) EvaluateWithJacobian(result, params []float64, jac *mat.Dense) {
	p := poseFromVector(params)
	q := p.Rotation
	w := q.Real
	u := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	qv := [4]float64{u.X, u.Y, u.Z, w}
	axes := [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	uk := [3]float64{u.X, u.Y, u.Z}

	for i, b := range pr.points {
		rb := Rotate(q, b)
		putVector(result[3*i:], rb.Add(p.Translation))

		// Derivatives of the quadratic rotation form
		// (w^2 - u.u) b + 2(u.b) u + 2w (u x b), columns qx, qy, qz, qw.
		bk := [3]float64{b.X, b.Y, b.Z}
		ub := u.Dot(b)
		var d [4]r3.Vector
		for k := 0; k < 3; k++ {
			d[k] = b.Mul(-2 * uk[k]).
				Add(u.Mul(2 * bk[k])).
				Add(axes[k].Mul(2 * ub)).
				Add(axes[k].Cross(b).Mul(2 * w))
		}
		d[3] = b.Mul(2 * w).Add(u.Cross(b).Mul(2))

		row := 3 * i
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := 0.0
				if r == c {
					v = 1
				}
				jac.Set(row+r, c, v)
			}
		}
		// Quaternion normalization removes the radial component.
		for j := 0; j < 4; j++ {
			dj := d[j].Sub(rb.Mul(2 * qv[j]))
			jac.Set(row, 3+j, dj.X)
			jac.Set(row+1, 3+j, dj.Y)
			jac.Set(row+2, 3+j, dj.Z)
		}
	}
}

func putVector(dst []float64, v r3.Vector) {
	dst[0], dst[1], dst[2] = v.X, v.Y, v.Z
}

func flatten(pts []r3.Vector) []float64 {
	out := make([]float64, 3*len(pts))
	for i, v := range pts {
		putVector(out[3*i:], v)
	}
	return out
}

// normalizePoseVector rescales the quaternion part of a pose vector.
func normalizePoseVector(v []float64) {
	n := math.Sqrt(v[3]*v[3] + v[4]*v[4] + v[5]*v[5] + v[6]*v[6])
	if n == 0 {
		v[3], v[4], v[5], v[6] = 0, 0, 0, 1
		return
	}
	for i := 3; i < 7; i++ {
		v[i] /= n
	}
}

// RefinePose improves initial by minimizing sum |a[i] - P*b[i]|^2 with
// Levenberg-Marquardt. It returns the refined pose and the final residual
// norm; the residual never exceeds that of initial.
func RefinePose(initial Pose, a, b []r3.Vector, term Termination) (Pose, float64, error) {
	cfg := DefaultLMConfig()
	cfg.Termination = term
	return RefinePoseWithConfig(initial, a, b, cfg)
}

// RefinePoseWithConfig is RefinePose with full optimizer settings, such as
// robust weights. The quaternion is always renormalized after each step.
func RefinePoseWithConfig(initial Pose, a, b []r3.Vector, cfg LMConfig) (Pose, float64, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return Pose{}, 0, err
	}

	params := NewPose(initial.Rotation, initial.Translation).ToVector()
	user := cfg.Normalize
	cfg.Normalize = func(v []float64) {
		if user != nil {
			user(v)
		}
		normalizePoseVector(v)
	}

	sse, err := LevenbergMarquardt(&pointTransformProblem{points: b}, params, flatten(a), cfg)
	if err != nil {
		return Pose{}, 0, err
	}
	return poseFromVector(params), math.Sqrt(sse), nil
}
