package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// PoseVectorSize is the length of the parameter vector produced by ToVector.
const PoseVectorSize = 7

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// NewPose builds a pose, normalizing the rotation.
func NewPose(q quat.Number, t r3.Vector) Pose {
	return Pose{Rotation: normalizeQuat(q), Translation: t}
}

// normalizeQuat scales q to unit length. The zero quaternion maps to identity.
func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// QuaternionFromAxisAngle returns the unit quaternion rotating by angle
// radians about axis. The axis does not need to be normalized.
func QuaternionFromAxisAngle(axis r3.Vector, angle float64) quat.Number {
	axis = axis.Normalize()
	s := math.Sin(angle / 2)
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	// v' = v + 2w(u x v) + 2u x (u x v)
	u := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	uv := u.Cross(v)
	return v.Add(uv.Mul(2 * q.Real)).Add(u.Cross(uv).Mul(2))
}

// RotationMatrix returns the 3x3 rotation matrix of the unit quaternion q.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Apply transforms v by the pose: R*v + t.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return Rotate(p.Rotation, v).Add(p.Translation)
}

// Compose returns the pose that applies o first and then p.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Rotation:    normalizeQuat(quat.Mul(p.Rotation, o.Rotation)),
		Translation: Rotate(p.Rotation, o.Translation).Add(p.Translation),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	qi := quat.Conj(p.Rotation)
	return Pose{
		Rotation:    qi,
		Translation: Rotate(qi, p.Translation).Mul(-1),
	}
}

// ToVector serializes the pose as tx, ty, tz, qx, qy, qz, qw.
func (p Pose) ToVector() []float64 {
	q := p.Rotation
	return []float64{
		p.Translation.X, p.Translation.Y, p.Translation.Z,
		q.Imag, q.Jmag, q.Kmag, q.Real,
	}
}

// PoseFromVector is the inverse of ToVector. The quaternion part is normalized.
func PoseFromVector(v []float64) (Pose, error) {
	if len(v) != PoseVectorSize {
		return Pose{}, fmt.Errorf("%w: pose vector has %d values, want %d", ErrInvalidParams, len(v), PoseVectorSize)
	}
	return poseFromVector(v), nil
}

// poseFromVector skips the length check for optimizer parameter vectors.
func poseFromVector(v []float64) Pose {
	return NewPose(
		quat.Number{Real: v[6], Imag: v[3], Jmag: v[4], Kmag: v[5]},
		r3.Vector{X: v[0], Y: v[1], Z: v[2]},
	)
}

// RotationDistance returns the angle in radians of the relative rotation
// between q1 and q2. q and -q describe the same rotation and have distance 0.
func RotationDistance(q1, q2 quat.Number) float64 {
	r := quat.Mul(quat.Conj(normalizeQuat(q1)), normalizeQuat(q2))
	v := math.Sqrt(r.Imag*r.Imag + r.Jmag*r.Jmag + r.Kmag*r.Kmag)
	return 2 * math.Atan2(v, math.Abs(r.Real))
}

// Centroid returns the arithmetic mean of pts.
func Centroid(pts []r3.Vector) r3.Vector {
	if len(pts) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts)))
}

// TransformPoints applies p to every point and returns a new slice.
func TransformPoints(p Pose, pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, v := range pts {
		out[i] = p.Apply(v)
	}
	return out
}
