package pose

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a unit rotation quaternion followed by a translation.
// A pose estimated from sets A and B maps points of B into the frame of A.
type Pose struct {
	Rotation    quat.Number `json:"rotation"`
	Translation r3.Vector   `json:"translation"`
}

// Correspondence pairs an observation in frame A with the same observation in frame B.
type Correspondence struct {
	A r3.Vector
	B r3.Vector
}

// TipCalibration is the result of a tool-tip (pivot) calibration.
type TipCalibration struct {
	World  r3.Vector `json:"world"`  // Pivot point in tracker coordinates
	Offset r3.Vector `json:"offset"` // Tip position in marker (body) coordinates
}

// PlanarTransform is a 2D rigid transform: counter-clockwise rotation by Angle
// (radians) followed by the translation (Tx, Ty).
type PlanarTransform struct {
	Angle float64 `json:"angle"`
	Tx    float64 `json:"tx"`
	Ty    float64 `json:"ty"`
}

func (p Pose) String() string {
	q := p.Rotation
	return fmt.Sprintf("t=(%.6f, %.6f, %.6f) q=(w=%.6f, x=%.6f, y=%.6f, z=%.6f)",
		p.Translation.X, p.Translation.Y, p.Translation.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// Zip pairs up two equal-length point sets.
func Zip(a, b []r3.Vector) ([]Correspondence, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	pairs := make([]Correspondence, len(a))
	for i := range a {
		pairs[i] = Correspondence{A: a[i], B: b[i]}
	}
	return pairs, nil
}

// Unzip splits correspondences back into the two point sets.
func Unzip(pairs []Correspondence) (a, b []r3.Vector) {
	a = make([]r3.Vector, len(pairs))
	b = make([]r3.Vector, len(pairs))
	for i, c := range pairs {
		a[i] = c.A
		b[i] = c.B
	}
	return a, b
}
