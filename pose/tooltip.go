package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinToolTipPoses is the smallest number of tracked poses for a tip calibration.
const MinToolTipPoses = 3

// rankTolerance is the relative singular value below which the pivot system
// is treated as rank deficient.
const rankTolerance = 1e-10

// EstimateToolTip solves the pivot calibration for a set of marker poses
// recorded while the tool rotates about a fixed tip. Every pose satisfies
// R_i*Offset + t_i = World, stacked into the linear system
// [R_i | -I] [Offset; World] = -t_i and solved in the least-squares sense.
func EstimateToolTip(poses []Pose) (TipCalibration, error) {
	if len(poses) < MinToolTipPoses {
		return TipCalibration{}, fmt.Errorf("%w: need at least %d poses, got %d", ErrTooFewPoints, MinToolTipPoses, len(poses))
	}

	a := mat.NewDense(3*len(poses), 6, nil)
	v := mat.NewVecDense(3*len(poses), nil)
	for i, p := range poses {
		row := 3 * i
		r := RotationMatrix(p.Rotation)
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				a.Set(row+j, k, r.At(j, k))
			}
			a.Set(row+j, 3+j, -1)
		}
		v.SetVec(row, -p.Translation.X)
		v.SetVec(row+1, -p.Translation.Y)
		v.SetVec(row+2, -p.Translation.Z)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return TipCalibration{}, fmt.Errorf("%w: singular value decomposition failed", ErrDegenerate)
	}
	if values := svd.Values(nil); values[5] <= rankTolerance*values[0] {
		return TipCalibration{}, fmt.Errorf("%w: poses do not span enough rotations", ErrDegenerate)
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, v, 6)
	return TipCalibration{
		Offset: r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)},
		World:  r3.Vector{X: x.AtVec(3), Y: x.AtVec(4), Z: x.AtVec(5)},
	}, nil
}

// TipDistance returns |World - P*Offset|, the distance between the fixed tip
// and the tip predicted by pose p.
func (t TipCalibration) TipDistance(p Pose) float64 {
	return t.World.Sub(p.Apply(t.Offset)).Norm()
}

// ToolTipEstimator adapts EstimateToolTip to RANSAC.
type ToolTipEstimator struct{}

func (ToolTipEstimator) Estimate(sample []Pose) (TipCalibration, bool) {
	tip, err := EstimateToolTip(sample)
	return tip, err == nil
}

// ToolTipEvaluator scores a pose by TipDistance.
type ToolTipEvaluator struct{}

func (ToolTipEvaluator) Evaluate(t TipCalibration, p Pose) float64 {
	return t.TipDistance(p)
}

// RobustEstimateToolTip runs RANSAC over the poses. params.SetSize is
// usually MinToolTipPoses.
func RobustEstimateToolTip(poses []Pose, params RansacParams) (RansacResult[TipCalibration], error) {
	return Ransac[Pose, TipCalibration](poses, ToolTipEstimator{}, ToolTipEvaluator{}, params)
}

// toolTipProblem maps (World, Offset) to the stacked vectors World - P_i*Offset.
type toolTipProblem struct {
	poses     []Pose
	rotations []*mat.Dense
}

func newToolTipProblem(poses []Pose) *toolTipProblem {
	rs := make([]*mat.Dense, len(poses))
	for i, p := range poses {
		rs[i] = RotationMatrix(p.Rotation)
	}
	return &toolTipProblem{poses: poses, rotations: rs}
}

func (pr *toolTipProblem) Size() int { return 3 * len(pr.poses) }

func (pr *toolTipProblem) Evaluate(result, params []float64) {
	tip := tipFromParams(params)
	for i, p := range pr.poses {
		putVector(result[3*i:], tip.World.Sub(p.Apply(tip.Offset)))
	}
}

func (pr *toolTipProblem) EvaluateWithJacobian(result, params []float64, jac *mat.Dense) {
	pr.Evaluate(result, params)
	for i := range pr.poses {
		row := 3 * i
		r := pr.rotations[i]
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				v := 0.0
				if j == k {
					v = 1
				}
				jac.Set(row+j, k, v)
				jac.Set(row+j, 3+k, -r.At(j, k))
			}
		}
	}
}

func tipFromParams(v []float64) TipCalibration {
	return TipCalibration{
		World:  r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Offset: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}
}

// RefineToolTip minimizes sum |World - P_i*Offset|^2 starting from initial
// and returns the refined calibration with its final residual norm.
func RefineToolTip(poses []Pose, initial TipCalibration, term Termination) (TipCalibration, float64, error) {
	if len(poses) < MinToolTipPoses {
		return TipCalibration{}, 0, fmt.Errorf("%w: need at least %d poses, got %d", ErrTooFewPoints, MinToolTipPoses, len(poses))
	}
	params := []float64{
		initial.World.X, initial.World.Y, initial.World.Z,
		initial.Offset.X, initial.Offset.Y, initial.Offset.Z,
	}

	cfg := DefaultLMConfig()
	cfg.Termination = term
	sse, err := LevenbergMarquardt(newToolTipProblem(poses), params, make([]float64, 3*len(poses)), cfg)
	if err != nil {
		return TipCalibration{}, 0, err
	}
	return tipFromParams(params), math.Sqrt(sse), nil
}

// ToolTipError returns the mean and sample standard deviation of the tip
// distances over poses.
func ToolTipError(tip TipCalibration, poses []Pose) (mean, stdDev float64, err error) {
	if len(poses) < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 poses, got %d", ErrTooFewPoints, len(poses))
	}
	d := make([]float64, len(poses))
	for i, p := range poses {
		d[i] = tip.TipDistance(p)
	}
	mean, stdDev = stat.MeanStdDev(d, nil)
	return mean, stdDev, nil
}
