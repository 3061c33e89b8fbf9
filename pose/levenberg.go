package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem is a vector-valued function f(params) with an analytic Jacobian.
// Implementations write Size() values into result and, for
// EvaluateWithJacobian, fill the Size() x len(params) matrix jac.
type Problem interface {
	Size() int
	Evaluate(result, params []float64)
	EvaluateWithJacobian(result, params []float64, jac *mat.Dense)
}

// Termination decides when the optimizer stops.
type Termination struct {
	MaxIterations int     // Stop after this many iterations; 0 means no limit
	Precision     float64 // Stop when the relative error change drops below this; 0 disables
}

// DefaultTermination returns 200 iterations and a relative precision of 1e-6.
func DefaultTermination() Termination {
	return Termination{MaxIterations: 200, Precision: 1e-6}
}

// Done reports whether to stop after iteration with errors prev and now.
func (t Termination) Done(iteration int, prev, now float64) bool {
	return (t.MaxIterations > 0 && iteration >= t.MaxIterations) ||
		(t.Precision != 0 && math.Abs(prev-now) < t.Precision*now)
}

func (t Termination) validate() error {
	if t.MaxIterations < 0 || t.Precision < 0 {
		return fmt.Errorf("%w: termination %+v", ErrInvalidParams, t)
	}
	if t.MaxIterations == 0 && t.Precision == 0 {
		return fmt.Errorf("%w: termination needs an iteration limit or a precision", ErrInvalidParams)
	}
	return nil
}

// WeightFunction computes one weight per residual row for iteratively
// reweighted least squares. Residuals and jacobian rows are scaled by the
// square root of the weight.
type WeightFunction interface {
	Weights(dst, residuals []float64)
}

// TukeyWeights is Tukey's biweight applied per measurement: the squared norm
// e of each group of RowsPerMeasurement rows gives weight (1 - e/C^2)^2 when
// e <= C^2 and zero otherwise.
type TukeyWeights struct {
	RowsPerMeasurement int
	C                  float64
}

func (t TukeyWeights) Weights(dst, residuals []float64) {
	rows := t.RowsPerMeasurement
	if rows <= 0 {
		rows = 1
	}
	c2 := t.C * t.C
	for i := 0; i < len(residuals); i += rows {
		end := min(i+rows, len(residuals))
		e := floats.Dot(residuals[i:end], residuals[i:end])

		var w float64
		if e <= c2 {
			u := 1 - e/c2
			w = u * u
		}
		for j := i; j < end; j++ {
			dst[j] = w
		}
	}
}

// LMConfig configures LevenbergMarquardt.
type LMConfig struct {
	Termination Termination
	StepSize    float64                // Initial damping factor lambda
	StepFactor  float64                // Lambda is divided on success and multiplied on failure
	Normalize   func(params []float64) // Optional projection applied after every step
	Weights     WeightFunction         // Optional robust weights
}

// DefaultLMConfig returns lambda=1, factor 10 and DefaultTermination.
func DefaultLMConfig() LMConfig {
	return LMConfig{
		Termination: DefaultTermination(),
		StepSize:    1.0,
		StepFactor:  10.0,
	}
}

// maxDamping bounds lambda; beyond it steps are numerically zero.
const maxDamping = 1e32

// LevenbergMarquardt minimizes |measurement - f(params)|^2 for the problem f,
// updating params in place, and returns the final (weighted) sum of squared
// residuals. A step is accepted only when it lowers the error, so the
// returned error never exceeds the initial one.
func LevenbergMarquardt(p Problem, params, measurement []float64, cfg LMConfig) (float64, error) {
	m, n := p.Size(), len(params)
	if n == 0 || m == 0 {
		return 0, fmt.Errorf("%w: %d residuals, %d parameters", ErrDimension, m, n)
	}
	if len(measurement) != m {
		return 0, fmt.Errorf("%w: measurement has %d values, problem has %d", ErrDimension, len(measurement), m)
	}
	if err := cfg.Termination.validate(); err != nil {
		return 0, err
	}
	lambda := cfg.StepSize
	if lambda <= 0 {
		lambda = 1
	}
	factor := cfg.StepFactor
	if factor <= 1 {
		factor = 10
	}

	est := make([]float64, m)
	diff := make([]float64, m)
	diff2 := make([]float64, m)
	weights := make([]float64, m)
	jac := mat.NewDense(m, n, nil)
	jac2 := mat.NewDense(m, n, nil)
	newParams := make([]float64, n)

	evaluate := func(x, d []float64, j *mat.Dense) float64 {
		p.EvaluateWithJacobian(est, x, j)
		floats.SubTo(d, measurement, est)
		if cfg.Weights != nil {
			cfg.Weights.Weights(weights, d)
			for i := range d {
				w := math.Sqrt(weights[i])
				d[i] *= w
				for k := 0; k < n; k++ {
					j.Set(i, k, j.At(i, k)*w)
				}
			}
		}
		return floats.Dot(d, d)
	}

	errPrev := evaluate(params, diff, jac)

	jtj := mat.NewSymDense(n, nil)
	g := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	useSVD := false

	for iteration := 1; ; iteration++ {
		jtj.SymOuterK(1, jac.T())
		for i := 0; i < n; i++ {
			jtj.SetSym(i, i, jtj.At(i, i)+lambda)
		}
		g.MulVec(jac.T(), mat.NewVecDense(m, diff))

		solved := false
		if !useSVD {
			var chol mat.Cholesky
			if chol.Factorize(jtj) && chol.SolveVecTo(step, g) == nil {
				solved = true
			} else {
				useSVD = true
			}
		}
		if !solved {
			if err := solveSVD(step, jtj, g); err != nil {
				return errPrev, err
			}
		}

		floats.AddTo(newParams, params, step.RawVector().Data)
		if cfg.Normalize != nil {
			cfg.Normalize(newParams)
		}

		errNow := evaluate(newParams, diff2, jac2)
		done := cfg.Termination.Done(iteration, errPrev, errNow)

		if errNow >= errPrev || math.IsNaN(errNow) {
			lambda *= factor
		} else {
			lambda /= factor
			copy(params, newParams)
			diff, diff2 = diff2, diff
			jac, jac2 = jac2, jac
			errPrev = errNow
		}

		if done || errPrev == 0 || lambda > maxDamping {
			return errPrev, nil
		}
	}
}

// solveSVD solves a*x = b in the least-squares sense, truncating negligible
// singular values.
func solveSVD(dst *mat.VecDense, a mat.Matrix, b mat.Vector) error {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return fmt.Errorf("%w: singular value decomposition failed", ErrDegenerate)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		dst.Zero()
		return nil
	}
	svd.SolveVecTo(dst, b, rank)
	return nil
}
