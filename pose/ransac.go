package pose

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Estimator computes a hypothesis from a sample of items. It returns false
// when the sample is degenerate; RANSAC skips such samples.
type Estimator[S, H any] interface {
	Estimate(sample []S) (H, bool)
}

// Evaluator returns the non-negative residual of item under hypothesis h.
type Evaluator[S, H any] interface {
	Evaluate(h H, item S) float64
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc[S, H any] func(sample []S) (H, bool)

func (f EstimatorFunc[S, H]) Estimate(sample []S) (H, bool) { return f(sample) }

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc[S, H any] func(h H, item S) float64

func (f EvaluatorFunc[S, H]) Evaluate(h H, item S) float64 { return f(h, item) }

// RansacParams configures a RANSAC run.
type RansacParams struct {
	Threshold     float64    // Items with residual strictly below this are inliers
	SetSize       int        // Items drawn per hypothesis
	MinInliers    int        // Consensus size that ends the search
	MaxIterations int        // Upper bound on drawn samples
	RNG           *rand.Rand // Sampling source; nil seeds one from the clock
}

// NewRansacParams builds parameters from explicit values.
func NewRansacParams(threshold float64, setSize, minInliers, maxIterations int) RansacParams {
	return RansacParams{
		Threshold:     threshold,
		SetSize:       setSize,
		MinInliers:    minInliers,
		MaxIterations: maxIterations,
	}
}

// RansacParamsFromOutlierRatio derives the consensus size and iteration
// budget from the expected outlier ratio of n items and the desired
// probability of drawing at least one outlier-free sample.
func RansacParamsFromOutlierRatio(threshold float64, setSize, n int, outlierRatio, successProbability float64) (RansacParams, error) {
	if outlierRatio < 0 || outlierRatio >= 1 {
		return RansacParams{}, fmt.Errorf("%w: outlier ratio %g not in [0, 1)", ErrInvalidParams, outlierRatio)
	}
	if successProbability <= 0 || successProbability >= 1 {
		return RansacParams{}, fmt.Errorf("%w: success probability %g not in (0, 1)", ErrInvalidParams, successProbability)
	}
	if setSize <= 0 {
		return RansacParams{}, fmt.Errorf("%w: set size %d", ErrInvalidParams, setSize)
	}

	minInliers := int(math.Floor((1-outlierRatio)*float64(n) + 1e-9))
	return NewRansacParams(threshold, setSize, minInliers, RequiredIterations(setSize, outlierRatio, successProbability)), nil
}

// RequiredIterations returns ceil(1 + log(1-p) / log(1-(1-e)^s)), the number
// of samples of size s needed to draw an outlier-free one with probability p
// when a fraction e of the items are outliers.
func RequiredIterations(setSize int, outlierRatio, successProbability float64) int {
	good := math.Pow(1-outlierRatio, float64(setSize))
	if good >= 1 {
		return 1
	}
	if good <= 0 {
		return math.MaxInt32
	}
	it := math.Ceil(1 + math.Log(1-successProbability)/math.Log(1-good))
	if it > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(it)
}

// Validate checks the parameters against a data set of n items.
func (p RansacParams) Validate(n int) error {
	switch {
	case p.Threshold < 0 || math.IsNaN(p.Threshold):
		return fmt.Errorf("%w: threshold %g", ErrInvalidParams, p.Threshold)
	case p.SetSize <= 0:
		return fmt.Errorf("%w: set size %d", ErrInvalidParams, p.SetSize)
	case p.SetSize > n:
		return fmt.Errorf("%w: set size %d exceeds %d items", ErrInvalidParams, p.SetSize, n)
	case p.MinInliers <= 0:
		return fmt.Errorf("%w: min inliers %d", ErrInvalidParams, p.MinInliers)
	case p.MinInliers > n:
		return fmt.Errorf("%w: min inliers %d exceeds %d items", ErrInvalidParams, p.MinInliers, n)
	case p.MaxIterations <= 0:
		return fmt.Errorf("%w: max iterations %d", ErrInvalidParams, p.MaxIterations)
	}
	return nil
}

// RansacResult holds the outcome of a RANSAC run. InlierCount is zero when
// no hypothesis reached MinInliers; Model is then the zero value.
type RansacResult[H any] struct {
	Model       H
	Inliers     []int // Indices into the input items
	InlierCount int
	Iterations  int
}

// Ransac searches for the hypothesis with the largest consensus among items.
//
// Each iteration draws SetSize distinct items, asks est for a hypothesis and
// counts the items whose residual under eval is below Threshold. A
// hypothesis replaces the current best only if it reaches MinInliers and has
// strictly more inliers, so ties keep the earlier one. The search stops as
// soon as a hypothesis reaches MinInliers or the iteration budget is spent,
// and the final model is re-estimated from all inliers of the best one.
func Ransac[S, H any](items []S, est Estimator[S, H], eval Evaluator[S, H], params RansacParams) (RansacResult[H], error) {
	var result RansacResult[H]
	if est == nil || eval == nil {
		return result, fmt.Errorf("%w: estimator and evaluator are required", ErrInvalidParams)
	}
	if err := params.Validate(len(items)); err != nil {
		return result, err
	}

	rng := params.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	n := len(items)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sample := make([]S, params.SetSize)
	inliers := make([]int, 0, n)

	var bestModel H
	var bestInliers []int

	for result.Iterations < params.MaxIterations && len(bestInliers) < params.MinInliers {
		result.Iterations++

		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		for k := range sample {
			sample[k] = items[perm[k]]
		}

		h, ok := est.Estimate(sample)
		if !ok {
			continue
		}

		inliers = inliers[:0]
		for i := 0; i < n; i++ {
			// MinInliers can no longer be reached
			if n-i < params.MinInliers-len(inliers) {
				break
			}
			if eval.Evaluate(h, items[i]) < params.Threshold {
				inliers = append(inliers, i)
			}
		}

		if len(inliers) >= params.MinInliers && len(inliers) > len(bestInliers) {
			bestModel = h
			bestInliers = append(bestInliers[:0], inliers...)
		}
	}

	if len(bestInliers) == 0 {
		return result, nil
	}

	consensus := make([]S, len(bestInliers))
	for k, idx := range bestInliers {
		consensus[k] = items[idx]
	}
	if refined, ok := est.Estimate(consensus); ok {
		bestModel = refined
	}

	result.Model = bestModel
	result.Inliers = bestInliers
	result.InlierCount = len(bestInliers)
	return result, nil
}
