package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// EstimateScale returns the uniform factor by which set b is scaled relative
// to set a: sqrt(sum |b[i]-cb|^2 / sum |a[i]-ca|^2).
func EstimateScale(a, b []r3.Vector) (float64, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return 0, err
	}
	return scaleFromSpread(a, b, Centroid(a), Centroid(b))
}

// EstimateScaleWithCentroids is EstimateScale with caller supplied centroids.
func EstimateScaleWithCentroids(a, b []r3.Vector, ca, cb r3.Vector) (float64, error) {
	if err := checkPairs(a, b, MinCorrespondences); err != nil {
		return 0, err
	}
	return scaleFromSpread(a, b, ca, cb)
}

func scaleFromSpread(a, b []r3.Vector, ca, cb r3.Vector) (float64, error) {
	var sa, sb float64
	for i := range a {
		sa += a[i].Sub(ca).Norm2()
		sb += b[i].Sub(cb).Norm2()
	}
	if sa == 0 {
		return 0, fmt.Errorf("%w: first point set has no spread", ErrDegenerate)
	}
	return math.Sqrt(sb / sa), nil
}
