// Basic calculation functions
package calc

import (
	"slices"
	"time"
)

type Number interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Mean of values after dropping trimPercent of the sorted values from each end.
// At least one value always remains.
func TrimmedMean[T Number](values []T, trimPercent float64) (mean T) {
	n := len(values)
	if n == 0 {
		return
	}
	trimPercent = max(trimPercent, 0)

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	trimCount := int(float64(n) * trimPercent)
	if trimCount*2 >= n {
		trimCount = (n - 1) / 2
	}
	kept := sorted[trimCount : n-trimCount]

	var sum float64
	for _, v := range kept {
		sum += float64(v)
	}
	mean = T(sum / float64(len(kept)))
	return
}

// Events per second from arrival gaps, extreme gaps trimmed
func RateFromGaps(gaps []time.Duration, trimPercent float64) (perSecond float64) {
	meanGap := TrimmedMean(gaps, trimPercent)
	if meanGap <= 0 {
		return
	}
	perSecond = float64(time.Second) / float64(meanGap)
	return
}
