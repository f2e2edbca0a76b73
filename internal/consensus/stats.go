package consensus

import (
	"math"
	"sort"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// DefaultOutlierK is the canonical MAD multiplier.
const DefaultOutlierK = 2.0

// median returns the median of values: the mean of the two middle values
// for even counts. values must be non-empty.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mad returns the median absolute deviation of values from their median.
func mad(values []float64, med float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	return median(devs)
}

// FilterOutliers splits data points into inliers and outliers using MAD.
// A point is an outlier when its deviation from the median exceeds k times
// the MAD. A zero MAD collapses the threshold, so in that case only points
// that differ from the median at all are flagged; when every point agrees
// nothing is flagged.
func FilterOutliers(dps []model.DataPoint, k float64) (inliers, outliers []model.DataPoint) {
	if len(dps) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultOutlierK
	}

	values := make([]float64, len(dps))
	for i, dp := range dps {
		values[i] = dp.OutcomeValue()
	}

	med := median(values)
	m := mad(values, med)

	for i, dp := range dps {
		dev := math.Abs(values[i] - med)

		var isOutlier bool
		if m == 0 {
			isOutlier = dev != 0
		} else {
			isOutlier = dev > k*m
		}

		if isOutlier {
			outliers = append(outliers, dp)
		} else {
			inliers = append(inliers, dp)
		}
	}

	return inliers, outliers
}

// Vote is the weighted tally over the inlier set.
type Vote struct {
	Outcome    bool
	Confidence float64
	Strength   float64
	YesWeight  float64
	NoWeight   float64
}

// WeightedVote computes the consensus outcome over inliers, weighting each
// data point through the trust model. Returns false when the total weight
// is zero and no decision is possible.
func WeightedVote(inliers []model.DataPoint, weight func(model.DataPoint) float64) (Vote, bool) {
	if len(inliers) == 0 {
		return Vote{}, false
	}

	var v Vote
	for _, dp := range inliers {
		w := weight(dp)
		if w < 0 {
			w = 0
		}
		if dp.Outcome {
			v.YesWeight += w
		} else {
			v.NoWeight += w
		}
	}

	total := v.YesWeight + v.NoWeight
	if total == 0 {
		return Vote{}, false
	}

	v.Outcome = v.YesWeight > v.NoWeight
	v.Confidence = total / float64(len(inliers))
	v.Strength = math.Max(v.YesWeight, v.NoWeight) / total
	return v, true
}
