package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

func dp(id string, outcome bool, confidence float64) model.DataPoint {
	return model.DataPoint{SourceID: id, Outcome: outcome, Confidence: confidence}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"single", []float64{1}, 1},
		{"odd", []float64{0, 1, 1}, 1},
		{"even_split", []float64{0, 0, 1, 1}, 0.5},
		{"unsorted", []float64{1, 0, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, median(tt.values), 1e-9)
		})
	}
}

func TestFilterOutliersUnanimity(t *testing.T) {
	dps := []model.DataPoint{
		dp("a", true, 0.9), dp("b", true, 0.8), dp("c", true, 0.95),
	}

	inliers, outliers := FilterOutliers(dps, 2.0)
	assert.Len(t, inliers, 3)
	assert.Empty(t, outliers)
}

func TestFilterOutliersSingleDissenter(t *testing.T) {
	// Nine yes, one confident no. Median is 1, MAD is 0, so the dissenter
	// is the only point deviating from the median and gets excluded.
	var dps []model.DataPoint
	for i := 0; i < 9; i++ {
		dps = append(dps, dp(string(rune('a'+i)), true, 0.9))
	}
	dps = append(dps, dp("dissenter", false, 0.95))

	inliers, outliers := FilterOutliers(dps, 2.0)
	require.Len(t, outliers, 1)
	assert.Equal(t, "dissenter", outliers[0].SourceID)
	assert.Len(t, inliers, 9)
}

func TestFilterOutliersEvenSplit(t *testing.T) {
	// Five yes, five no: median 0.5, every deviation 0.5, MAD 0.5. The
	// threshold is k*MAD = 1.0, so no point is excluded.
	var dps []model.DataPoint
	for i := 0; i < 5; i++ {
		dps = append(dps, dp(string(rune('a'+i)), true, 0.9))
	}
	for i := 0; i < 5; i++ {
		dps = append(dps, dp(string(rune('f'+i)), false, 0.9))
	}

	inliers, outliers := FilterOutliers(dps, 2.0)
	assert.Len(t, inliers, 10)
	assert.Empty(t, outliers)
}

func TestFilterOutliersEmpty(t *testing.T) {
	inliers, outliers := FilterOutliers(nil, 2.0)
	assert.Empty(t, inliers)
	assert.Empty(t, outliers)
}

func TestFilterOutliersSinglePoint(t *testing.T) {
	inliers, outliers := FilterOutliers([]model.DataPoint{dp("a", false, 0.6)}, 2.0)
	assert.Len(t, inliers, 1)
	assert.Empty(t, outliers)
}

func TestWeightedVote(t *testing.T) {
	weightByConfidence := func(d model.DataPoint) float64 { return d.Confidence }

	t.Run("majority_yes", func(t *testing.T) {
		v, ok := WeightedVote([]model.DataPoint{
			dp("a", true, 0.9), dp("b", true, 0.8), dp("c", false, 0.5),
		}, weightByConfidence)
		require.True(t, ok)
		assert.True(t, v.Outcome)
		assert.InDelta(t, 1.7, v.YesWeight, 1e-9)
		assert.InDelta(t, 0.5, v.NoWeight, 1e-9)
		assert.InDelta(t, 2.2/3, v.Confidence, 1e-9)
		assert.InDelta(t, 1.7/2.2, v.Strength, 1e-9)
	})

	t.Run("majority_no", func(t *testing.T) {
		v, ok := WeightedVote([]model.DataPoint{
			dp("a", false, 0.9), dp("b", true, 0.3),
		}, weightByConfidence)
		require.True(t, ok)
		assert.False(t, v.Outcome)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := WeightedVote(nil, weightByConfidence)
		assert.False(t, ok)
	})

	t.Run("zero_total_weight", func(t *testing.T) {
		_, ok := WeightedVote([]model.DataPoint{dp("a", true, 0)}, weightByConfidence)
		assert.False(t, ok)
	})

	t.Run("negative_weights_clamped", func(t *testing.T) {
		v, ok := WeightedVote([]model.DataPoint{
			dp("a", true, 0.5), dp("b", false, 0.2),
		}, func(d model.DataPoint) float64 {
			if !d.Outcome {
				return -1
			}
			return d.Confidence
		})
		require.True(t, ok)
		assert.True(t, v.Outcome)
		assert.Zero(t, v.NoWeight)
	})
}
