package reputation

import "github.com/SoraOracle/SoraOracle-sub003/internal/model"

// TrustModel converts a data point into its weight in the consensus vote.
// Pluggable so the statistical model and a reputation-weighted model can be
// swapped without touching the engine.
type TrustModel interface {
	Name() string
	Weight(dp model.DataPoint, rec model.ReputationRecord) float64
}

// StaticTrust weights every data point by its raw reported confidence.
// This is the default model.
type StaticTrust struct{}

// Name implements TrustModel.
func (StaticTrust) Name() string { return "static" }

// Weight implements TrustModel.
func (StaticTrust) Weight(dp model.DataPoint, _ model.ReputationRecord) float64 {
	return dp.Confidence
}

// ReputationTrust multiplies the reported confidence by the source's
// historical success rate, so sources that have been right before carry more
// weight. Sources with no history are weighted by raw confidence alone
// rather than zeroed out.
type ReputationTrust struct{}

// Name implements TrustModel.
func (ReputationTrust) Name() string { return "reputation" }

// Weight implements TrustModel.
func (ReputationTrust) Weight(dp model.DataPoint, rec model.ReputationRecord) float64 {
	if rec.TotalQueries == 0 {
		return dp.Confidence
	}
	return dp.Confidence * rec.SuccessRate
}

// ModelByName returns the trust model for a config string, defaulting to
// StaticTrust for unrecognized names.
func ModelByName(name string) TrustModel {
	if name == "reputation" {
		return ReputationTrust{}
	}
	return StaticTrust{}
}
