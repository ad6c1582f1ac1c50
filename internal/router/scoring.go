package router

import "math"

// Confidence curve parameters. Intent-boosted skills start higher so that
// a total score of 2.0 reaches 0.80; corpus-only skills need 4.0.
const (
	boostedBase   = 0.50
	unboostedBase = 0.25
	scoreSlope    = 0.15
	confidenceCap = 0.95
)

// Uncertainty parameters.
const (
	noBoostPenalty      = 0.15
	ambiguityPenalty    = 0.10
	maxAmbiguityPenalty = 0.30
)

// Default gate thresholds.
const (
	DefaultConfidenceThreshold  = 0.8
	DefaultUncertaintyThreshold = 0.35
)

// Confidence maps a fused score to [0, 1]. weight scales the result and is
// treated as 1.0 when not positive.
func Confidence(score float64, hasIntentBoost bool, weight float64) float64 {
	base := unboostedBase
	if hasIntentBoost {
		base = boostedBase
	}
	c := math.Min(base+score*scoreSlope, confidenceCap)
	c = math.Min(c*effectiveWeight(weight), 1.0)
	return clamp01(c)
}

// Uncertainty estimates how thin the evidence for a skill is. It grows
// with few matches, the absence of an intent boost, and ambiguous keywords.
// The result is rounded to two decimals.
func Uncertainty(numMatches int, hasIntentBoost bool, numAmbiguous int) float64 {
	var u float64
	switch {
	case numMatches >= 5:
		u = 0.15
	case numMatches >= 3:
		u = 0.25
	case numMatches >= 1:
		u = 0.40
	default:
		u = 0.70
	}
	if !hasIntentBoost {
		u += noBoostPenalty
	}
	if numAmbiguous > 0 {
		u += math.Min(float64(numAmbiguous)*ambiguityPenalty, maxAmbiguityPenalty)
	}
	return round2(clamp01(u))
}

// Thresholds is the dual gate a recommendation must clear to be actionable.
type Thresholds struct {
	Confidence  float64 `json:"confidence" yaml:"confidence"`
	Uncertainty float64 `json:"uncertainty" yaml:"uncertainty"`
}

// DefaultThresholds returns the standard routing gate (0.8 / 0.35).
func DefaultThresholds() Thresholds {
	return Thresholds{
		Confidence:  DefaultConfidenceThreshold,
		Uncertainty: DefaultUncertaintyThreshold,
	}
}

// Passes reports whether confidence is high enough and uncertainty low
// enough at the same time.
func (t Thresholds) Passes(confidence, uncertainty float64) bool {
	return confidence >= t.Confidence && uncertainty <= t.Uncertainty
}

func effectiveWeight(w float64) float64 {
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return 1.0
	}
	return w
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
