package premium

import (
	"math"

	"github.com/suwandre/fundingarb/internal/models"
)

const (
	DefaultBaseRate  = 0.0001
	DefaultRateClamp = 0.0005

	highConfidenceBelow   = 0.0001
	mediumConfidenceBelow = 0.0003
)

// PredictRate applies the funding formula p + clamp(base − p, −clamp, +clamp).
func PredictRate(premium, base, clamp float64) float64 {
	clamp = math.Abs(clamp)
	adj := math.Max(-clamp, math.Min(clamp, base-premium))
	return premium + adj
}

// ConfidenceFor grades the gap between a predicted and a reported rate.
func ConfidenceFor(deviation float64) models.Confidence {
	deviation = math.Abs(deviation)
	switch {
	case deviation < highConfidenceBelow:
		return models.ConfidenceHigh
	case deviation < mediumConfidenceBelow:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
