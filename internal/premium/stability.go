package premium

import (
	"math"

	"github.com/suwandre/fundingarb/internal/models"
)

const (
	minStabilitySamples = 10
	trendThreshold      = 0.00001
	stabilityStdScale   = 0.001
)

// Stability summarizes a premium window.
type Stability struct {
	Mean        float64      `json:"mean"`
	Std         float64      `json:"std"`
	Min         float64      `json:"min"`
	Max         float64      `json:"max"`
	Range       float64      `json:"range"`
	Slope       float64      `json:"slope"`
	Trend       models.Trend `json:"trend"`
	Score       float64      `json:"stability_score"`
	SampleCount int          `json:"sample_count"`
}

// Analyze computes population statistics, the least-squares slope per sample step
// and a stability score of max(0, 1 − std/0.001). Fewer than 10 samples is
// ErrInsufficientData.
func Analyze(samples []models.PremiumSample) (Stability, error) {
	n := len(samples)
	if n < minStabilitySamples {
		return Stability{}, ErrInsufficientData
	}

	st := Stability{
		Min:         math.Inf(1),
		Max:         math.Inf(-1),
		SampleCount: n,
	}

	var sum float64
	for _, s := range samples {
		v := s.PremiumIndex
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = sum / float64(n)
	st.Range = st.Max - st.Min

	// x = 0..n-1
	xMean := float64(n-1) / 2
	var variance, sxy, sxx float64
	for i, s := range samples {
		dy := s.PremiumIndex - st.Mean
		dx := float64(i) - xMean
		variance += dy * dy
		sxy += dx * dy
		sxx += dx * dx
	}
	st.Std = math.Sqrt(variance / float64(n))
	st.Slope = sxy / sxx

	switch {
	case st.Slope > trendThreshold:
		st.Trend = models.TrendUp
	case st.Slope < -trendThreshold:
		st.Trend = models.TrendDown
	default:
		st.Trend = models.TrendFlat
	}

	st.Score = math.Max(0, 1-st.Std/stabilityStdScale)
	return st, nil
}
