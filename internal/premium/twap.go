package premium

import (
	"github.com/suwandre/fundingarb/internal/models"
)

// TWAP weights samples 1..n from oldest to newest and divides by n(n+1)/2.
func TWAP(samples []models.PremiumSample) (float64, error) {
	n := len(samples)
	if n == 0 {
		return 0, ErrNoTWAP
	}

	var weighted float64
	for i, s := range samples {
		weighted += float64(i+1) * s.PremiumIndex
	}
	return weighted / (float64(n) * float64(n+1) / 2), nil
}
