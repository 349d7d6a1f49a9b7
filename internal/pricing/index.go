package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNoIndex = errors.New("no usable spot sample for index")

// SpotIndexSample is one exchange's contribution to the spot index.
type SpotIndexSample struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"quote_volume"`
}

// SpotIndex is the quote-volume weighted mean of usable samples. Samples with a
// non-positive price or volume are skipped.
func SpotIndex(samples []SpotIndexSample) (float64, error) {
	weighted := decimal.Zero
	totalVolume := decimal.Zero
	n := 0

	for _, s := range samples {
		if s.Price <= 0 || s.Volume <= 0 {
			continue
		}
		p := decimal.NewFromFloat(s.Price)
		v := decimal.NewFromFloat(s.Volume)
		weighted = weighted.Add(p.Mul(v))
		totalVolume = totalVolume.Add(v)
		n++
	}

	if n == 0 {
		return 0, ErrNoIndex
	}
	return weighted.Div(totalVolume).InexactFloat64(), nil
}
