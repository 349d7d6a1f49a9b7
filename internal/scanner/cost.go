package scanner

import "math"

const (
	DefaultTakerFee = 0.0005

	// BreakevenNever is reported when the rate difference is zero.
	BreakevenNever = 999.0
)

// FeeSchedule holds taker fee rates per exchange.
type FeeSchedule struct {
	Rates   map[string]float64
	Default float64
}

func DefaultFees() FeeSchedule {
	return FeeSchedule{
		Rates: map[string]float64{
			"binance":     0.0005,
			"okx":         0.0005,
			"bybit":       0.00055,
			"hyperliquid": 0.00035,
		},
		Default: DefaultTakerFee,
	}
}

// Taker returns the exchange's taker fee, or the default for unknown exchanges.
func (f FeeSchedule) Taker(exchange string) float64 {
	if r, ok := f.Rates[exchange]; ok {
		return r
	}
	if f.Default > 0 {
		return f.Default
	}
	return DefaultTakerFee
}

// Costs are the round-trip entry costs of one opportunity, as fractions.
type Costs struct {
	Fee    float64
	Spread float64 // (ask − bid) / bid; negative when the legs cross in our favour
	Total  float64 // Fee + |Spread|
}

// Cost prices opening both legs: buying the long leg at ask and selling the short leg
// at bid.
func Cost(longTaker, shortTaker, ask, bid float64) Costs {
	c := Costs{Fee: longTaker + shortTaker}
	if bid > 0 {
		c.Spread = (ask - bid) / bid
	}
	c.Total = c.Fee + math.Abs(c.Spread)
	return c
}

// Breakeven is the number of settlements needed to recover totalCost.
func Breakeven(totalCost, rateDiff float64) float64 {
	if rateDiff == 0 {
		return BreakevenNever
	}
	return totalCost / math.Abs(rateDiff)
}

// APR annualizes a per-settlement rate difference, in percent.
func APR(rateDiff, intervalHours float64) float64 {
	if intervalHours <= 0 {
		intervalHours = DefaultIntervalHours
	}
	return rateDiff * (24 / intervalHours) * 365 * 100
}
