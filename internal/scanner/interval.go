package scanner

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/internal/exchange"
	"github.com/suwandre/fundingarb/internal/models"
)

const (
	DefaultIntervalHours = 8.0

	// declared intervals above this are milliseconds
	intervalMillisThreshold = 100.0

	minInferredHours = 0.5
	maxInferredHours = 24.0
)

// ResolveInterval decides the settlement interval in hours for one funding answer:
// the declared interval (milliseconds when > 100), else the instrument's hours
// field, else 8. A result of exactly 8 or a non-positive one is checked against the
// spacing of the last two settlements, which wins when it lies in [0.5h, 24h].
func ResolveInterval(ctx context.Context, ex exchange.Exchange, symbol string, rate *models.FundingRate, historyLimit int) float64 {
	hours := DefaultIntervalHours
	switch {
	case rate.IntervalRaw != 0:
		hours = rate.IntervalRaw
		if hours > intervalMillisThreshold {
			hours = hours / 1000 / 3600
		}
	case rate.IntervalHoursMeta != 0:
		hours = rate.IntervalHoursMeta
	}

	if hours == DefaultIntervalHours || hours <= 0 {
		if inferred, ok := inferInterval(ctx, ex, symbol, historyLimit); ok {
			hours = inferred
		}
	}

	if hours <= 0 {
		return DefaultIntervalHours
	}
	return hours
}

func inferInterval(ctx context.Context, ex exchange.Exchange, symbol string, limit int) (float64, bool) {
	if limit < 2 {
		limit = 2
	}
	history, err := ex.FetchFundingRateHistory(ctx, symbol, limit)
	if err != nil {
		log.Debug().Err(err).Str("exchange", ex.Name()).Str("symbol", symbol).Msg("funding history unavailable")
		return 0, false
	}
	return IntervalFromHistory(history)
}

// IntervalFromHistory infers hours from the last two settlements, rounded to 0.1h.
func IntervalFromHistory(history []models.FundingSettlement) (float64, bool) {
	n := len(history)
	if n < 2 {
		return 0, false
	}
	diff := history[n-1].Timestamp.Sub(history[n-2].Timestamp).Hours()
	if diff < minInferredHours || diff > maxInferredHours {
		return 0, false
	}
	return math.Round(diff*10) / 10, true
}
