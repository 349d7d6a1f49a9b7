package scanner

import (
	"time"

	"github.com/suwandre/fundingarb/internal/models"
)

// MockOpportunities is the canned result served in mock mode, for demos without
// network access.
func MockOpportunities(now time.Time) []models.FundingOpportunity {
	return []models.FundingOpportunity{{
		Symbol:               "BTC/USDT",
		LongExchange:         "binance",
		ShortExchange:        "bybit",
		LongAskPrice:         42150.5,
		ShortBidPrice:        42148.2,
		RateDiff:             0.0006,
		IntervalHours:        8,
		SpreadPct:            0.005,
		FeePct:               0.11,
		TotalCostPct:         0.115,
		BreakevenSettlements: 1.9,
		ExecutableDepth:      120.5,
		APR:                  25.8,
		DiscoveredAt:         now.UTC(),
	}}
}
