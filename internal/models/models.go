package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookLevel is one price level of a book side.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"` // base currency quantity
}

// OrderBook holds both sides best-price-first: bids descending, asks ascending.
type OrderBook struct {
	Exchange string           `json:"exchange"`
	Symbol   string           `json:"symbol"`
	Bids     []OrderBookLevel `json:"bids"`
	Asks     []OrderBookLevel `json:"asks"`
}

type Ticker struct {
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"`
}

// FundingRate is the raw funding answer of one exchange. The interval fields carry
// whatever the venue declares; resolution into hours happens in the scanner.
type FundingRate struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Rate     float64 `json:"rate"`

	// Declared funding interval on the instrument. Milliseconds when > 100, hours otherwise.
	IntervalRaw float64 `json:"interval_raw,omitempty"`
	// Nested instrument metadata expressed directly in hours.
	IntervalHoursMeta float64 `json:"interval_hours_meta,omitempty"`

	NextFunding time.Time `json:"next_funding"`
}

// FundingSettlement is one past settlement from the funding history.
type FundingSettlement struct {
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

type FundingQuote struct {
	Exchange      string    `json:"exchange"`
	Symbol        string    `json:"symbol"`
	ReportedRate  float64   `json:"reported_rate"`
	IntervalHours float64   `json:"settlement_interval_hours"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// PremiumSample is immutable once created.
type PremiumSample struct {
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	PremiumIndex float64   `json:"premium_index"`
	CapturedAt   time.Time `json:"captured_at"`
}

// FundingOpportunity is one ranked row of a scan cycle. The *Pct fields are percentages.
type FundingOpportunity struct {
	Symbol               string    `json:"symbol"`
	LongExchange         string    `json:"long_exchange"`
	ShortExchange        string    `json:"short_exchange"`
	LongAskPrice         float64   `json:"long_ask_price"`
	ShortBidPrice        float64   `json:"short_bid_price"`
	RateDiff             float64   `json:"rate_diff"`
	IntervalHours        float64   `json:"settlement_interval_hours"`
	SpreadPct            float64   `json:"spread_pct"`
	FeePct               float64   `json:"fee_pct"`
	TotalCostPct         float64   `json:"total_cost_pct"`
	BreakevenSettlements float64   `json:"breakeven_settlements"`
	ExecutableDepth      float64   `json:"executable_depth"`
	APR                  float64   `json:"apr"`
	DiscoveredAt         time.Time `json:"discovered_at"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)
