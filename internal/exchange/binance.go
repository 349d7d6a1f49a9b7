package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

const (
	binanceBaseURL = "https://fapi.binance.com"

	// fundingInfo only lists symbols whose interval was adjusted; it changes rarely.
	binanceFundingInfoTTL = 10 * time.Minute
)

// BinanceAdapter reads USDⓈ-M perpetuals through the go-binance futures client.
type BinanceAdapter struct {
	client  *futures.Client
	baseURL string

	mu          sync.Mutex
	intervals   map[string]float64 // raw symbol -> fundingIntervalHours
	intervalsAt time.Time
	refreshing  bool
}

// NewBinanceAdapter builds the adapter. No credentials are needed for market data.
func NewBinanceAdapter(apiKey, baseURL string, timeout time.Duration) *BinanceAdapter {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := futures.NewClient(apiKey, "")
	client.HTTPClient = newHTTPClient(timeout)
	client.BaseURL = baseURL

	return &BinanceAdapter{
		client:    client,
		baseURL:   baseURL,
		intervals: make(map[string]float64),
	}
}

func (b *BinanceAdapter) Name() string {
	return "binance"
}

func (b *BinanceAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(raw).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance ticker %s: %w", raw, ErrSymbolNotListed)
	}

	last, err := parseFloat(stats[0].LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: failed to parse last price: %w", err)
	}
	volume, err := parseFloat(stats[0].QuoteVolume)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: failed to parse quote volume: %w", err)
	}

	return &models.Ticker{
		Exchange:    b.Name(),
		Symbol:      symbol,
		Last:        last,
		QuoteVolume: volume,
	}, nil
}

func (b *BinanceAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	res, err := b.client.NewDepthService().
		Symbol(raw).
		Limit(binanceDepthLimit(depth)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance depth: %w", err)
	}

	bids := make([][]string, len(res.Bids))
	for i, bid := range res.Bids {
		bids[i] = []string{bid.Price, bid.Quantity}
	}
	asks := make([][]string, len(res.Asks))
	for i, ask := range res.Asks {
		asks[i] = []string{ask.Price, ask.Quantity}
	}

	book := &models.OrderBook{Exchange: b.Name(), Symbol: symbol}
	if book.Bids, err = parseLevels(bids, decimal.NewFromInt(1)); err != nil {
		return nil, fmt.Errorf("binance depth: %w", err)
	}
	if book.Asks, err = parseLevels(asks, decimal.NewFromInt(1)); err != nil {
		return nil, fmt.Errorf("binance depth: %w", err)
	}
	return book, nil
}

// binanceDepthLimit rounds up to a limit the depth endpoint accepts.
func binanceDepthLimit(depth int) int {
	for _, allowed := range []int{5, 10, 20, 50, 100, 500, 1000} {
		if depth <= allowed {
			return allowed
		}
	}
	return 1000
}

func (b *BinanceAdapter) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	res, err := b.client.NewPremiumIndexService().Symbol(raw).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance funding rate: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("binance funding rate %s: %w", raw, ErrSymbolNotListed)
	}

	rate, err := parseFloat(res[0].LastFundingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate value: %w", err)
	}

	fr := &models.FundingRate{
		Exchange:    b.Name(),
		Symbol:      symbol,
		Rate:        rate,
		NextFunding: time.UnixMilli(res[0].NextFundingTime),
	}

	// Interval metadata is best effort; the scanner falls back to history spacing.
	if hours, ok := b.fundingIntervalHours(ctx, raw); ok {
		fr.IntervalHoursMeta = hours
	}
	return fr, nil
}

func (b *BinanceAdapter) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	res, err := b.client.NewFundingRateService().Symbol(raw).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance funding history: %w", err)
	}

	out := make([]models.FundingSettlement, 0, len(res))
	for _, r := range res {
		rate, err := parseFloat(r.FundingRate)
		if err != nil {
			continue
		}
		out = append(out, models.FundingSettlement{Rate: rate, Timestamp: time.UnixMilli(r.FundingTime)})
	}
	sortSettlements(out)
	return out, nil
}

func (b *BinanceAdapter) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance tickers: %w", err)
	}

	entries := make([]volumeEntry, 0, len(stats))
	for _, s := range stats {
		sym, ok := fromConcatenated(s.Symbol, "USDT")
		if !ok {
			continue
		}
		volume, err := parseFloat(s.QuoteVolume)
		if err != nil {
			continue
		}
		entries = append(entries, volumeEntry{symbol: sym, quoteVolume: volume})
	}
	return topByVolume(entries, limit), nil
}

// fundingIntervalHours looks the symbol up in the cached /fapi/v1/fundingInfo table.
// One caller refreshes an expired table while the others read the previous one.
func (b *BinanceAdapter) fundingIntervalHours(ctx context.Context, raw string) (float64, bool) {
	b.mu.Lock()
	refresh := !b.refreshing && (b.intervalsAt.IsZero() || time.Since(b.intervalsAt) > binanceFundingInfoTTL)
	if refresh {
		b.refreshing = true
	}
	b.mu.Unlock()

	if refresh {
		b.refreshIntervals(ctx)
	}

	b.mu.Lock()
	hours, ok := b.intervals[raw]
	b.mu.Unlock()
	return hours, ok && hours > 0
}

// refreshIntervals keeps the previous table when the request fails.
func (b *BinanceAdapter) refreshIntervals(ctx context.Context) {
	var info []struct {
		Symbol               string  `json:"symbol"`
		FundingIntervalHours float64 `json:"fundingIntervalHours"`
	}
	err := getJSON(ctx, b.client.HTTPClient, "binance funding info", b.baseURL+"/fapi/v1/fundingInfo", &info)

	var fresh map[string]float64
	if err == nil {
		fresh = make(map[string]float64, len(info))
		for _, i := range info {
			fresh[i.Symbol] = i.FundingIntervalHours
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshing = false
	b.intervalsAt = time.Now()
	if fresh != nil {
		b.intervals = fresh
	}
}
