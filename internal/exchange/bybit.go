package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

const (
	bybitBaseURL = "https://api.bybit.com"

	// retCode for "params error", which is what an unknown symbol produces
	bybitParamsError = 10001
)

// BybitAdapter reads linear perpetuals through the bybit.go.api v5 client.
type BybitAdapter struct {
	client *bybit.Client

	mu        sync.Mutex
	intervals map[string]float64 // raw symbol -> funding interval hours
}

type bybitTicker struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	Turnover24h     string `json:"turnover24h"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"` // Unix ms string
}

type bybitTickerList struct {
	List []bybitTicker `json:"list"`
}

type bybitOrderBook struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

type bybitInstrumentList struct {
	List []struct {
		Symbol          string `json:"symbol"`
		FundingInterval int    `json:"fundingInterval"` // minutes
	} `json:"list"`
}

type bybitFundingList struct {
	List []struct {
		FundingRate          string `json:"fundingRate"`
		FundingRateTimestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

func NewBybitAdapter(apiKey, baseURL string, timeout time.Duration) *BybitAdapter {
	if baseURL == "" {
		baseURL = bybitBaseURL
	}
	client := bybit.NewBybitHttpClient(apiKey, "", bybit.WithBaseURL(strings.TrimRight(baseURL, "/")))
	client.HTTPClient = newHTTPClient(timeout)

	return &BybitAdapter{
		client:    client,
		intervals: make(map[string]float64),
	}
}

func (b *BybitAdapter) Name() string {
	return "bybit"
}

func (b *BybitAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	t, err := b.fetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	last, err := parseFloat(t.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("bybit ticker: failed to parse last price: %w", err)
	}
	turnover, err := parseFloat(t.Turnover24h)
	if err != nil {
		return nil, fmt.Errorf("bybit ticker: failed to parse turnover: %w", err)
	}

	return &models.Ticker{
		Exchange:    b.Name(),
		Symbol:      symbol,
		Last:        last,
		QuoteVolume: turnover,
	}, nil
}

func (b *BybitAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   raw,
		"limit":    depth,
	}
	var res bybitOrderBook
	if err := b.call(ctx, "orderbook", raw, func(ctx context.Context) (*bybit.ServerResponse, error) {
		return b.client.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	}, &res); err != nil {
		return nil, err
	}

	book := &models.OrderBook{Exchange: b.Name(), Symbol: symbol}
	if book.Bids, err = parseLevels(res.Bids, decimal.NewFromInt(1)); err != nil {
		return nil, fmt.Errorf("bybit orderbook: %w", err)
	}
	if book.Asks, err = parseLevels(res.Asks, decimal.NewFromInt(1)); err != nil {
		return nil, fmt.Errorf("bybit orderbook: %w", err)
	}
	return book, nil
}

func (b *BybitAdapter) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	t, err := b.fetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	rate, err := strconv.ParseFloat(t.FundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate: %w", err)
	}
	next, err := parseMillis(t.NextFundingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse next funding time: %w", err)
	}

	fr := &models.FundingRate{
		Exchange:    b.Name(),
		Symbol:      symbol,
		Rate:        rate,
		NextFunding: next,
	}
	if hours, ok := b.fundingIntervalHours(ctx, t.Symbol); ok {
		fr.IntervalHoursMeta = hours
	}
	return fr, nil
}

func (b *BybitAdapter) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   raw,
		"limit":    limit,
	}
	var res bybitFundingList
	if err := b.call(ctx, "funding history", raw, func(ctx context.Context) (*bybit.ServerResponse, error) {
		return b.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
	}, &res); err != nil {
		return nil, err
	}

	out := make([]models.FundingSettlement, 0, len(res.List))
	for _, r := range res.List {
		rate, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			continue
		}
		ts, err := parseMillis(r.FundingRateTimestamp)
		if err != nil {
			continue
		}
		out = append(out, models.FundingSettlement{Rate: rate, Timestamp: ts})
	}
	sortSettlements(out)
	return out, nil
}

func (b *BybitAdapter) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	params := map[string]interface{}{"category": "linear"}
	var res bybitTickerList
	if err := b.call(ctx, "tickers", "", func(ctx context.Context) (*bybit.ServerResponse, error) {
		return b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	}, &res); err != nil {
		return nil, err
	}

	entries := make([]volumeEntry, 0, len(res.List))
	for _, t := range res.List {
		sym, ok := fromConcatenated(t.Symbol, "USDT")
		if !ok {
			continue
		}
		turnover, err := parseFloat(t.Turnover24h)
		if err != nil {
			continue
		}
		entries = append(entries, volumeEntry{symbol: sym, quoteVolume: turnover})
	}
	return topByVolume(entries, limit), nil
}

func (b *BybitAdapter) fetchTicker(ctx context.Context, symbol string) (*bybitTicker, error) {
	raw, err := concatenated(symbol)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   raw,
	}
	var res bybitTickerList
	if err := b.call(ctx, "ticker", raw, func(ctx context.Context) (*bybit.ServerResponse, error) {
		return b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	}, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("bybit ticker %s: %w", raw, ErrSymbolNotListed)
	}
	return &res.List[0], nil
}

// fundingIntervalHours reads fundingInterval from the instrument info, caching per symbol.
func (b *BybitAdapter) fundingIntervalHours(ctx context.Context, raw string) (float64, bool) {
	b.mu.Lock()
	hours, ok := b.intervals[raw]
	b.mu.Unlock()
	if ok {
		return hours, hours > 0
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   raw,
	}
	var res bybitInstrumentList
	if err := b.call(ctx, "instrument", raw, func(ctx context.Context) (*bybit.ServerResponse, error) {
		return b.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	}, &res); err != nil {
		return 0, false
	}
	if len(res.List) == 0 || res.List[0].FundingInterval <= 0 {
		return 0, false
	}

	hours = float64(res.List[0].FundingInterval) / 60
	b.mu.Lock()
	b.intervals[raw] = hours
	b.mu.Unlock()
	return hours, true
}

// call runs one v5 endpoint and decodes its result object into out.
func (b *BybitAdapter) call(ctx context.Context, op, raw string, endpoint func(context.Context) (*bybit.ServerResponse, error), out any) error {
	resp, err := endpoint(ctx)
	if err != nil {
		return fmt.Errorf("bybit %s: %w", op, err)
	}
	if resp.RetCode != 0 {
		if resp.RetCode == bybitParamsError && raw != "" {
			return fmt.Errorf("bybit %s %s: %s: %w", op, raw, resp.RetMsg, ErrSymbolNotListed)
		}
		return fmt.Errorf("bybit %s: retCode %d: %s", op, resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("bybit %s: failed to marshal result: %w", op, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("bybit %s: failed to parse result: %w", op, err)
	}
	return nil
}
