package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

const mexcBaseURL = "https://contract.mexc.com"

type MexcAdapter struct {
	baseURL    string
	httpClient *http.Client

	// contract size per symbol, from /contract/detail; depth is quoted in contracts
	mu            sync.RWMutex
	contractSizes map[string]decimal.Decimal
}

type mexcTicker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice"`
	Bid1        float64 `json:"bid1"`
	Ask1        float64 `json:"ask1"`
	Amount24    float64 `json:"amount24"` // quote turnover
	FundingRate float64 `json:"fundingRate"`
	Timestamp   int64   `json:"timestamp"`
}

type mexcEnvelope[T any] struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Data    T    `json:"data"`
}

func NewMexcAdapter(baseURL string, timeout time.Duration) *MexcAdapter {
	if baseURL == "" {
		baseURL = mexcBaseURL
	}
	return &MexcAdapter{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    newHTTPClient(timeout),
		contractSizes: make(map[string]decimal.Decimal),
	}
}

func (m *MexcAdapter) Name() string {
	return "mexc"
}

// MEXC futures uses BTC_USDT, the rest of the app uses BTC/USDT.
func toMexcSymbol(symbol string) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + "_" + quote, nil
}

func fromMexcSymbol(raw string) (string, bool) {
	parts := strings.Split(raw, "_")
	if len(parts) != 2 {
		return "", false
	}
	return Canonical(parts[0], parts[1]), true
}

func (m *MexcAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	t, err := m.fetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &models.Ticker{
		Exchange:    m.Name(),
		Symbol:      symbol,
		Last:        t.LastPrice,
		QuoteVolume: t.Amount24,
	}, nil
}

func (m *MexcAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	ms, err := toMexcSymbol(symbol)
	if err != nil {
		return nil, err
	}

	contractSize, err := m.contractSize(ctx, ms)
	if err != nil {
		return nil, err
	}

	// MEXC depth entries are [price, contractCount, orderCount]
	var raw mexcEnvelope[struct {
		Asks [][]float64 `json:"asks"`
		Bids [][]float64 `json:"bids"`
	}]
	url := fmt.Sprintf("%s/api/v1/contract/depth/%s?limit=%d", m.baseURL, ms, depth)
	if err := getJSON(ctx, m.httpClient, "mexc depth", url, &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d", raw.Code)
	}

	return &models.OrderBook{
		Exchange: m.Name(),
		Symbol:   symbol,
		Bids:     mexcLevels(raw.Data.Bids, contractSize),
		Asks:     mexcLevels(raw.Data.Asks, contractSize),
	}, nil
}

func mexcLevels(rows [][]float64, contractSize decimal.Decimal) []models.OrderBookLevel {
	levels := make([]models.OrderBookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		levels = append(levels, models.OrderBookLevel{
			Price: decimal.NewFromFloat(row[0]),
			Size:  decimal.NewFromFloat(row[1]).Mul(contractSize),
		})
	}
	return levels
}

func (m *MexcAdapter) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	ms, err := toMexcSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var raw mexcEnvelope[struct {
		FundingRate    float64 `json:"fundingRate"`
		CollectCycle   float64 `json:"collectCycle"` // hours
		NextSettleTime int64   `json:"nextSettleTime"`
	}]
	url := fmt.Sprintf("%s/api/v1/contract/funding_rate/%s", m.baseURL, ms)
	if err := getJSON(ctx, m.httpClient, "mexc funding rate", url, &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d: %w", raw.Code, ErrSymbolNotListed)
	}

	return &models.FundingRate{
		Exchange:          m.Name(),
		Symbol:            symbol,
		Rate:              raw.Data.FundingRate,
		IntervalHoursMeta: raw.Data.CollectCycle,
		NextFunding:       time.UnixMilli(raw.Data.NextSettleTime),
	}, nil
}

func (m *MexcAdapter) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	ms, err := toMexcSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var raw mexcEnvelope[struct {
		ResultList []struct {
			FundingRate float64 `json:"fundingRate"`
			SettleTime  int64   `json:"settleTime"`
		} `json:"resultList"`
	}]
	url := fmt.Sprintf("%s/api/v1/contract/funding_rate/history?symbol=%s&page_num=1&page_size=%d", m.baseURL, ms, limit)
	if err := getJSON(ctx, m.httpClient, "mexc funding history", url, &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d: %w", raw.Code, ErrSymbolNotListed)
	}

	out := make([]models.FundingSettlement, 0, len(raw.Data.ResultList))
	for _, r := range raw.Data.ResultList {
		out = append(out, models.FundingSettlement{Rate: r.FundingRate, Timestamp: time.UnixMilli(r.SettleTime)})
	}
	sortSettlements(out)
	return out, nil
}

func (m *MexcAdapter) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	var raw mexcEnvelope[[]mexcTicker]
	if err := getJSON(ctx, m.httpClient, "mexc tickers", m.baseURL+"/api/v1/contract/ticker", &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d", raw.Code)
	}

	ranked := make([]volumeEntry, 0, len(raw.Data))
	for _, t := range raw.Data {
		sym, ok := fromMexcSymbol(t.Symbol)
		if !ok {
			continue
		}
		ranked = append(ranked, volumeEntry{symbol: sym, quoteVolume: t.Amount24})
	}
	return topByVolume(ranked, limit), nil
}

func (m *MexcAdapter) fetchTicker(ctx context.Context, symbol string) (*mexcTicker, error) {
	ms, err := toMexcSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var raw mexcEnvelope[mexcTicker]
	url := fmt.Sprintf("%s/api/v1/contract/ticker?symbol=%s", m.baseURL, ms)
	if err := getJSON(ctx, m.httpClient, "mexc ticker", url, &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d: %w", raw.Code, ErrSymbolNotListed)
	}
	return &raw.Data, nil
}

func (m *MexcAdapter) contractSize(ctx context.Context, ms string) (decimal.Decimal, error) {
	m.mu.RLock()
	size, ok := m.contractSizes[ms]
	m.mu.RUnlock()
	if ok {
		return size, nil
	}

	var raw mexcEnvelope[struct {
		ContractSize float64 `json:"contractSize"`
	}]
	url := fmt.Sprintf("%s/api/v1/contract/detail?symbol=%s", m.baseURL, ms)
	if err := getJSON(ctx, m.httpClient, "mexc contract detail", url, &raw); err != nil {
		return decimal.Zero, err
	}
	if !raw.Success || raw.Code != 0 || raw.Data.ContractSize <= 0 {
		return decimal.Zero, fmt.Errorf("mexc contract detail %s: %w", ms, ErrSymbolNotListed)
	}

	size = decimal.NewFromFloat(raw.Data.ContractSize)
	m.mu.Lock()
	m.contractSizes[ms] = size
	m.mu.Unlock()
	return size, nil
}

type volumeEntry struct {
	symbol      string
	quoteVolume float64
}

// topByVolume keeps USDT-quoted, non-BUSD symbols with positive volume, highest first.
func topByVolume(entries []volumeEntry, limit int) []string {
	filtered := entries[:0]
	for _, e := range entries {
		base, quote, err := SplitSymbol(e.symbol)
		if err != nil || quote != "USDT" || strings.Contains(base, "BUSD") || e.quoteVolume <= 0 {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].quoteVolume > filtered[j].quoteVolume
	})

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	out := make([]string, len(filtered))
	for i, e := range filtered {
		out[i] = e.symbol
	}
	return out
}

func sortSettlements(s []models.FundingSettlement) {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
}
