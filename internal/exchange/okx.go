package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

const okxBaseURL = "https://www.okx.com"

// OkxAdapter reads USDT-margined perpetual swaps from the OKX v5 REST API.
type OkxAdapter struct {
	baseURL    string
	httpClient *http.Client

	// ctVal per instrument; books and volumes are quoted in contracts
	mu            sync.RWMutex
	contractSizes map[string]decimal.Decimal
}

type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// okx uses "51001" for an instrument that does not exist
const okxInstrumentNotFound = "51001"

func (e okxEnvelope[T]) err(op, instID string) error {
	if e.Code == "0" {
		return nil
	}
	if e.Code == okxInstrumentNotFound {
		return fmt.Errorf("okx %s %s: %s: %w", op, instID, e.Msg, ErrSymbolNotListed)
	}
	return fmt.Errorf("okx %s: code %s: %s", op, e.Code, e.Msg)
}

type okxTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	VolCcy24h string `json:"volCcy24h"` // base currency
}

func NewOkxAdapter(baseURL string, timeout time.Duration) *OkxAdapter {
	if baseURL == "" {
		baseURL = okxBaseURL
	}
	return &OkxAdapter{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    newHTTPClient(timeout),
		contractSizes: make(map[string]decimal.Decimal),
	}
}

func (o *OkxAdapter) Name() string {
	return "okx"
}

// OKX swaps are named BTC-USDT-SWAP.
func toOkxInstID(symbol string) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + "-" + quote + "-SWAP", nil
}

func fromOkxInstID(instID string) (string, bool) {
	parts := strings.Split(instID, "-")
	if len(parts) != 3 || parts[2] != "SWAP" {
		return "", false
	}
	return Canonical(parts[0], parts[1]), true
}

func (o *OkxAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	instID, err := toOkxInstID(symbol)
	if err != nil {
		return nil, err
	}

	var raw okxEnvelope[okxTicker]
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", o.baseURL, instID)
	if err := getJSON(ctx, o.httpClient, "okx ticker", url, &raw); err != nil {
		return nil, err
	}
	if err := raw.err("ticker", instID); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("okx ticker %s: %w", instID, ErrSymbolNotListed)
	}

	last, volume, err := okxTickerValues(raw.Data[0])
	if err != nil {
		return nil, err
	}
	return &models.Ticker{
		Exchange:    o.Name(),
		Symbol:      symbol,
		Last:        last,
		QuoteVolume: volume,
	}, nil
}

// okxTickerValues returns the last price and 24h quote volume (volCcy24h × last).
func okxTickerValues(t okxTicker) (float64, float64, error) {
	last, err := parseFloat(t.Last)
	if err != nil {
		return 0, 0, fmt.Errorf("okx ticker: failed to parse last price: %w", err)
	}
	baseVol, err := parseFloat(t.VolCcy24h)
	if err != nil {
		return 0, 0, fmt.Errorf("okx ticker: failed to parse volume: %w", err)
	}
	return last, baseVol * last, nil
}

func (o *OkxAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	instID, err := toOkxInstID(symbol)
	if err != nil {
		return nil, err
	}

	ctVal, err := o.contractSize(ctx, instID)
	if err != nil {
		return nil, err
	}

	// rows are [price, size, liquidatedOrders, orderCount]
	var raw okxEnvelope[struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	}]
	url := fmt.Sprintf("%s/api/v5/market/books?instId=%s&sz=%d", o.baseURL, instID, depth)
	if err := getJSON(ctx, o.httpClient, "okx books", url, &raw); err != nil {
		return nil, err
	}
	if err := raw.err("books", instID); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("okx books %s: empty response", instID)
	}

	book := &models.OrderBook{Exchange: o.Name(), Symbol: symbol}
	if book.Bids, err = parseLevels(raw.Data[0].Bids, ctVal); err != nil {
		return nil, fmt.Errorf("okx books: %w", err)
	}
	if book.Asks, err = parseLevels(raw.Data[0].Asks, ctVal); err != nil {
		return nil, fmt.Errorf("okx books: %w", err)
	}
	return book, nil
}

func (o *OkxAdapter) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	instID, err := toOkxInstID(symbol)
	if err != nil {
		return nil, err
	}

	var raw okxEnvelope[struct {
		FundingRate     string `json:"fundingRate"`
		FundingTime     string `json:"fundingTime"`
		NextFundingTime string `json:"nextFundingTime"`
	}]
	url := fmt.Sprintf("%s/api/v5/public/funding-rate?instId=%s", o.baseURL, instID)
	if err := getJSON(ctx, o.httpClient, "okx funding rate", url, &raw); err != nil {
		return nil, err
	}
	if err := raw.err("funding rate", instID); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("okx funding rate %s: %w", instID, ErrSymbolNotListed)
	}

	d := raw.Data[0]
	rate, err := parseFloat(d.FundingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate: %w", err)
	}
	current, err := parseMillis(d.FundingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding time: %w", err)
	}
	next, err := parseMillis(d.NextFundingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse next funding time: %w", err)
	}

	fr := &models.FundingRate{
		Exchange:    o.Name(),
		Symbol:      symbol,
		Rate:        rate,
		NextFunding: current,
	}
	// The gap between the two settlement stamps is the interval, in milliseconds.
	if !current.IsZero() && next.After(current) {
		fr.IntervalRaw = float64(next.Sub(current).Milliseconds())
	}
	return fr, nil
}

func (o *OkxAdapter) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	instID, err := toOkxInstID(symbol)
	if err != nil {
		return nil, err
	}

	var raw okxEnvelope[struct {
		FundingRate  string `json:"fundingRate"`
		RealizedRate string `json:"realizedRate"`
		FundingTime  string `json:"fundingTime"`
	}]
	url := fmt.Sprintf("%s/api/v5/public/funding-rate-history?instId=%s&limit=%d", o.baseURL, instID, limit)
	if err := getJSON(ctx, o.httpClient, "okx funding history", url, &raw); err != nil {
		return nil, err
	}
	if err := raw.err("funding history", instID); err != nil {
		return nil, err
	}

	out := make([]models.FundingSettlement, 0, len(raw.Data))
	for _, r := range raw.Data {
		value := r.RealizedRate
		if value == "" {
			value = r.FundingRate
		}
		rate, err := parseFloat(value)
		if err != nil {
			continue
		}
		ts, err := parseMillis(r.FundingTime)
		if err != nil {
			continue
		}
		out = append(out, models.FundingSettlement{Rate: rate, Timestamp: ts})
	}
	sortSettlements(out)
	return out, nil
}

func (o *OkxAdapter) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	var raw okxEnvelope[okxTicker]
	if err := getJSON(ctx, o.httpClient, "okx tickers", o.baseURL+"/api/v5/market/tickers?instType=SWAP", &raw); err != nil {
		return nil, err
	}
	if err := raw.err("tickers", ""); err != nil {
		return nil, err
	}

	entries := make([]volumeEntry, 0, len(raw.Data))
	for _, t := range raw.Data {
		sym, ok := fromOkxInstID(t.InstID)
		if !ok {
			continue
		}
		_, volume, err := okxTickerValues(t)
		if err != nil {
			continue
		}
		entries = append(entries, volumeEntry{symbol: sym, quoteVolume: volume})
	}
	return topByVolume(entries, limit), nil
}

func (o *OkxAdapter) contractSize(ctx context.Context, instID string) (decimal.Decimal, error) {
	o.mu.RLock()
	size, ok := o.contractSizes[instID]
	o.mu.RUnlock()
	if ok {
		return size, nil
	}

	var raw okxEnvelope[struct {
		CtVal string `json:"ctVal"`
	}]
	url := fmt.Sprintf("%s/api/v5/public/instruments?instType=SWAP&instId=%s", o.baseURL, instID)
	if err := getJSON(ctx, o.httpClient, "okx instruments", url, &raw); err != nil {
		return decimal.Zero, err
	}
	if err := raw.err("instruments", instID); err != nil {
		return decimal.Zero, err
	}
	if len(raw.Data) == 0 {
		return decimal.Zero, fmt.Errorf("okx instruments %s: %w", instID, ErrSymbolNotListed)
	}

	size, err := decimal.NewFromString(raw.Data[0].CtVal)
	if err != nil || !size.IsPositive() {
		return decimal.Zero, fmt.Errorf("okx instruments %s: bad ctVal %q", instID, raw.Data[0].CtVal)
	}

	o.mu.Lock()
	o.contractSizes[instID] = size
	o.mu.Unlock()
	return size, nil
}
