package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

const (
	hyperliquidBaseURL = "https://api.hyperliquid.xyz"

	// Hyperliquid settles funding every hour.
	hyperliquidIntervalHours = 1.0
)

// HyperliquidAdapter reads perpetuals from the Hyperliquid info endpoint. Markets
// are USDC-margined and keyed by coin; they are exposed as BASE/USDT so that they
// line up with the other venues' symbols.
type HyperliquidAdapter struct {
	baseURL    string
	httpClient *http.Client
}

type hyperliquidAssetCtx struct {
	Funding   string `json:"funding"`
	MarkPx    string `json:"markPx"`
	DayNtlVlm string `json:"dayNtlVlm"`
}

type hyperliquidMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

type hyperliquidLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

func NewHyperliquidAdapter(baseURL string, timeout time.Duration) *HyperliquidAdapter {
	if baseURL == "" {
		baseURL = hyperliquidBaseURL
	}
	return &HyperliquidAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

func (h *HyperliquidAdapter) Name() string {
	return "hyperliquid"
}

func toHyperliquidCoin(symbol string) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	if quote != "USDT" && quote != "USDC" {
		return "", fmt.Errorf("hyperliquid %s: %w", symbol, ErrSymbolNotListed)
	}
	return base, nil
}

func (h *HyperliquidAdapter) info(ctx context.Context, op string, body, out any) error {
	return postJSON(ctx, h.httpClient, "hyperliquid "+op, h.baseURL+"/info", body, out)
}

// assetContexts returns the per-coin context (mark price, funding, volume) for every
// listed perpetual.
func (h *HyperliquidAdapter) assetContexts(ctx context.Context) (map[string]hyperliquidAssetCtx, error) {
	var raw []json.RawMessage
	if err := h.info(ctx, "meta", map[string]string{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("hyperliquid meta: unexpected response with %d parts", len(raw))
	}

	var meta hyperliquidMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid meta: failed to parse universe: %w", err)
	}
	var ctxs []hyperliquidAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid meta: failed to parse asset contexts: %w", err)
	}
	if len(ctxs) != len(meta.Universe) {
		return nil, fmt.Errorf("hyperliquid meta: %d assets but %d contexts", len(meta.Universe), len(ctxs))
	}

	out := make(map[string]hyperliquidAssetCtx, len(ctxs))
	for i, asset := range meta.Universe {
		if asset.IsDelisted {
			continue
		}
		out[asset.Name] = ctxs[i]
	}
	return out, nil
}

func (h *HyperliquidAdapter) assetContext(ctx context.Context, symbol string) (string, hyperliquidAssetCtx, error) {
	coin, err := toHyperliquidCoin(symbol)
	if err != nil {
		return "", hyperliquidAssetCtx{}, err
	}
	all, err := h.assetContexts(ctx)
	if err != nil {
		return "", hyperliquidAssetCtx{}, err
	}
	ac, ok := all[coin]
	if !ok {
		return "", hyperliquidAssetCtx{}, fmt.Errorf("hyperliquid %s: %w", coin, ErrSymbolNotListed)
	}
	return coin, ac, nil
}

func (h *HyperliquidAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	_, ac, err := h.assetContext(ctx, symbol)
	if err != nil {
		return nil, err
	}

	mark, err := parseFloat(ac.MarkPx)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid ticker: failed to parse mark price: %w", err)
	}
	volume, err := parseFloat(ac.DayNtlVlm)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid ticker: failed to parse volume: %w", err)
	}

	return &models.Ticker{
		Exchange:    h.Name(),
		Symbol:      symbol,
		Last:        mark,
		QuoteVolume: volume,
	}, nil
}

func (h *HyperliquidAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	coin, err := toHyperliquidCoin(symbol)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Coin   string               `json:"coin"`
		Levels [][]hyperliquidLevel `json:"levels"` // [bids, asks]
	}
	if err := h.info(ctx, "l2Book", map[string]string{"type": "l2Book", "coin": coin}, &raw); err != nil {
		return nil, err
	}
	if len(raw.Levels) != 2 {
		return nil, fmt.Errorf("hyperliquid l2Book %s: %w", coin, ErrSymbolNotListed)
	}

	book := &models.OrderBook{Exchange: h.Name(), Symbol: symbol}
	if book.Bids, err = hyperliquidLevels(raw.Levels[0], depth); err != nil {
		return nil, fmt.Errorf("hyperliquid l2Book: %w", err)
	}
	if book.Asks, err = hyperliquidLevels(raw.Levels[1], depth); err != nil {
		return nil, fmt.Errorf("hyperliquid l2Book: %w", err)
	}
	return book, nil
}

func hyperliquidLevels(levels []hyperliquidLevel, depth int) ([]models.OrderBookLevel, error) {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	rows := make([][]string, len(levels))
	for i, l := range levels {
		rows[i] = []string{l.Px, l.Sz}
	}
	return parseLevels(rows, decimal.NewFromInt(1))
}

func (h *HyperliquidAdapter) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	_, ac, err := h.assetContext(ctx, symbol)
	if err != nil {
		return nil, err
	}

	rate, err := parseFloat(ac.Funding)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate: %w", err)
	}

	return &models.FundingRate{
		Exchange:          h.Name(),
		Symbol:            symbol,
		Rate:              rate,
		IntervalHoursMeta: hyperliquidIntervalHours,
		NextFunding:       time.Now().UTC().Truncate(time.Hour).Add(time.Hour),
	}, nil
}

func (h *HyperliquidAdapter) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	coin, err := toHyperliquidCoin(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	// One settlement per hour; ask for a little more than needed and keep the tail.
	start := time.Now().Add(-time.Duration(limit+1) * time.Hour).UnixMilli()
	req := map[string]any{"type": "fundingHistory", "coin": coin, "startTime": start}

	var raw []struct {
		FundingRate string `json:"fundingRate"`
		Time        int64  `json:"time"`
	}
	if err := h.info(ctx, "fundingHistory", req, &raw); err != nil {
		return nil, err
	}

	out := make([]models.FundingSettlement, 0, len(raw))
	for _, r := range raw {
		rate, err := parseFloat(r.FundingRate)
		if err != nil {
			continue
		}
		out = append(out, models.FundingSettlement{Rate: rate, Timestamp: time.UnixMilli(r.Time)})
	}
	sortSettlements(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (h *HyperliquidAdapter) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	all, err := h.assetContexts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]volumeEntry, 0, len(all))
	for coin, ac := range all {
		volume, err := parseFloat(ac.DayNtlVlm)
		if err != nil {
			continue
		}
		entries = append(entries, volumeEntry{symbol: Canonical(coin, "USDT"), quoteVolume: volume})
	}
	return topByVolume(entries, limit), nil
}
