// Package exchangetest provides an in-memory Exchange for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/exchange"
	"github.com/suwandre/fundingarb/internal/models"
)

// Fake is a programmable exchange. Unset data answers with ErrSymbolNotListed.
type Fake struct {
	name string

	mu        sync.Mutex
	tickers   map[string]models.Ticker
	books     map[string]models.OrderBook
	rates     map[string]models.FundingRate
	histories map[string][]models.FundingSettlement
	top       []string
	failures  map[string]error
	calls     map[string]int
}

var _ exchange.Exchange = (*Fake)(nil)

func New(name string) *Fake {
	return &Fake{
		name:      name,
		tickers:   make(map[string]models.Ticker),
		books:     make(map[string]models.OrderBook),
		rates:     make(map[string]models.FundingRate),
		histories: make(map[string][]models.FundingSettlement),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) WithTicker(symbol string, last, quoteVolume float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = models.Ticker{Exchange: f.name, Symbol: symbol, Last: last, QuoteVolume: quoteVolume}
	return f
}

// WithBook sets the order book. Levels are {price, size} pairs, best first.
func (f *Fake) WithBook(symbol string, bids, asks [][2]float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[symbol] = models.OrderBook{
		Exchange: f.name,
		Symbol:   symbol,
		Bids:     levels(bids),
		Asks:     levels(asks),
	}
	return f
}

func (f *Fake) WithRate(symbol string, rate float64) *Fake {
	return f.WithFundingRate(models.FundingRate{Symbol: symbol, Rate: rate})
}

func (f *Fake) WithFundingRate(fr models.FundingRate) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr.Exchange = f.name
	f.rates[fr.Symbol] = fr
	return f
}

// WithHistory sets settlements from rates spaced by interval, ending at end.
func (f *Fake) WithHistory(symbol string, end time.Time, interval time.Duration, rates ...float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FundingSettlement, len(rates))
	for i, r := range rates {
		out[i] = models.FundingSettlement{
			Rate:      r,
			Timestamp: end.Add(-time.Duration(len(rates)-1-i) * interval),
		}
	}
	f.histories[symbol] = out
	return f
}

func (f *Fake) WithTopSymbols(symbols ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.top = append([]string(nil), symbols...)
	return f
}

// FailOn makes op fail with err. An empty symbol fails op for every symbol.
// Ops: ticker, orderbook, funding_rate, funding_history, top_volume.
func (f *Fake) FailOn(op, symbol string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"|"+symbol] = err
	return f
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(op, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err, ok := f.failures[op+"|"+symbol]; ok {
		return err
	}
	if err, ok := f.failures[op+"|"]; ok {
		return err
	}
	return nil
}

func (f *Fake) notListed(symbol string) error {
	return fmt.Errorf("%s %s: %w", f.name, symbol, exchange.ErrSymbolNotListed)
}

func (f *Fake) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	if err := f.enter("ticker", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	if !ok {
		return nil, f.notListed(symbol)
	}
	return &t, nil
}

func (f *Fake) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	if err := f.enter("orderbook", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[symbol]
	if !ok {
		return nil, f.notListed(symbol)
	}
	book := models.OrderBook{
		Exchange: b.Exchange,
		Symbol:   b.Symbol,
		Bids:     truncate(b.Bids, depth),
		Asks:     truncate(b.Asks, depth),
	}
	return &book, nil
}

func (f *Fake) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	if err := f.enter("funding_rate", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rates[symbol]
	if !ok {
		return nil, f.notListed(symbol)
	}
	return &r, nil
}

func (f *Fake) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	if err := f.enter("funding_history", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.histories[symbol]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]models.FundingSettlement(nil), h...), nil
}

func (f *Fake) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	if err := f.enter("top_volume", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	top := f.top
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return append([]string(nil), top...), nil
}

func levels(rows [][2]float64) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, len(rows))
	for i, r := range rows {
		out[i] = models.OrderBookLevel{Price: decimal.NewFromFloat(r[0]), Size: decimal.NewFromFloat(r[1])}
	}
	return out
}

func truncate(levels []models.OrderBookLevel, depth int) []models.OrderBookLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	return append([]models.OrderBookLevel(nil), levels...)
}
