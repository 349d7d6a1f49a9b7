package premium

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/exchange"
	"github.com/suwandre/fundingarb/internal/metrics"
	"github.com/suwandre/fundingarb/internal/models"
	"github.com/suwandre/fundingarb/internal/pricing"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoPremium        = errors.New("premium index unavailable")
	ErrNoTWAP           = errors.New("no premium history for TWAP")
	ErrInsufficientData = errors.New("insufficient premium history")
	ErrUnknownExchange  = errors.New("unknown exchange")
)

// Params are the tunables of the premium model.
type Params struct {
	HistorySize    int
	Window         int // samples used by TWAP and stability
	BaseRate       float64
	RateClamp      float64
	OrderBookDepth int
}

func DefaultParams() Params {
	return Params{
		HistorySize:    5760,
		Window:         720,
		BaseRate:       DefaultBaseRate,
		RateClamp:      DefaultRateClamp,
		OrderBookDepth: 50,
	}
}

// NotionalTable maps a base currency to its impact notional in quote currency.
type NotionalTable struct {
	ByBase  map[string]float64
	Default float64
}

func (t NotionalTable) For(symbol string) decimal.Decimal {
	if v, ok := t.ByBase[exchange.Base(symbol)]; ok && v > 0 {
		return decimal.NewFromFloat(v)
	}
	if t.Default > 0 {
		return decimal.NewFromFloat(t.Default)
	}
	return decimal.NewFromInt(5000)
}

// Quote is one premium index computation with its inputs.
type Quote struct {
	Exchange     string    `json:"exchange"`
	Symbol       string    `json:"symbol"`
	PremiumIndex float64   `json:"premium_index"`
	ImpactBid    float64   `json:"impact_bid"`
	ImpactAsk    float64   `json:"impact_ask"`
	SpotIndex    float64   `json:"spot_index"`
	BookLevels   int       `json:"orderbook_depth"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Prediction compares the model's funding rate with the venue's reported rate.
type Prediction struct {
	Exchange       string            `json:"exchange"`
	Symbol         string            `json:"symbol"`
	CurrentPremium float64           `json:"current_premium"`
	TWAPPremium    float64           `json:"twap_premium"`
	Samples        int               `json:"samples"`
	PredictedRate  float64           `json:"predicted_rate"`
	ReportedRate   float64           `json:"reported_rate"`
	Deviation      float64           `json:"deviation"`
	Confidence     models.Confidence `json:"confidence"`
	ImpactBid      float64           `json:"impact_bid"`
	ImpactAsk      float64           `json:"impact_ask"`
	SpotIndex      float64           `json:"spot_index"`
	BookLevels     int               `json:"orderbook_depth"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Engine computes premium indices from live exchange data and keeps their history.
type Engine struct {
	exchanges map[string]exchange.Exchange
	names     []string
	history   *History
	params    Params
	notional  NotionalTable
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewEngine(exchanges []exchange.Exchange, params Params, notional NotionalTable, m *metrics.Metrics) *Engine {
	def := DefaultParams()
	if params.HistorySize <= 0 {
		params.HistorySize = def.HistorySize
	}
	if params.Window <= 0 {
		params.Window = def.Window
	}
	if params.RateClamp <= 0 {
		params.RateClamp = def.RateClamp
	}
	if params.OrderBookDepth <= 0 {
		params.OrderBookDepth = def.OrderBookDepth
	}

	byName := exchange.ByName(exchanges)
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Engine{
		exchanges: byName,
		names:     names,
		history:   NewHistory(params.HistorySize),
		params:    params,
		notional:  notional,
		metrics:   m,
		now:       time.Now,
	}
}

func (e *Engine) History() *History {
	return e.history
}

func (e *Engine) Params() Params {
	return e.params
}

// Exchanges returns the engine's exchange names, sorted.
func (e *Engine) Exchanges() []string {
	return append([]string(nil), e.names...)
}

func (e *Engine) ImpactNotional(symbol string) decimal.Decimal {
	return e.notional.For(symbol)
}

// SpotIndex builds the volume-weighted index for symbol from every exchange's ticker.
// Exchanges that fail are left out.
func (e *Engine) SpotIndex(ctx context.Context, symbol string) (float64, error) {
	samples := make([]pricing.SpotIndexSample, len(e.names))
	ok := make([]bool, len(e.names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range e.names {
		ex := e.exchanges[name]
		g.Go(func() error {
			t, err := ex.FetchTicker(gctx, symbol)
			if err != nil {
				log.Debug().Err(err).Str("exchange", ex.Name()).Str("symbol", symbol).Msg("ticker excluded from spot index")
				return nil
			}
			samples[i] = pricing.SpotIndexSample{Exchange: ex.Name(), Price: t.Last, Volume: t.QuoteVolume}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	usable := samples[:0]
	for i, s := range samples {
		if ok[i] {
			usable = append(usable, s)
		}
	}
	return pricing.SpotIndex(usable)
}

// PremiumIndex computes [max(0, impactAsk − index) − max(0, index − impactBid)] / index
// for one exchange.
func (e *Engine) PremiumIndex(ctx context.Context, exchangeName, symbol string) (*Quote, error) {
	ex, ok := e.exchanges[exchangeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeName)
	}

	index, err := e.SpotIndex(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: spot index: %w", ErrNoPremium, err)
	}

	book, err := ex.FetchOrderBook(ctx, symbol, e.params.OrderBookDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: order book: %w", ErrNoPremium, err)
	}

	notional := e.ImpactNotional(symbol)
	bid, err := pricing.ImpactBid(book, notional)
	if err != nil {
		return nil, fmt.Errorf("%w: impact bid: %w", ErrNoPremium, err)
	}
	ask, err := pricing.ImpactAsk(book, notional)
	if err != nil {
		return nil, fmt.Errorf("%w: impact ask: %w", ErrNoPremium, err)
	}

	impactBid, impactAsk := bid.Price(), ask.Price()
	buy := math.Max(0, impactAsk-index)
	sell := math.Max(0, index-impactBid)

	return &Quote{
		Exchange:     exchangeName,
		Symbol:       symbol,
		PremiumIndex: (buy - sell) / index,
		ImpactBid:    impactBid,
		ImpactAsk:    impactAsk,
		SpotIndex:    index,
		BookLevels:   len(book.Bids) + len(book.Asks),
		CapturedAt:   e.now().UTC(),
	}, nil
}

// Sample computes the premium index and appends it to the history.
func (e *Engine) Sample(ctx context.Context, exchangeName, symbol string) (*Quote, error) {
	q, err := e.PremiumIndex(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}
	e.history.Append(models.PremiumSample{
		Symbol:       q.Symbol,
		Exchange:     q.Exchange,
		PremiumIndex: q.PremiumIndex,
		CapturedAt:   q.CapturedAt,
	})
	e.metrics.ObservePremiumSample(exchangeName)
	return q, nil
}

// Predict samples once, then predicts the funding rate from the TWAP of the window
// and grades it against the exchange's reported rate.
func (e *Engine) Predict(ctx context.Context, exchangeName, symbol string) (*Prediction, error) {
	q, err := e.Sample(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	key := Key{Exchange: exchangeName, Symbol: symbol}
	window := e.history.Window(key, e.params.Window)
	basis := q.PremiumIndex
	twap, err := TWAP(window)
	if err == nil {
		basis = twap
	}
	predicted := PredictRate(basis, e.params.BaseRate, e.params.RateClamp)

	fr, err := e.exchanges[exchangeName].FetchFundingRate(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("reported funding rate: %w", err)
	}
	deviation := math.Abs(predicted - fr.Rate)

	return &Prediction{
		Exchange:       exchangeName,
		Symbol:         symbol,
		CurrentPremium: q.PremiumIndex,
		TWAPPremium:    basis,
		Samples:        len(window),
		PredictedRate:  predicted,
		ReportedRate:   fr.Rate,
		Deviation:      deviation,
		Confidence:     ConfidenceFor(deviation),
		ImpactBid:      q.ImpactBid,
		ImpactAsk:      q.ImpactAsk,
		SpotIndex:      q.SpotIndex,
		BookLevels:     q.BookLevels,
		Timestamp:      q.CapturedAt,
	}, nil
}

// Stability analyzes the newest window of samples for one series.
func (e *Engine) Stability(exchangeName, symbol string) (Stability, error) {
	if _, ok := e.exchanges[exchangeName]; !ok {
		return Stability{}, fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeName)
	}
	return Analyze(e.history.Window(Key{Exchange: exchangeName, Symbol: symbol}, e.params.Window))
}
