package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/suwandre/fundingarb/internal/metrics"
	"github.com/suwandre/fundingarb/internal/models"
	"golang.org/x/time/rate"
)

// GuardOptions tunes the pacing and failure isolation applied to one venue.
type GuardOptions struct {
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	RequestTimeout    time.Duration
}

func (o GuardOptions) withDefaults() GuardOptions {
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultTimeout
	}
	return o
}

// Guard decorates an Exchange with a request rate limiter, a circuit breaker and
// request metrics. An open breaker fails calls fast instead of waiting on a venue
// that is already down.
type Guard struct {
	inner   Exchange
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewGuard(inner Exchange, opts GuardOptions, m *metrics.Metrics) *Guard {
	opts = opts.withDefaults()
	name := inner.Name()

	st := gobreaker.Settings{Name: name}
	st.Timeout = opts.BreakerTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= opts.BreakerFailures
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrSymbolNotListed) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("exchange", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
		m.SetBreakerState(name, breakerGauge(to))
	}

	return &Guard{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		metrics: m,
		timeout: opts.RequestTimeout,
	}
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (g *Guard) Name() string {
	return g.inner.Name()
}

// Unwrap returns the decorated adapter.
func (g *Guard) Unwrap() Exchange {
	return g.inner
}

func (g *Guard) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	return guarded(ctx, g, "ticker", func(ctx context.Context) (*models.Ticker, error) {
		return g.inner.FetchTicker(ctx, symbol)
	})
}

func (g *Guard) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return guarded(ctx, g, "orderbook", func(ctx context.Context) (*models.OrderBook, error) {
		return g.inner.FetchOrderBook(ctx, symbol, depth)
	})
}

func (g *Guard) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	return guarded(ctx, g, "funding_rate", func(ctx context.Context) (*models.FundingRate, error) {
		return g.inner.FetchFundingRate(ctx, symbol)
	})
}

func (g *Guard) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error) {
	return guarded(ctx, g, "funding_history", func(ctx context.Context) ([]models.FundingSettlement, error) {
		return g.inner.FetchFundingRateHistory(ctx, symbol, limit)
	})
}

func (g *Guard) FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error) {
	return guarded(ctx, g, "top_volume", func(ctx context.Context) ([]string, error) {
		return g.inner.FetchTopVolumeSymbols(ctx, limit)
	})
}

func guarded[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := g.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("[%s] %s: rate limiter: %w", g.Name(), op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	g.metrics.ObserveRequest(g.Name(), op, time.Since(start), err)

	if err != nil {
		return zero, fmt.Errorf("[%s] %s: %w", g.Name(), op, err)
	}
	return res.(T), nil
}
