package scanner

import (
	"context"
	"errors"
	"fmt"
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
	ErrQuorum      = errors.New("fewer than two exchanges reported a funding rate")
	ErrNoOrderBook = errors.New("no usable top of book")
	ErrNoSources   = errors.New("no exchange sources available")
)

// Stages at which a symbol or one of its legs can be dropped.
const (
	StageFundingRate = "funding_rate"
	StageQuorum      = "quorum"
	StageOrderBook   = "orderbook"
)

// Drop records why a symbol, or one exchange leg of it, was left out of a cycle.
type Drop struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange,omitempty"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

func newDrop(symbol, exchangeName, stage string, err error) Drop {
	return Drop{Symbol: symbol, Exchange: exchangeName, Stage: stage, Reason: err.Error(), Err: err}
}

// Report is the outcome of one scan cycle.
type Report struct {
	Opportunities []models.FundingOpportunity `json:"opportunities"`
	Drops         []Drop                      `json:"drops"`
	Universe      []string                    `json:"universe"`
	Started       time.Time                   `json:"started"`
	Finished      time.Time                   `json:"finished"`
}

type Options struct {
	UniverseSize      int
	ReferenceExchange string
	FallbackSymbols   []string
	Workers           int
	OrderBookDepth    int
	HistoryLimit      int
	Mock              bool
}

func DefaultOptions() Options {
	return Options{
		UniverseSize:      30,
		ReferenceExchange: "binance",
		FallbackSymbols: []string{
			"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "XRP/USDT", "DOGE/USDT", "ADA/USDT",
		},
		Workers:        10,
		OrderBookDepth: 5,
		HistoryLimit:   2,
	}
}

type Scanner struct {
	exchanges []exchange.Exchange
	fees      FeeSchedule
	opts      Options
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(exchanges []exchange.Exchange, fees FeeSchedule, opts Options, m *metrics.Metrics) *Scanner {
	def := DefaultOptions()
	if opts.UniverseSize <= 0 {
		opts.UniverseSize = def.UniverseSize
	}
	if len(opts.FallbackSymbols) == 0 {
		opts.FallbackSymbols = def.FallbackSymbols
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.OrderBookDepth <= 0 {
		opts.OrderBookDepth = def.OrderBookDepth
	}
	if opts.HistoryLimit < 2 {
		opts.HistoryLimit = def.HistoryLimit
	}

	return &Scanner{
		exchanges: exchanges,
		fees:      fees,
		opts:      opts,
		metrics:   m,
		now:       time.Now,
	}
}

// Scan runs one full cycle over the universe. Per-symbol failures end up in
// Report.Drops; the only error is having no exchanges at all.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	start := s.now()

	if s.opts.Mock {
		report := &Report{
			Opportunities: MockOpportunities(start),
			Started:       start,
			Finished:      s.now(),
		}
		s.metrics.ObserveScan(report.Finished.Sub(start), len(report.Opportunities))
		return report, nil
	}

	if len(s.exchanges) == 0 {
		return nil, ErrNoSources
	}

	universe := s.Universe(ctx)

	type result struct {
		opp   *models.FundingOpportunity
		drops []Drop
	}
	results := make([]result, len(universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, symbol := range universe {
		g.Go(func() error {
			opp, drops := s.ScanSymbol(gctx, symbol)
			results[i] = result{opp: opp, drops: drops}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Opportunities: make([]models.FundingOpportunity, 0, len(universe)),
		Universe:      universe,
		Started:       start,
	}
	for _, r := range results {
		if r.opp != nil {
			report.Opportunities = append(report.Opportunities, *r.opp)
		}
		for _, d := range r.drops {
			s.metrics.ObserveDrop(d.Stage)
			report.Drops = append(report.Drops, d)
		}
	}
	Rank(report.Opportunities)
	report.Finished = s.now()

	s.metrics.ObserveScan(report.Finished.Sub(start), len(report.Opportunities))
	log.Info().
		Int("symbols", len(universe)).
		Int("opportunities", len(report.Opportunities)).
		Int("drops", len(report.Drops)).
		Stringer("took", report.Finished.Sub(start)).
		Msg("scan complete")

	return report, nil
}

// Rank sorts opportunities by APR, highest first.
func Rank(opps []models.FundingOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].APR != opps[j].APR {
			return opps[i].APR > opps[j].APR
		}
		return opps[i].Symbol < opps[j].Symbol
	})
}

// Universe returns the reference exchange's top symbols by quote volume, or the
// fallback list when the reference is missing, failing or empty.
func (s *Scanner) Universe(ctx context.Context) []string {
	for _, ex := range s.exchanges {
		if ex.Name() != s.opts.ReferenceExchange {
			continue
		}
		symbols, err := ex.FetchTopVolumeSymbols(ctx, s.opts.UniverseSize)
		if err != nil {
			log.Warn().Err(err).Str("exchange", ex.Name()).Msg("failed to load universe, using fallback symbols")
			break
		}
		if len(symbols) > 0 {
			return symbols
		}
		break
	}
	return append([]string(nil), s.opts.FallbackSymbols...)
}

type quote struct {
	exchange string
	rate     float64
	interval float64
}

// ScanSymbol evaluates one symbol. It returns the best long/short pairing, or nil
// along with the reasons the symbol was dropped. Leg-level drops are returned even
// when an opportunity is found.
func (s *Scanner) ScanSymbol(ctx context.Context, symbol string) (*models.FundingOpportunity, []Drop) {
	var (
		quotes []quote
		drops  []Drop
	)
	byName := make(map[string]exchange.Exchange, len(s.exchanges))

	for _, ex := range s.exchanges {
		byName[ex.Name()] = ex
		fr, err := ex.FetchFundingRate(ctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("exchange", ex.Name()).Str("symbol", symbol).Msg("funding rate unavailable")
			drops = append(drops, newDrop(symbol, ex.Name(), StageFundingRate, err))
			continue
		}
		quotes = append(quotes, quote{
			exchange: ex.Name(),
			rate:     fr.Rate,
			interval: ResolveInterval(ctx, ex, symbol, fr, s.opts.HistoryLimit),
		})
	}

	if len(quotes) < 2 {
		err := fmt.Errorf("%w: got %d", ErrQuorum, len(quotes))
		return nil, append(drops, newDrop(symbol, "", StageQuorum, err))
	}

	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].rate < quotes[j].rate })
	long, short := quotes[0], quotes[len(quotes)-1]

	longBook, err := byName[long.exchange].FetchOrderBook(ctx, symbol, s.opts.OrderBookDepth)
	if err != nil {
		return nil, append(drops, newDrop(symbol, long.exchange, StageOrderBook, fmt.Errorf("%w: %w", ErrNoOrderBook, err)))
	}
	ask, err := pricing.BestAsk(longBook)
	if err != nil {
		return nil, append(drops, newDrop(symbol, long.exchange, StageOrderBook, fmt.Errorf("%w: ask: %w", ErrNoOrderBook, err)))
	}

	shortBook, err := byName[short.exchange].FetchOrderBook(ctx, symbol, s.opts.OrderBookDepth)
	if err != nil {
		return nil, append(drops, newDrop(symbol, short.exchange, StageOrderBook, fmt.Errorf("%w: %w", ErrNoOrderBook, err)))
	}
	bid, err := pricing.BestBid(shortBook)
	if err != nil {
		return nil, append(drops, newDrop(symbol, short.exchange, StageOrderBook, fmt.Errorf("%w: bid: %w", ErrNoOrderBook, err)))
	}

	askPrice, bidPrice := ask.Price.InexactFloat64(), bid.Price.InexactFloat64()
	rateDiff := short.rate - long.rate
	interval := min(long.interval, short.interval)
	if interval <= 0 {
		interval = DefaultIntervalHours
	}
	costs := Cost(s.fees.Taker(long.exchange), s.fees.Taker(short.exchange), askPrice, bidPrice)

	return &models.FundingOpportunity{
		Symbol:               symbol,
		LongExchange:         long.exchange,
		ShortExchange:        short.exchange,
		LongAskPrice:         askPrice,
		ShortBidPrice:        bidPrice,
		RateDiff:             rateDiff,
		IntervalHours:        interval,
		SpreadPct:            costs.Spread * 100,
		FeePct:               costs.Fee * 100,
		TotalCostPct:         costs.Total * 100,
		BreakevenSettlements: Breakeven(costs.Total, rateDiff),
		ExecutableDepth:      decimal.Min(ask.Size, bid.Size).InexactFloat64(),
		APR:                  APR(rateDiff, interval),
		DiscoveredAt:         s.now().UTC(),
	}, drops
}
