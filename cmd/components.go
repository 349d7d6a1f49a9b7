package main

import (
	"github.com/suwandre/fundingarb/config"
	"github.com/suwandre/fundingarb/internal/exchange"
	"github.com/suwandre/fundingarb/internal/metrics"
	"github.com/suwandre/fundingarb/internal/premium"
	"github.com/suwandre/fundingarb/internal/scanner"
)

type components struct {
	metrics   *metrics.Metrics
	exchanges []exchange.Exchange
	scanner   *scanner.Scanner
	engine    *premium.Engine
}

func buildComponents(cfg *config.Config) *components {
	m := metrics.New()
	exchanges := exchange.Build(cfg, m)

	sc := scanner.New(exchanges, scanner.FeeSchedule{
		Rates:   cfg.Fees.Taker,
		Default: cfg.Fees.Default,
	}, scanner.Options{
		UniverseSize:      cfg.Scan.UniverseSize,
		ReferenceExchange: cfg.Scan.ReferenceExchange,
		FallbackSymbols:   cfg.Scan.FallbackSymbols,
		Workers:           cfg.Scan.Workers,
		OrderBookDepth:    cfg.Scan.OrderBookDepth,
		HistoryLimit:      cfg.Scan.HistoryLimit,
		Mock:              cfg.Scan.Mock,
	}, m)

	engine := premium.NewEngine(exchanges, premium.Params{
		HistorySize:    cfg.Premium.HistorySize,
		Window:         cfg.Premium.Window,
		BaseRate:       cfg.Premium.BaseRate,
		RateClamp:      cfg.Premium.RateClamp,
		OrderBookDepth: cfg.Premium.OrderBookDepth,
	}, premium.NotionalTable{
		ByBase:  cfg.ImpactNotional.ByBase,
		Default: cfg.ImpactNotional.Default,
	}, m)

	return &components{metrics: m, exchanges: exchanges, scanner: sc, engine: engine}
}
