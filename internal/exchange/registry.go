package exchange

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/config"
	"github.com/suwandre/fundingarb/internal/metrics"
)

type factory func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error)

var factories = map[string]factory{
	"binance": func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
		return NewBinanceAdapter(ex.APIKey, ex.BaseURL, timeout), nil
	},
	"bybit": func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
		return NewBybitAdapter(ex.APIKey, ex.BaseURL, timeout), nil
	},
	"okx": func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
		return NewOkxAdapter(ex.BaseURL, timeout), nil
	},
	"mexc": func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
		return NewMexcAdapter(ex.BaseURL, timeout), nil
	},
	"hyperliquid": func(ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
		return NewHyperliquidAdapter(ex.BaseURL, timeout), nil
	},
}

// Supported lists the exchange names Build knows how to construct.
func Supported() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs every enabled exchange, each wrapped in a Guard. An exchange that
// cannot be constructed is logged and skipped; the caller decides what zero
// exchanges means.
func Build(cfg *config.Config, m *metrics.Metrics) []Exchange {
	names := make([]string, 0, len(cfg.Exchanges))
	for name := range cfg.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Exchange
	for _, name := range names {
		ex := cfg.Exchanges[name]
		if !ex.Enabled {
			continue
		}

		adapter, err := construct(name, ex, cfg.Scan.RequestTimeout)
		if err != nil {
			log.Warn().Err(err).Str("exchange", name).Msg("skipping exchange")
			continue
		}

		out = append(out, NewGuard(adapter, GuardOptions{
			RequestsPerSecond: ex.RPS,
			Burst:             ex.Burst,
			BreakerFailures:   ex.BreakerFailures,
			BreakerTimeout:    ex.BreakerTimeout,
			RequestTimeout:    cfg.Scan.RequestTimeout,
		}, m))
	}

	log.Info().Int("count", len(out)).Msg("exchange adapters initialized")
	return out
}

func construct(name string, ex config.ExchangeConfig, timeout time.Duration) (Exchange, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported exchange %q", name)
	}
	return f(ex, timeout)
}

// ByName indexes exchanges by Name.
func ByName(exchanges []Exchange) map[string]Exchange {
	out := make(map[string]Exchange, len(exchanges))
	for _, ex := range exchanges {
		out[ex.Name()] = ex
	}
	return out
}
