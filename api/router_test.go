package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suwandre/fundingarb/api"
	"github.com/suwandre/fundingarb/internal/exchange"
	"github.com/suwandre/fundingarb/internal/exchange/exchangetest"
	"github.com/suwandre/fundingarb/internal/metrics"
	"github.com/suwandre/fundingarb/internal/premium"
	"github.com/suwandre/fundingarb/internal/scanner"
	"github.com/suwandre/fundingarb/internal/scheduler"
	"github.com/suwandre/fundingarb/internal/snapshot"
)

const btc = "BTC/USDT"

func setup(t *testing.T) (*fiber.App, *scheduler.Scheduler) {
	t.Helper()
	binance := exchangetest.New("binance").
		WithTopSymbols(btc, "ETH/USDT").
		WithTicker(btc, 100.02, 2_000_000).
		WithBook(btc, [][2]float64{{100.00, 3}}, [][2]float64{{100.05, 1}}).
		WithRate(btc, 0.0002)
	bybit := exchangetest.New("bybit").
		WithTicker(btc, 100.06, 1_000_000).
		WithBook(btc, [][2]float64{{100.02, 9}}, [][2]float64{{100.10, 2}}).
		WithRate(btc, -0.0003)
	exchanges := []exchange.Exchange{binance, bybit}

	m := metrics.New()
	sc := scanner.New(exchanges, scanner.DefaultFees(), scanner.DefaultOptions(), m)
	engine := premium.NewEngine(exchanges, premium.DefaultParams(), premium.NotionalTable{Default: 100}, m)
	sched := scheduler.NewScheduler(sc, engine, snapshot.NewMemorySink(10), scheduler.Options{
		WatchSymbols: []string{btc},
	})

	app := fiber.New()
	api.SetupRoutes(app, sched, m)
	return app, sched
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp.StatusCode, out
}

func TestOpportunitiesBeforeFirstScan(t *testing.T) {
	app, _ := setup(t)

	status, body := get(t, app, "/v1/opportunities")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no data yet", body["error"])

	status, body = get(t, app, "/v1/drops")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no data yet", body["error"])
}

func TestOpportunities(t *testing.T) {
	app, sched := setup(t)
	require.NotNil(t, sched.RunScan(t.Context()))

	status, body := get(t, app, "/v1/opportunities")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	opps := body["opportunities"].([]any)
	require.Len(t, opps, 1)
	first := opps[0].(map[string]any)
	assert.Equal(t, btc, first["symbol"])
	assert.Equal(t, "bybit", first["long_exchange"])
	assert.InDelta(t, 54.75, first["apr"], 1e-9)
}

func TestOpportunitiesBySymbol(t *testing.T) {
	app, sched := setup(t)
	require.NotNil(t, sched.RunScan(t.Context()))

	status, body := get(t, app, "/v1/opportunities/btc-usdt")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, btc, body["symbol"])
	assert.Len(t, body["opportunities"], 1)

	status, _ = get(t, app, "/v1/opportunities/ETH-USDT")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDrops(t *testing.T) {
	app, sched := setup(t)
	require.NotNil(t, sched.RunScan(t.Context()))

	status, body := get(t, app, "/v1/drops")
	require.Equal(t, http.StatusOK, status)

	// ETH/USDT is in the universe but no exchange quotes it
	drops := body["drops"].([]any)
	require.NotEmpty(t, drops)
	for _, d := range drops {
		assert.Equal(t, "ETH/USDT", d.(map[string]any)["symbol"])
	}
}

func TestPremiumPrediction(t *testing.T) {
	app, _ := setup(t)

	status, body := get(t, app, "/v1/premium/binance/BTC-USDT")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "binance", body["exchange"])
	assert.Equal(t, btc, body["symbol"])
	assert.InDelta(t, 0.0002, body["reported_rate"], 1e-12)
	assert.Contains(t, []any{"high", "medium", "low"}, body["confidence"])
	assert.EqualValues(t, 1, body["samples"])

	status, _ = get(t, app, "/v1/premium/kraken/BTC-USDT")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, app, "/v1/premium/binance/DOGE-USDT")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestStability(t *testing.T) {
	app, sched := setup(t)

	status, body := get(t, app, "/v1/stability/binance/BTC-USDT")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.EqualValues(t, 0, body["samples"])

	for range 10 {
		require.Equal(t, 2, sched.SampleOnce(t.Context()))
	}

	status, body = get(t, app, "/v1/stability/binance/BTC-USDT")
	require.Equal(t, http.StatusOK, status)
	st := body["stability"].(map[string]any)
	assert.EqualValues(t, 10, st["sample_count"])
	assert.Equal(t, "flat", st["trend"])
	assert.InDelta(t, 1.0, st["stability_score"], 1e-9)

	status, _ = get(t, app, "/v1/stability/kraken/BTC-USDT")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	app, sched := setup(t)
	require.NotNil(t, sched.RunScan(t.Context()))

	status, body := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "fundarb_")
}
