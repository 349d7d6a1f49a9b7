package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routes serves canned bodies keyed by URL path.
func routes(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSymbolHelpers(t *testing.T) {
	base, quote, err := SplitSymbol("btc/usdt:USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	_, _, err = SplitSymbol("BTCUSDT")
	assert.Error(t, err)

	raw, err := concatenated("ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", raw)

	sym, ok := fromConcatenated("ETHUSDT", "USDT")
	assert.True(t, ok)
	assert.Equal(t, "ETH/USDT", sym)

	_, ok = fromConcatenated("ETHBTC", "USDT")
	assert.False(t, ok)

	inst, err := toOkxInstID("SOL/USDT")
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDT-SWAP", inst)

	sym, ok = fromOkxInstID("SOL-USDT-SWAP")
	assert.True(t, ok)
	assert.Equal(t, "SOL/USDT", sym)

	_, ok = fromOkxInstID("SOL-USDT-240628")
	assert.False(t, ok)
}

func TestTopByVolumeFilters(t *testing.T) {
	got := topByVolume([]volumeEntry{
		{symbol: "BTC/USDT", quoteVolume: 500},
		{symbol: "ETH/USDT", quoteVolume: 900},
		{symbol: "BUSD/USDT", quoteVolume: 10_000},
		{symbol: "SOL/USDC", quoteVolume: 10_000},
		{symbol: "DEAD/USDT", quoteVolume: 0},
		{symbol: "XRP/USDT", quoteVolume: 100},
	}, 2)

	assert.Equal(t, []string{"ETH/USDT", "BTC/USDT"}, got)
}

func TestBinanceDepthLimit(t *testing.T) {
	assert.Equal(t, 5, binanceDepthLimit(1))
	assert.Equal(t, 5, binanceDepthLimit(5))
	assert.Equal(t, 50, binanceDepthLimit(21))
	assert.Equal(t, 1000, binanceDepthLimit(5000))
}

func TestMexcAdapter(t *testing.T) {
	srv := routes(t, map[string]string{
		"/api/v1/contract/detail":              `{"success":true,"code":0,"data":{"contractSize":0.0001}}`,
		"/api/v1/contract/depth/BTC_USDT":      `{"success":true,"code":0,"data":{"bids":[[100,20000,1]],"asks":[[101,10000,1]]}}`,
		"/api/v1/contract/funding_rate/BTC_USDT": `{"success":true,"code":0,"data":{"fundingRate":0.0002,"collectCycle":4,"nextSettleTime":1700000000000}}`,
	})
	m := NewMexcAdapter(srv.URL, time.Second)
	ctx := context.Background()

	book, err := m.FetchOrderBook(ctx, "BTC/USDT", 5)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "2", book.Bids[0].Size.String())
	assert.Equal(t, "1", book.Asks[0].Size.String())

	fr, err := m.FetchFundingRate(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0002, fr.Rate)
	assert.Equal(t, 4.0, fr.IntervalHoursMeta)
}

func TestMexcUnlistedSymbolDoesNotTripBreaker(t *testing.T) {
	srv := routes(t, map[string]string{
		"/api/v1/contract/funding_rate/NOPE_USDT": `{"success":false,"code":1001,"message":"contract not exists"}`,
		"/api/v1/contract/funding_rate/history":   `{"success":false,"code":1001,"message":"contract not exists"}`,
	})
	g := NewGuard(NewMexcAdapter(srv.URL, time.Second), GuardOptions{
		RequestsPerSecond: 1000,
		Burst:             100,
		BreakerFailures:   2,
		BreakerTimeout:    time.Minute,
		RequestTimeout:    time.Second,
	}, nil)
	ctx := context.Background()

	for range 4 {
		_, err := g.FetchFundingRate(ctx, "NOPE/USDT")
		assert.ErrorIs(t, err, ErrSymbolNotListed)

		_, err = g.FetchFundingRateHistory(ctx, "NOPE/USDT", 2)
		assert.ErrorIs(t, err, ErrSymbolNotListed)
	}
}

func TestOkxAdapter(t *testing.T) {
	srv := routes(t, map[string]string{
		"/api/v5/public/instruments": `{"code":"0","msg":"","data":[{"ctVal":"0.01"}]}`,
		"/api/v5/market/books":       `{"code":"0","msg":"","data":[{"bids":[["100","50","0","3"]],"asks":[["101","20","0","1"]]}]}`,
		"/api/v5/market/ticker":      `{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","last":"100","volCcy24h":"3"}]}`,
		"/api/v5/public/funding-rate": `{"code":"0","msg":"","data":[{"fundingRate":"-0.0003","fundingTime":"1700000000000","nextFundingTime":"1700014400000"}]}`,
		"/api/v5/public/funding-rate-history": `{"code":"0","msg":"","data":[
			{"fundingRate":"0.0001","realizedRate":"0.00011","fundingTime":"1700000000000"},
			{"fundingRate":"0.0002","realizedRate":"","fundingTime":"1699985600000"}]}`,
	})
	o := NewOkxAdapter(srv.URL, time.Second)
	ctx := context.Background()

	book, err := o.FetchOrderBook(ctx, "BTC/USDT", 5)
	require.NoError(t, err)
	assert.Equal(t, "0.5", book.Bids[0].Size.String())
	assert.Equal(t, "0.2", book.Asks[0].Size.String())

	tk, err := o.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 300.0, tk.QuoteVolume)

	fr, err := o.FetchFundingRate(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, -0.0003, fr.Rate)
	assert.Equal(t, float64(4*time.Hour/time.Millisecond), fr.IntervalRaw)

	hist, err := o.FetchFundingRateHistory(ctx, "BTC/USDT", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Timestamp.Before(hist[1].Timestamp))
	assert.Equal(t, 0.0002, hist[0].Rate)
	assert.Equal(t, 0.00011, hist[1].Rate)
}

func TestOkxUnknownInstrument(t *testing.T) {
	srv := routes(t, map[string]string{
		"/api/v5/market/ticker": `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`,
	})
	o := NewOkxAdapter(srv.URL, time.Second)

	_, err := o.FetchTicker(context.Background(), "NOPE/USDT")
	assert.ErrorIs(t, err, ErrSymbolNotListed)
}

func TestHyperliquidAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch req["type"] {
		case "metaAndAssetCtxs":
			_, _ = io.WriteString(w, `[{"universe":[{"name":"BTC"},{"name":"ETH"},{"name":"OLD","isDelisted":true}]},
				[{"funding":"0.0000125","markPx":"100.5","dayNtlVlm":"900"},
				 {"funding":"-0.00002","markPx":"10","dayNtlVlm":"1500"},
				 {"funding":"0","markPx":"1","dayNtlVlm":"99999"}]]`)
		case "l2Book":
			assert.Equal(t, "BTC", req["coin"])
			_, _ = io.WriteString(w, `{"coin":"BTC","levels":[[{"px":"100","sz":"1","n":1},{"px":"99","sz":"2","n":1}],[{"px":"101","sz":"3","n":2}]]}`)
		default:
			http.Error(w, "bad type", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	h := NewHyperliquidAdapter(srv.URL, time.Second)
	ctx := context.Background()

	fr, err := h.FetchFundingRate(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0000125, fr.Rate)
	assert.Equal(t, 1.0, fr.IntervalHoursMeta)

	book, err := h.FetchOrderBook(ctx, "BTC/USDT", 1)
	require.NoError(t, err)
	assert.Len(t, book.Bids, 1)
	assert.Equal(t, "3", book.Asks[0].Size.String())

	top, err := h.FetchTopVolumeSymbols(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT", "BTC/USDT"}, top)

	_, err = h.FetchTicker(ctx, "OLD/USDT")
	assert.ErrorIs(t, err, ErrSymbolNotListed)
}

func TestBinanceAdapter(t *testing.T) {
	srv := routes(t, map[string]string{
		"/fapi/v1/depth":        `{"lastUpdateId":1,"E":1,"T":1,"bids":[["100.00","2.5"]],"asks":[["100.10","1.5"]]}`,
		"/fapi/v1/premiumIndex": `[{"symbol":"BTCUSDT","markPrice":"100","lastFundingRate":"0.00020000","nextFundingTime":1700000000000,"time":1}]`,
		"/fapi/v1/fundingInfo":  `[{"symbol":"BTCUSDT","fundingIntervalHours":4}]`,
		"/fapi/v1/fundingRate":  `[{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":1699971200000},{"symbol":"BTCUSDT","fundingRate":"0.0002","fundingTime":1699985600000}]`,
	})
	b := NewBinanceAdapter("", srv.URL, time.Second)
	ctx := context.Background()

	book, err := b.FetchOrderBook(ctx, "BTC/USDT", 5)
	require.NoError(t, err)
	assert.Equal(t, "100.1", book.Asks[0].Price.String())
	assert.Equal(t, "2.5", book.Bids[0].Size.String())

	fr, err := b.FetchFundingRate(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0002, fr.Rate)
	assert.Equal(t, 4.0, fr.IntervalHoursMeta)

	hist, err := b.FetchFundingRateHistory(ctx, "BTC/USDT", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 4*time.Hour, hist[1].Timestamp.Sub(hist[0].Timestamp))
}

func TestUnexpectedStatusIsError(t *testing.T) {
	srv := routes(t, map[string]string{})
	m := NewMexcAdapter(srv.URL, time.Second)

	_, err := m.FetchFundingRate(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestBinanceFundingInfoRefreshDoesNotBlockReaders(t *testing.T) {
	var (
		fetches     atomic.Int32
		entered     = make(chan struct{})
		release     = make(chan struct{})
		releaseOnce sync.Once
	)
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/fundingInfo" {
			http.NotFound(w, r)
			return
		}
		if fetches.Add(1) == 1 {
			close(entered)
		}
		<-release
		_, _ = io.WriteString(w, `[{"symbol":"BTCUSDT","fundingIntervalHours":4}]`)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(unblock)

	b := NewBinanceAdapter("", srv.URL, 5*time.Second)
	ctx := context.Background()

	first := make(chan float64, 1)
	go func() {
		hours, _ := b.fundingIntervalHours(ctx, "BTCUSDT")
		first <- hours
	}()
	<-entered

	second := make(chan bool, 1)
	go func() {
		_, ok := b.fundingIntervalHours(ctx, "BTCUSDT")
		second <- ok
	}()

	select {
	case ok := <-second:
		// the table is still loading, so there is nothing to report yet
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader waited on the in-flight fundingInfo request")
	}

	unblock()
	assert.Equal(t, 4.0, <-first)

	hours, ok := b.fundingIntervalHours(ctx, "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 4.0, hours)
	assert.Equal(t, int32(1), fetches.Load())
}
