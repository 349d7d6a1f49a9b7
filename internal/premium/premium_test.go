package premium

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suwandre/fundingarb/internal/models"
)

func samples(values ...float64) []models.PremiumSample {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PremiumSample, len(values))
	for i, v := range values {
		out[i] = models.PremiumSample{
			Exchange:     "binance",
			Symbol:       "BTC/USDT",
			PremiumIndex: v,
			CapturedAt:   base.Add(time.Duration(i) * 5 * time.Second),
		}
	}
	return out
}

func TestTWAP(t *testing.T) {
	_, err := TWAP(nil)
	assert.ErrorIs(t, err, ErrNoTWAP)

	v, err := TWAP(samples(0.0007))
	require.NoError(t, err)
	assert.Equal(t, 0.0007, v)

	// weights 1 and 2 over 3
	v, err = TWAP(samples(0.0003, 0.0006))
	require.NoError(t, err)
	assert.InDelta(t, (0.0003+2*0.0006)/3, v, 1e-15)

	// newer samples pull harder than older ones
	v, err = TWAP(samples(0, 0, 0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, v, 1e-12)
}

func TestRingCapacityAndEviction(t *testing.T) {
	r := NewRing(3)
	for i, s := range samples(1, 2, 3, 4, 5) {
		r.Append(s)
		assert.LessOrEqual(t, r.Len(), 3, "after append %d", i)
	}

	got := r.Last(0)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{3, 4, 5}, values(got))
	assert.Equal(t, []float64{4, 5}, values(r.Last(2)))
	assert.Equal(t, []float64{3, 4, 5}, values(r.Last(10)))
}

func values(s []models.PremiumSample) []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].PremiumIndex
	}
	return out
}

func TestHistoryEvictsOldestBeyondCapacity(t *testing.T) {
	const capacity, extra = 5, 3
	h := NewHistory(capacity)

	var all []float64
	for i := 0; i < capacity+extra; i++ {
		all = append(all, float64(i))
	}
	for _, s := range samples(all...) {
		h.Append(s)
	}

	key := Key{Exchange: "binance", Symbol: "BTC/USDT"}
	assert.Equal(t, capacity, h.Len(key))
	assert.Equal(t, all[extra:], values(h.Window(key, 0)))
	assert.Equal(t, []Key{key}, h.Keys())
	assert.Nil(t, h.Window(Key{Exchange: "okx", Symbol: "BTC/USDT"}, 10))
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory(100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Append(models.PremiumSample{
					Exchange:     fmt.Sprintf("ex%d", w%2),
					Symbol:       "ETH/USDT",
					PremiumIndex: float64(i),
				})
				_ = h.Window(Key{Exchange: "ex0", Symbol: "ETH/USDT"}, 10)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 100, h.Len(Key{Exchange: "ex0", Symbol: "ETH/USDT"}))
	assert.Equal(t, 100, h.Len(Key{Exchange: "ex1", Symbol: "ETH/USDT"}))
}

func TestPredictRate(t *testing.T) {
	// inside the clamp the prediction collapses to the base rate
	assert.InDelta(t, 0.0001, PredictRate(0.0003, 0.0001, 0.0005), 1e-15)
	assert.InDelta(t, 0.0001, PredictRate(-0.0002, 0.0001, 0.0005), 1e-15)

	// outside it the premium leaks through, offset by the clamp
	assert.InDelta(t, 0.0015, PredictRate(0.002, 0.0001, 0.0005), 1e-15)
	assert.InDelta(t, -0.0015, PredictRate(-0.002, 0.0001, 0.0005), 1e-15)
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, models.ConfidenceHigh, ConfidenceFor(0.00005))
	assert.Equal(t, models.ConfidenceHigh, ConfidenceFor(-0.00005))
	assert.Equal(t, models.ConfidenceMedium, ConfidenceFor(0.0001))
	assert.Equal(t, models.ConfidenceMedium, ConfidenceFor(0.00029))
	assert.Equal(t, models.ConfidenceLow, ConfidenceFor(0.0003))
}

func TestAnalyze(t *testing.T) {
	_, err := Analyze(samples(1, 2, 3, 4, 5, 6, 7, 8, 9))
	assert.ErrorIs(t, err, ErrInsufficientData)

	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 0.0002
	}
	st, err := Analyze(samples(flat...))
	require.NoError(t, err)
	assert.InDelta(t, 0.0002, st.Mean, 1e-15)
	assert.InDelta(t, 0, st.Std, 1e-15)
	assert.Equal(t, models.TrendFlat, st.Trend)
	assert.InDelta(t, 1.0, st.Score, 1e-9)
	assert.Equal(t, 10, st.SampleCount)

	rising := make([]float64, 10)
	for i := range rising {
		rising[i] = float64(i) * 0.0001
	}
	st, err = Analyze(samples(rising...))
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, st.Slope, 1e-12)
	assert.Equal(t, models.TrendUp, st.Trend)
	assert.InDelta(t, 0.0009, st.Range, 1e-12)
	assert.InDelta(t, 0, st.Min, 1e-15)
	// population std of 0..9 scaled by 1e-4
	assert.InDelta(t, 0.000287228, st.Std, 1e-9)
	assert.InDelta(t, 1-0.287228, st.Score, 1e-5)

	falling := make([]float64, 12)
	for i := range falling {
		falling[i] = -float64(i) * 0.01
	}
	st, err = Analyze(samples(falling...))
	require.NoError(t, err)
	assert.Equal(t, models.TrendDown, st.Trend)
	assert.Equal(t, 0.0, st.Score)
}
