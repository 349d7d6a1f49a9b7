package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

// ErrSymbolNotListed marks a symbol the venue does not trade. It is an expected
// per-symbol outcome and does not count against the exchange's circuit breaker.
var ErrSymbolNotListed = errors.New("symbol not listed")

const defaultTimeout = 10 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes the body into out.
func getJSON(ctx context.Context, client *http.Client, venue, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", venue, err)
	}
	return doJSON(client, venue, req, out)
}

// postJSON sends body as JSON and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, venue, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", venue, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", venue, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, venue, req, out)
}

func doJSON(client *http.Client, venue string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", venue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", venue, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", venue, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", venue, err)
	}
	return nil
}

// parseLevels converts ["price", "size", ...] string rows. sizeMul scales the venue's
// size unit (contracts) into base currency.
func parseLevels(rows [][]string, sizeMul decimal.Decimal) ([]models.OrderBookLevel, error) {
	levels := make([]models.OrderBookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", row[0], err)
		}
		size, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", row[1], err)
		}
		levels = append(levels, models.OrderBookLevel{Price: price, Size: size.Mul(sizeMul)})
	}
	return levels, nil
}

// parseFloat tolerates empty strings, which several venues send for missing values.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
