package exchange

import (
	"context"

	"github.com/suwandre/fundingarb/internal/models"
)

// Exchange is the data-source capability set every venue adapter provides.
// Symbols are canonical ("BTC/USDT"); each adapter owns its translation.
type Exchange interface {
	Name() string
	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error)
	// Oldest first.
	FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.FundingSettlement, error)
	FetchTopVolumeSymbols(ctx context.Context, limit int) ([]string, error)
}
