package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundingarb/internal/models"
)

var (
	ErrEmptyBook         = errors.New("order book side is empty")
	ErrInvalidLevel      = errors.New("order book level has non-positive price or size")
	ErrInvalidNotional   = errors.New("target notional must be positive")
	ErrInsufficientDepth = errors.New("insufficient depth for target notional")
)

// Side selects which half of the book a simulated taker order consumes.
type Side int

const (
	// Buy lifts the asks (impact ask).
	Buy Side = iota
	// Sell hits the bids (impact bid).
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Fill is the outcome of walking one book side for a target notional.
type Fill struct {
	AvgPrice   decimal.Decimal
	TotalCost  decimal.Decimal // quote currency spent
	TotalQty   decimal.Decimal // base currency filled
	BestPrice  decimal.Decimal
	WorstPrice decimal.Decimal
	LevelsUsed int
}

// Price returns the average fill price as a float.
func (f Fill) Price() float64 {
	return f.AvgPrice.InexactFloat64()
}

// ImpactPrice walks levels best-price-first until notional (in quote currency) is
// absorbed. Cost and quantity are summed separately and divided once at the end.
// The input slice is only read.
func ImpactPrice(levels []models.OrderBookLevel, notional decimal.Decimal) (Fill, error) {
	if !notional.IsPositive() {
		return Fill{}, ErrInvalidNotional
	}
	if len(levels) == 0 {
		return Fill{}, ErrEmptyBook
	}

	remaining := notional
	cost := decimal.Zero
	qty := decimal.Zero
	fill := Fill{BestPrice: levels[0].Price}

	for _, lvl := range levels {
		if !lvl.Price.IsPositive() || !lvl.Size.IsPositive() {
			return Fill{}, ErrInvalidLevel
		}

		levelNotional := lvl.Price.Mul(lvl.Size)
		fill.WorstPrice = lvl.Price
		fill.LevelsUsed++

		if remaining.GreaterThanOrEqual(levelNotional) {
			cost = cost.Add(levelNotional)
			qty = qty.Add(lvl.Size)
			remaining = remaining.Sub(levelNotional)
			if remaining.IsZero() {
				break
			}
			continue
		}

		// partial fill on the last level touched
		cost = cost.Add(remaining)
		qty = qty.Add(remaining.Div(lvl.Price))
		remaining = decimal.Zero
		break
	}

	if remaining.IsPositive() {
		return Fill{}, ErrInsufficientDepth
	}

	fill.TotalCost = cost
	fill.TotalQty = qty
	fill.AvgPrice = cost.Div(qty)
	return fill, nil
}

// Quote evaluates the impact price of a taker order on the side it consumes.
func Quote(book *models.OrderBook, side Side, notional decimal.Decimal) (Fill, error) {
	if book == nil {
		return Fill{}, ErrEmptyBook
	}
	if side == Buy {
		return ImpactPrice(book.Asks, notional)
	}
	return ImpactPrice(book.Bids, notional)
}

// ImpactBid is the average price received when selling notional into the bids.
func ImpactBid(book *models.OrderBook, notional decimal.Decimal) (Fill, error) {
	return Quote(book, Sell, notional)
}

// ImpactAsk is the average price paid when buying notional from the asks.
func ImpactAsk(book *models.OrderBook, notional decimal.Decimal) (Fill, error) {
	return Quote(book, Buy, notional)
}

// BestBid returns the top bid level.
func BestBid(book *models.OrderBook) (models.OrderBookLevel, error) {
	if book == nil {
		return models.OrderBookLevel{}, ErrEmptyBook
	}
	return best(book.Bids)
}

// BestAsk returns the top ask level.
func BestAsk(book *models.OrderBook) (models.OrderBookLevel, error) {
	if book == nil {
		return models.OrderBookLevel{}, ErrEmptyBook
	}
	return best(book.Asks)
}

func best(levels []models.OrderBookLevel) (models.OrderBookLevel, error) {
	if len(levels) == 0 {
		return models.OrderBookLevel{}, ErrEmptyBook
	}
	top := levels[0]
	if !top.Price.IsPositive() || top.Size.IsNegative() {
		return models.OrderBookLevel{}, ErrInvalidLevel
	}
	return top, nil
}

// TopOfBook returns the best bid and best ask. Either side missing is an error.
func TopOfBook(book *models.OrderBook) (bid, ask models.OrderBookLevel, err error) {
	if bid, err = BestBid(book); err != nil {
		return models.OrderBookLevel{}, models.OrderBookLevel{}, err
	}
	if ask, err = BestAsk(book); err != nil {
		return models.OrderBookLevel{}, models.OrderBookLevel{}, err
	}
	return bid, ask, nil
}
