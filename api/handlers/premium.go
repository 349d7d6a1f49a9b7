package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/internal/premium"
)

type PremiumHandler struct {
	engine *premium.Engine
}

func NewPremiumHandler(engine *premium.Engine) *PremiumHandler {
	return &PremiumHandler{engine}
}

func (h *PremiumHandler) params(c fiber.Ctx) (exchangeName, symbol string, err error) {
	if h.engine == nil {
		return "", "", c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "premium engine disabled",
		})
	}
	exchangeName, symbol = c.Params("exchange"), PathSymbol(c.Params("symbol"))
	if exchangeName == "" || symbol == "" {
		return "", "", c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "exchange and symbol parameters are required",
		})
	}
	return exchangeName, symbol, nil
}

// Handles GET /v1/premium/:exchange/:symbol. Each call takes a fresh sample.
func (h *PremiumHandler) GetPrediction(c fiber.Ctx) error {
	exchangeName, symbol, err := h.params(c)
	if symbol == "" {
		return err
	}

	log.Info().Str("exchange", exchangeName).Str("symbol", symbol).Msg("predicting funding rate")

	pred, err := h.engine.Predict(c.Context(), exchangeName, symbol)
	switch {
	case errors.Is(err, premium.ErrUnknownExchange):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "exchange not available: " + exchangeName,
		})
	case errors.Is(err, premium.ErrNoPremium):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Error().Err(err).Str("exchange", exchangeName).Str("symbol", symbol).Msg("prediction failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(pred)
}

// Handles GET /v1/stability/:exchange/:symbol.
func (h *PremiumHandler) GetStability(c fiber.Ctx) error {
	exchangeName, symbol, err := h.params(c)
	if symbol == "" {
		return err
	}

	st, err := h.engine.Stability(exchangeName, symbol)
	switch {
	case errors.Is(err, premium.ErrUnknownExchange):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "exchange not available: " + exchangeName,
		})
	case errors.Is(err, premium.ErrInsufficientData):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   err.Error(),
			"samples": h.engine.History().Len(premium.Key{Exchange: exchangeName, Symbol: symbol}),
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"exchange":  exchangeName,
		"symbol":    symbol,
		"stability": st,
	})
}
