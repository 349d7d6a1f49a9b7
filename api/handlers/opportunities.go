package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/internal/models"
	"github.com/suwandre/fundingarb/internal/scheduler"
	"github.com/suwandre/fundingarb/internal/snapshot"
)

type OpportunityHandler struct {
	scheduler *scheduler.Scheduler
}

func NewOpportunityHandler(scheduler *scheduler.Scheduler) *OpportunityHandler {
	return &OpportunityHandler{scheduler}
}

// PathSymbol turns the URL form BTC-USDT into BTC/USDT.
func PathSymbol(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, "-", "/"))
}

func (h *OpportunityHandler) latest(c fiber.Ctx) (*snapshot.Snapshot, error) {
	snap, err := h.scheduler.Latest(c.Context())
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no data yet",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load latest snapshot")
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load opportunities",
		})
	}
	return snap, nil
}

// Handles GET /v1/opportunities.
func (h *OpportunityHandler) GetLatest(c fiber.Ctx) error {
	snap, err := h.latest(c)
	if snap == nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":            snap.ID,
		"timestamp":     snap.Timestamp,
		"count":         len(snap.Opportunities),
		"opportunities": snap.Opportunities,
	})
}

// Handles GET /v1/opportunities/:symbol.
func (h *OpportunityHandler) GetBySymbol(c fiber.Ctx) error {
	symbol := PathSymbol(c.Params("symbol"))
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol parameter is required",
		})
	}

	snap, err := h.latest(c)
	if snap == nil {
		return err
	}

	matches := make([]models.FundingOpportunity, 0)
	for _, o := range snap.Opportunities {
		if o.Symbol == symbol {
			matches = append(matches, o)
		}
	}

	if len(matches) == 0 {
		log.Warn().Str("symbol", symbol).Msg("symbol not in latest snapshot")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no opportunity for " + symbol + " in the latest scan",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"symbol":        symbol,
		"timestamp":     snap.Timestamp,
		"opportunities": matches,
	})
}

// Handles GET /v1/drops.
func (h *OpportunityHandler) GetDrops(c fiber.Ctx) error {
	report, ok := h.scheduler.LastReport()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no data yet",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"finished": report.Finished,
		"universe": report.Universe,
		"count":    len(report.Drops),
		"drops":    report.Drops,
	})
}
