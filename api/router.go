package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suwandre/fundingarb/api/handlers"
	"github.com/suwandre/fundingarb/internal/metrics"
	"github.com/suwandre/fundingarb/internal/scheduler"
)

func SetupRoutes(app *fiber.App, sched *scheduler.Scheduler, m *metrics.Metrics) {
	oppHandler := handlers.NewOpportunityHandler(sched)
	premiumHandler := handlers.NewPremiumHandler(sched.Engine())

	app.Get("/healthz", handlers.Health)
	if reg := m.Registry(); reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")

	v1.Get("/opportunities", oppHandler.GetLatest)
	v1.Get("/opportunities/:symbol", oppHandler.GetBySymbol)
	v1.Get("/drops", oppHandler.GetDrops)
	v1.Get("/premium/:exchange/:symbol", premiumHandler.GetPrediction)
	v1.Get("/stability/:exchange/:symbol", premiumHandler.GetStability)
}
