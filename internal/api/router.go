package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/booking"
	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	"github.com/careloop/practice-scheduling/internal/practice"
	"github.com/careloop/practice-scheduling/internal/schedule"
)

type RouterConfig struct {
	Schedule  *schedule.Service
	Booking   *booking.Service
	Practices *practice.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *zap.Logger
	Metrics   *metrics.SchedulingMetrics
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/practices/{practiceID}", func(r chi.Router) {
		r.Route("/availability", func(r chi.Router) {
			r.Get("/blocks", listBlocksHandler(cfg.Schedule))
			r.Post("/blocks", createBlockHandler(cfg.Schedule))
			r.Post("/blocks/toggle", toggleBlockHandler(cfg.Schedule))
			r.Delete("/blocks/{blockID}", deleteBlockHandler(cfg.Schedule))

			r.Get("/exceptions", listExceptionsHandler(cfg.Schedule))
			r.Post("/exceptions", createExceptionHandler(cfg.Schedule))
			r.Delete("/exceptions/{exceptionID}", deleteExceptionHandler(cfg.Schedule))
		})

		r.Get("/slots", dayGridHandler(cfg.Schedule))

		r.Get("/appointments", listAppointmentsHandler(cfg.Booking, cfg.Practices))
		r.Post("/appointments", bookAppointmentHandler(cfg.Booking))

		r.Post("/leads", createLeadHandler(cfg.Booking))
		r.Get("/leads", listEligibleLeadsHandler(cfg.Booking))

		r.Get("/coverage", coveragePolygonHandler(cfg.Practices))
	})

	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/outcome", appointmentOutcomeHandler(cfg.Booking))

	r.Get("/coverage/overlaps", listOverlapsHandler(cfg.Practices))

	return r
}
