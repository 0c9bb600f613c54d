package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service  SchedulingService
	DB       Pinger
	Redis    *redis.Client
	Logger   zerolog.Logger
	Location *time.Location
	Env      string
	Version  string

	// AssistantPractitionerID enables POST /citas/asistente/nueva when non-zero.
	AssistantPractitionerID int64

	RateLimitRPS   float64
	RateLimitBurst int

	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.DB, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	h := NewHandlers(cfg.Service, cfg.Logger, cfg.Location)
	limit := RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r.Route("/citas", func(r chi.Router) {
		r.With(limit).Post("/nueva", h.Book(scheduling.WithChannel("web")))
		if cfg.AssistantPractitionerID > 0 {
			r.With(limit).Post("/asistente/nueva", h.Book(
				scheduling.WithChannel("assistant"),
				scheduling.WithForcedPractitioner(cfg.AssistantPractitionerID),
			))
		}
		r.Get("/pre-registros", h.ListPendingPreRegistrations)
		r.Put("/confirmar-pre-registro/{id}", h.PromotePreRegistration)
		r.Get("/{id}", h.GetAppointment)
		r.Put("/{id}/estado", h.SetAppointmentState)
		r.Put("/{id}/archivar", h.ArchiveAppointment)
	})

	r.Route("/tratamientos", func(r chi.Router) {
		r.Get("/all", h.ListTreatments)
		r.Post("/nuevo", h.CreateTreatment)
		r.Put("/update/{id}", h.UpdateTreatment)
		r.Get("/{id}", h.GetTreatment)
		r.Get("/{id}/citas", h.ListTreatmentVisits)
		r.Post("/{id}/agregarCita", h.AddVisit)
		r.Put("/updateStatus/{id}", h.SetTreatmentState)
		r.Put("/incrementarCitas/{id}", h.RecordVisitCompletion)
		r.Put("/confirmar/{id}", h.ConfirmTreatment)
	})

	return r
}
