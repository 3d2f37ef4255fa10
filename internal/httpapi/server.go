// Package httpapi exposes the monitoring platform over a JSON REST API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/analytics"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/auth"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/instagram"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// Monitor starts collection tasks and reports on them.
type Monitor interface {
	Start(ctx context.Context, task monitor.Task) error
	Status(ctx context.Context) (*model.SystemStatus, error)
	HistoricalStatus(ctx context.Context) (model.HistoricalStatus, error)
	UpdateHistoricalStartDate(ctx context.Context, day time.Time) error
	Purge(ctx context.Context) (int64, error)
	Summary(ctx context.Context) (monitor.Summary, error)
	Latest(ctx context.Context) (monitor.Latest, error)
	Historical(ctx context.Context) (monitor.Historical, error)
	RequestLogs(ctx context.Context, limit int) ([]model.RequestLog, error)
	SystemLogs(ctx context.Context, limit int) ([]model.SystemLog, error)
	SaveAnalysis(ctx context.Context, id string, a model.ResultAnalysis) error
}

// Quota reports the daily request budget.
type Quota interface {
	Snapshot(ctx context.Context) (model.QuotaRecord, error)
	Max() int
}

// TokenVerifier turns a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Store is the persistence the CRUD endpoints use directly.
type Store interface {
	storage.ConfigStore
	storage.TrendsStore
	storage.InstagramStore
	storage.UserStore
}

// Deps are the components the API serves.
type Deps struct {
	Monitor   Monitor
	Quota     Quota
	Store     Store
	Analytics *analytics.Service
	Dashboard *instagram.Dashboard
	Ingester  *instagram.Ingester
	Accounts  *instagram.Accounts
	Verifier  TokenVerifier

	// TaskContext bounds background tasks started over HTTP. It should be
	// cancelled on shutdown.
	TaskContext context.Context
	CORSOrigins []string
}

// Server routes API requests to the platform components.
type Server struct {
	monitor     Monitor
	quota       Quota
	store       Store
	analytics   *analytics.Service
	dashboard   *instagram.Dashboard
	ingester    *instagram.Ingester
	accounts    *instagram.Accounts
	verifier    TokenVerifier
	taskCtx     context.Context
	corsOrigins []string
	validate    *validator.Validate
	log         *slog.Logger
	now         func() time.Time
}

// New creates a Server.
func New(d Deps, log *slog.Logger) *Server {
	taskCtx := d.TaskContext
	if taskCtx == nil {
		taskCtx = context.Background()
	}
	return &Server{
		monitor:     d.Monitor,
		quota:       d.Quota,
		store:       d.Store,
		analytics:   d.Analytics,
		dashboard:   d.Dashboard,
		ingester:    d.Ingester,
		accounts:    d.Accounts,
		verifier:    d.Verifier,
		taskCtx:     taskCtx,
		corsOrigins: d.CORSOrigins,
		validate:    validator.New(),
		log:         log,
		now:         time.Now,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/monitor", s.monitorRoutes)
		r.Route("/terms", s.termsRoutes)
		r.Route("/analytics", s.analyticsRoutes)
		r.Route("/trends", s.trendsRoutes)
		r.Route("/instagram", s.instagramRoutes)
		r.Route("/dashboard/instagram", s.dashboardRoutes)

		r.Get("/users/me", s.handleMe)
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Post("/create-user", s.handleCreateUser)
			r.Post("/delete-user", s.handleDeleteUser)
		})
	})
	return r
}
