// Package api implements the HTTP layer for the MBA scholarship funnel.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
	"github.com/nyashahama/mba-scholarship-backend/internal/store"
	"github.com/nyashahama/mba-scholarship-backend/internal/worker"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// ApplicationFormURL is where tracking links redirect to.
	ApplicationFormURL string

	// AdminJWTSecret verifies HS256 bearer tokens on /api/admin.
	AdminJWTSecret string

	// AllowedOrigin is the landing page origin for CORS in production.
	AllowedOrigin string

	// PromotionDeadline drives the countdown timer. Zero means none.
	PromotionDeadline time.Time

	// Env is "production", "staging", or "development".
	Env string

	// RequestTimeout bounds ordinary requests. Default: 30s.
	RequestTimeout time.Duration

	// SendTimeout is the per-message provider timeout. The immediate admin
	// composer is allowed maxImmediateRecipients of them. Default: 15s.
	SendTimeout time.Duration

	// CycleTimeout bounds a worker cycle; the manual trigger is allowed that
	// long. Default: 4m.
	CycleTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 4 * time.Minute
	}
}

// Store is the subset of *store.Store the handlers use.
type Store interface {
	SubmitApplication(ctx context.Context, p store.SubmitApplicationParams) (store.SubmitApplicationResult, error)
	RecordClick(ctx context.Context, token uuid.UUID, now time.Time) (store.ClickResult, error)
}

// Mailer sends mail on behalf of request handlers. *worker.Advancer
// satisfies it, so handler sends are logged and metered like worker sends.
type Mailer interface {
	Activate(ctx context.Context, app db.ScholarshipApplication, link db.ApplicationLink, seq db.EmailSequence) error
	Deliver(ctx context.Context, msg email.Message, kind db.EmailKind, stage int) (string, error)
}

// Cycler runs one worker cycle on demand. *worker.Runner satisfies it.
type Cycler interface {
	RunCycle(ctx context.Context) (worker.CycleResult, error)
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// q handles all single-query reads. Injected directly, no repo wrapper.
	q db.Querier

	// store handles multi-step atomic writes.
	store Store

	mailer Mailer
	cycler Cycler
	quiz   *quiz.Bank

	validate *validator.Validate

	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	q db.Querier,
	st Store,
	mailer Mailer,
	cycler Cycler,
	bank *quiz.Bank,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	cfg.setDefaults()
	s := &Server{
		q:        q,
		store:    st,
		mailer:   mailer,
		cycler:   cycler,
		quiz:     bank,
		validate: newValidator(),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// ── Health & metrics ──────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			// Landing page, no auth.
			r.Get("/quiz", s.handleGetQuiz)
			r.Post("/quiz/progress", s.handleQuizProgress)
			r.Post("/applications", s.handleSubmitApplication)
			r.Post("/contact", s.handleContact)
			r.Get("/promotion", s.handlePromotion)

			// Drip email click-through. The opaque token is the credential.
			r.Get("/track", s.handleTrackClick)
		})

		// Admin dashboard: bearer JWT with the admin role.
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.RequestTimeout))
				r.Get("/applications", s.handleListApplications)
				r.Get("/applications/export", s.handleExportApplications)
				r.Get("/stats", s.handleStats)
				r.Get("/scheduled-emails", s.handleListScheduledEmails)
			})

			// These send mail inside the request.
			r.With(longRunning(maxImmediateRecipients*s.cfg.SendTimeout)).
				Post("/emails", s.handleSendEmails)
			r.With(longRunning(s.cfg.CycleTimeout)).
				Post("/sequences/advance", s.handleAdvanceSequences)
		})
	})

	return r
}
