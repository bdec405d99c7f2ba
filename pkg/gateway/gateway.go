// Package gateway is the HTTP surface of the records service. It decodes
// requests, hands writes to the orchestrator and reads to the query service,
// and renders the uniform {success, ...} response bodies.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/intentlog"
	"github.com/carefolio/records/pkg/logging"
	"github.com/carefolio/records/pkg/metrics"
	"github.com/carefolio/records/pkg/orchestrator"
	"github.com/carefolio/records/pkg/query"
	"github.com/carefolio/records/pkg/reconcile"
)

// Writer runs orchestrated writes.
type Writer interface {
	CertifyDoctor(ctx context.Context, req orchestrator.CertifyRequest) (*orchestrator.CertifyResult, error)
	RevokeCertification(ctx context.Context, req orchestrator.RevokeRequest) (*orchestrator.RevokeResult, error)
	AppendUserLog(ctx context.Context, req orchestrator.LogRequest) (*orchestrator.LogResult, error)
	CreateConsultation(ctx context.Context, req orchestrator.ConsultationRequest) (*orchestrator.ConsultationResult, error)
	RepairIndex(ctx context.Context, kind index.Kind, subject string, seq uint64) (*orchestrator.RepairResult, error)
}

// Reader answers queries.
type Reader interface {
	ListDoctors(ctx context.Context) ([]index.CertificationRecord, error)
	GetDoctor(ctx context.Context, doctor string) (*index.CertificationRecord, error)
	VerifyDoctor(ctx context.Context, doctor string) (*query.Verification, error)
	ListLogs(ctx context.Context, user, logType string) ([]index.LogEntry, error)
	GetLog(ctx context.Context, user string, seq uint64) (*query.LogView, error)
	ListConsultations(ctx context.Context, patient string) ([]index.ConsultationRecord, error)
	GetConsultation(ctx context.Context, patient string, seq uint64) (*query.ConsultationView, error)
	FetchBlob(ctx context.Context, address string) (any, error)
}

// IntentLister lists open intents.
type IntentLister interface {
	List() ([]intentlog.Intent, error)
}

// Reconciler runs one reconcile pass on demand.
type Reconciler interface {
	RunOnce(ctx context.Context) (reconcile.Summary, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the HTTP surface. Intents, Reconciler and
// Gatherer are optional.
type Deps struct {
	Writer     Writer
	Reader     Reader
	Intents    IntentLister
	Reconciler Reconciler
	Gatherer   prometheus.Gatherer
	Checks     map[string]HealthCheck

	// ProgramID and SignerAddress are reported by /health.
	ProgramID     string
	SignerAddress string
}

// Gateway serves the records API.
type Gateway struct {
	logger      *logging.ColoredLogger
	cfg         config.ServerConfig
	deps        Deps
	rateLimiter *RateLimiter
	startedAt   time.Time
}

// New creates a Gateway.
func New(logger *logging.ColoredLogger, cfg config.ServerConfig, deps Deps) *Gateway {
	g := &Gateway{
		logger:    logger,
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
	}
	if cfg.RateLimitPerMinute > 0 {
		g.rateLimiter = NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	logger.ComponentInfo(logging.ComponentGateway, "Gateway initialized",
		zap.String("program_id", deps.ProgramID),
		zap.Bool("admin_routes", cfg.AdminToken != ""),
		zap.Bool("metrics", cfg.EnableMetrics && deps.Gatherer != nil),
		zap.Bool("rate_limit", g.rateLimiter != nil))
	return g
}

// Routes returns the handler with every route and middleware configured.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(g.requestIDMiddleware)
	r.Use(g.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", g.healthHandler)
	if g.cfg.EnableMetrics && g.deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(g.deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(g.rateLimitMiddleware)
		if g.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(g.cfg.RequestTimeout))
		}

		r.Post("/doctor/certify", g.certifyDoctorHandler)
		r.Get("/doctors", g.listDoctorsHandler)
		r.Get("/doctor/verify/{address}", g.verifyDoctorHandler)
		r.Post("/doctor/revoke", g.revokeDoctorHandler)
		r.Get("/doctor/{address}", g.getDoctorHandler)

		r.Post("/user/log", g.appendLogHandler)
		r.Get("/user/logs/{address}", g.listLogsHandler)
		r.Get("/user/log/{address}/{sequence}", g.getLogHandler)

		r.Post("/consultation/create", g.createConsultationHandler)
		r.Get("/consultation/{address}", g.listConsultationsHandler)
		r.Get("/consultation/{address}/{sequence}", g.getConsultationHandler)

		r.Get("/ipfs/{address}", g.fetchBlobHandler)

		if g.cfg.AdminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(g.adminAuthMiddleware)
				r.Post("/repair", g.repairHandler)
				r.Get("/intents", g.listIntentsHandler)
				r.Post("/reconcile", g.reconcileHandler)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
