package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/credit-ledger/internal/handler"
	"github.com/josh-kwaku/credit-ledger/internal/middleware"
)

// Handlers groups the HTTP surface. Every field is required.
type Handlers struct {
	Health      *handler.HealthHandler
	Credits     *handler.CreditHandler
	Internal    *handler.InternalHandler
	Withdrawals *handler.WithdrawalHandler
	Admin       *handler.AdminHandler
}

type Options struct {
	JWTSecret      string
	ServiceToken   string
	Idempotency    middleware.IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// NewRouter mounts three audiences on one mux: end users authenticated by
// JWT, collaborator services and operators authenticated by the service
// token, and unauthenticated probes.
func NewRouter(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	user := chain(middleware.Auth(opts.JWTSecret))
	userWrite := chain(middleware.Auth(opts.JWTSecret), middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))
	svc := chain(middleware.ServiceToken(opts.ServiceToken))
	svcWrite := chain(middleware.ServiceToken(opts.ServiceToken), middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))

	mux.HandleFunc("GET /health", h.Health.Liveness)
	mux.HandleFunc("GET /health/ready", h.Health.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /docs", handler.ServeDocs)
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec)

	mux.Handle("GET /api/v1/users/{id}/credits", user(h.Credits.Balance))
	mux.Handle("GET /api/v1/users/{id}/credits/transactions", user(h.Credits.History))
	mux.Handle("POST /api/v1/users/{id}/withdrawals", userWrite(h.Withdrawals.Create))
	mux.Handle("GET /api/v1/users/{id}/withdrawals", user(h.Withdrawals.List))
	mux.Handle("GET /api/v1/users/{id}/withdrawals/eligibility", user(h.Withdrawals.Eligibility))

	mux.Handle("POST /api/v1/internal/users/{id}/account", svcWrite(h.Internal.CreateAccount))
	mux.Handle("POST /api/v1/internal/users/{id}/consume", svcWrite(h.Internal.Consume))
	mux.Handle("POST /api/v1/internal/users/{id}/refunds", svcWrite(h.Internal.Refund))
	mux.Handle("POST /api/v1/internal/users/{id}/consumption-refunds", svcWrite(h.Internal.RefundConsumption))
	mux.Handle("POST /api/v1/internal/users/{id}/grants", svcWrite(h.Internal.Grant))
	mux.Handle("GET /api/v1/internal/pricing/{feature}", svc(h.Internal.Price))

	mux.Handle("GET /api/v1/admin/users/{id}/credits", svc(h.Credits.Balance))
	mux.Handle("GET /api/v1/admin/users/{id}/transactions", svc(h.Credits.History))
	mux.Handle("GET /api/v1/admin/users/{id}/consistency", svc(h.Admin.Consistency))
	mux.Handle("POST /api/v1/admin/users/{id}/repair", svc(h.Admin.Repair))
	mux.Handle("PUT /api/v1/admin/users/{id}/status", svc(h.Admin.SetStatus))
	mux.Handle("POST /api/v1/admin/reconcile", svc(h.Admin.Reconcile))
	mux.Handle("POST /api/v1/admin/expire-sub", svc(h.Admin.ExpireSub))
	mux.Handle("GET /api/v1/admin/reports/daily", svc(h.Admin.DailyReport))
	mux.Handle("GET /api/v1/admin/withdrawals/{withdrawal_id}", svc(h.Withdrawals.Get))
	mux.Handle("POST /api/v1/admin/withdrawals/{withdrawal_id}/approve", svc(h.Withdrawals.Approve))
	mux.Handle("POST /api/v1/admin/withdrawals/{withdrawal_id}/reject", svc(h.Withdrawals.Reject))
	mux.Handle("POST /api/v1/admin/withdrawals/{withdrawal_id}/transfer", svc(h.Withdrawals.Transfer))
	mux.Handle("GET /api/v1/admin/withdrawal-config", svc(h.Withdrawals.GetConfig))
	mux.Handle("PUT /api/v1/admin/withdrawal-config", svc(h.Withdrawals.UpdateConfig))

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.Recovery(middleware.Tracing(middleware.Logging(logger)(middleware.Metrics(mux))))
}

// chain applies middleware outermost first. Route-level wrapping keeps
// path values visible to the middleware.
func chain(mws ...func(http.Handler) http.Handler) func(http.HandlerFunc) http.Handler {
	return func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		for i := len(mws) - 1; i >= 0; i-- {
			out = mws[i](out)
		}
		return out
	}
}
