package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/handler"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

const (
	testSecret       = "jwt-secret"
	testServiceToken = "svc-token"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type noopStore struct{}

func (noopStore) Get(context.Context, string, uuid.UUID) (*repository.IdempotencyCacheEntry, error) {
	return nil, nil
}

func (noopStore) Reserve(context.Context, string, uuid.UUID, string, time.Duration) (bool, error) {
	return true, nil
}

func (noopStore) Complete(context.Context, string, uuid.UUID, int, []byte) error { return nil }

func (noopStore) Release(context.Context, string, uuid.UUID) error { return nil }

// newTestRouter builds a router whose handlers have no services behind them;
// only requests refused before reaching a service are exercised.
func newTestRouter() http.Handler {
	return NewRouter(Handlers{
		Health:      handler.NewHealthHandler(okPinger{}, "test"),
		Credits:     handler.NewCreditHandler(nil),
		Internal:    handler.NewInternalHandler(nil),
		Withdrawals: handler.NewWithdrawalHandler(nil),
		Admin:       handler.NewAdminHandler(nil, nil, nil),
	}, Options{
		JWTSecret:      testSecret,
		ServiceToken:   testServiceToken,
		Idempotency:    noopStore{},
		IdempotencyTTL: time.Hour,
	})
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_AccessBoundaries(t *testing.T) {
	router := newTestRouter()
	self := uuid.New()
	other := uuid.New()

	tests := []struct {
		name       string
		method     string
		path       string
		header     map[string]string
		wantStatus int
	}{
		{"liveness is open", http.MethodGet, "/health", nil, http.StatusOK},
		{"readiness is open", http.MethodGet, "/health/ready", nil, http.StatusOK},
		{"metrics is open", http.MethodGet, "/metrics", nil, http.StatusOK},
		{"api docs are open", http.MethodGet, "/docs/openapi.yaml", nil, http.StatusOK},
		{"balance needs a token", http.MethodGet, "/api/v1/users/" + self.String() + "/credits", nil, http.StatusUnauthorized},
		{
			"users cannot read other balances",
			http.MethodGet, "/api/v1/users/" + other.String() + "/credits",
			map[string]string{"Authorization": bearer(t, self)},
			http.StatusNotFound,
		},
		{
			"users cannot reach internal routes",
			http.MethodPost, "/api/v1/internal/users/" + self.String() + "/consume",
			map[string]string{"Authorization": bearer(t, self)},
			http.StatusUnauthorized,
		},
		{
			"users cannot reach admin routes",
			http.MethodPost, "/api/v1/admin/reconcile",
			map[string]string{"Authorization": bearer(t, self)},
			http.StatusUnauthorized,
		},
		{
			"service writes need an idempotency key",
			http.MethodPost, "/api/v1/internal/users/" + self.String() + "/consume",
			map[string]string{"X-Service-Token": testServiceToken},
			http.StatusBadRequest,
		},
		{
			"user withdrawal needs an idempotency key",
			http.MethodPost, "/api/v1/users/" + self.String() + "/withdrawals",
			map[string]string{"Authorization": bearer(t, self)},
			http.StatusBadRequest,
		},
		{
			"wrong method",
			http.MethodDelete, "/api/v1/users/" + self.String() + "/credits",
			map[string]string{"Authorization": bearer(t, self)},
			http.StatusMethodNotAllowed,
		},
		{"unknown route", http.MethodGet, "/api/v2/anything", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRouter_SetsRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := chain(mw("outer"), mw("inner"))(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
