package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/handler"
)

const (
	testSecret       = "jwt-secret"
	testServiceToken = "svc-token"
)

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestAuth(t *testing.T) {
	userID := uuid.New()
	valid, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken(userID, "other-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"not bearer", "Basic " + valid, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = auth.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/x/credits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Auth(testSecret)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}
			assert.Equal(t, userID, seen)
		})
	}
}

func TestServiceToken(t *testing.T) {
	var isService bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isService = auth.IsService(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := ServiceToken(testServiceToken)(next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil)
	req.Header.Set(serviceTokenHeader, testServiceToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, isService)

	for _, token := range []string{"", "svc-tokenx", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil)
		if token != "" {
			req.Header.Set(serviceTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, token)
		assert.Equal(t, "INVALID_SERVICE_TOKEN", errorCode(t, rec))
	}
}

func TestTracing(t *testing.T) {
	var seen string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, "gen-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "gen-42", seen)
	assert.Equal(t, "gen-42", rec.Header().Get(traceIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(traceIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}
