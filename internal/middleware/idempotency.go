package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/handler"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	maxIdempotencyKey = 255
)

// IdempotencyStore persists reservations and completed responses.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyCacheEntry, error)
	Reserve(ctx context.Context, key string, userID uuid.UUID, requestHash string, ttl time.Duration) (bool, error)
	Complete(ctx context.Context, key string, userID uuid.UUID, statusCode int, body []byte) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

// Idempotency makes mutating requests safe to retry. A key is reserved before
// the handler runs; the finished response is stored and replayed for repeats
// of the same request. Server errors and conflicts are not cached so the
// client can retry them with the same key.
func Idempotency(store IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" || len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			scope := idempotencyScope(r)
			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			reqHash := requestHash(r.Method, r.URL.Path, body)

			reserved, err := store.Reserve(r.Context(), key, scope, reqHash, ttl)
			if err != nil {
				log.Error("idempotency reservation failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if !reserved {
				replay(w, r, store, key, scope, reqHash, log)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			defer func() {
				// The outcome must be recorded even when the client has gone away.
				ctx := context.WithoutCancel(r.Context())
				if p := recover(); p != nil {
					_ = store.Release(ctx, key, scope)
					panic(p)
				}
				if !cacheable(rec.statusCode) {
					if err := store.Release(ctx, key, scope); err != nil {
						log.Error("idempotency release failed", "error", err)
					}
					return
				}
				if err := store.Complete(ctx, key, scope, rec.statusCode, rec.body.Bytes()); err != nil {
					log.Error("idempotency store failed", "error", err)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key string, scope uuid.UUID, reqHash string, log *slog.Logger) {
	cached, err := store.Get(r.Context(), key, scope)
	if err != nil {
		log.Error("idempotency cache lookup failed", "error", err)
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return
	}
	// The holder released between our reserve and lookup.
	if cached == nil {
		handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
		return
	}
	if cached.RequestHash != reqHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return
	}
	if cached.InFlight() {
		handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		log.Error("failed to write idempotent replay", "error", err)
	}
}

// idempotencyScope namespaces keys by the end user, or by the account a
// service call addresses.
func idempotencyScope(r *http.Request) uuid.UUID {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return userID
	}
	if id, err := uuid.Parse(r.PathValue("id")); err == nil {
		return id
	}
	return uuid.Nil
}

func cacheable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
