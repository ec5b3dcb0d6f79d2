package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
)

// subjectFromPath resolves the {id} path segment. End users may only address
// themselves; a mismatch looks like a missing resource. Service callers may
// address any user.
func subjectFromPath(r *http.Request) (uuid.UUID, *AppError) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}

	if auth.IsService(r.Context()) {
		return userID, nil
	}

	authUserID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}
	if userID != authUserID {
		return uuid.Nil, ErrResourceNotFound
	}

	return userID, nil
}

func uuidFromPath(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}

// pagination reads limit and offset query parameters. Zero values are left
// for the service to default.
func pagination(r *http.Request) (limit, offset int, fields []FieldError) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "limit", Message: "must be a non-negative integer"})
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		offset = n
	}
	return limit, offset, fields
}

func timeQuery(r *http.Request, name string, fields *[]FieldError) *time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		*fields = append(*fields, FieldError{Field: name, Message: "must be an RFC 3339 timestamp"})
		return nil
	}
	return &t
}
