package auth

import (
	"context"

	"github.com/google/uuid"
)

type userIDKey struct{}

type serviceKey struct{}

func ContextWithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// ContextWithService marks the request as made by a trusted collaborator or
// operator holding the service token. Such callers may act on any user.
func ContextWithService(ctx context.Context) context.Context {
	return context.WithValue(ctx, serviceKey{}, true)
}

func IsService(ctx context.Context) bool {
	ok, _ := ctx.Value(serviceKey{}).(bool)
	return ok
}
