package authcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/api/middleware"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
)

// ResolveUserID returns the authenticated caller set by the Auth middleware.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id")
	}
	return id, nil
}
