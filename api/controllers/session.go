package controllers

import (
	"context"
	"net/http"

	"github.com/casadeele/storefront/api/middleware"
	"github.com/casadeele/storefront/api/responses"
	"github.com/casadeele/storefront/pkg/auth/session"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
)

type sessionIssuer interface {
	Issue(ctx context.Context) (session.Issued, error)
}

type sessionRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

// SessionForgetter drops in-memory state held for a session.
type SessionForgetter interface {
	Forget(sessionID string)
}

// SessionCreate opens a storefront session; the token it returns owns one cart.
func SessionCreate(issuer sessionIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if issuer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable"))
			return
		}

		issued, err := issuer.Issue(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open session"))
			return
		}

		if logg != nil {
			logg.Info(logg.WithSessionID(r.Context(), issued.SessionID), "session.issued")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, issued)
	}
}

// SessionEnd revokes the caller's session and releases the in-memory state the
// forgetters hold for it. The persisted cart slot is left in place and expires
// on its own TTL.
func SessionEnd(revoker sessionRevoker, logg *logger.Logger, forgetters ...SessionForgetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if revoker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable"))
			return
		}
		sessionID, err := sessionFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := revoker.Revoke(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session"))
			return
		}
		for _, f := range forgetters {
			if f != nil {
				f.Forget(sessionID)
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ended"})
	}
}

func sessionFromRequest(r *http.Request) (string, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session context missing")
	}
	return sessionID, nil
}
