package middleware

import (
	"net/http"
	"strings"

	"github.com/casadeele/storefront/api/responses"
	"github.com/casadeele/storefront/pkg/apiclient"
	pkgAuth "github.com/casadeele/storefront/pkg/auth"
	"github.com/casadeele/storefront/pkg/auth/session"
	"github.com/casadeele/storefront/pkg/config"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
)

// APITokenHeader carries the shopper's backend token, forwarded on upstream calls.
const APITokenHeader = "X-Api-Token"

// Session validates the storefront session token and seeds the request
// context with the session id that owns the cart.
func Session(cfg config.SessionConfig, checker session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session token"))
				return
			}

			claims, err := pkgAuth.ParseSessionToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session token"))
				return
			}
			sessionID := claims.SessionID.String()

			if checker != nil {
				ok, err := checker.HasSession(r.Context(), sessionID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired"))
					return
				}
			}

			ctx := WithSessionID(r.Context(), sessionID)
			if apiToken := strings.TrimSpace(r.Header.Get(APITokenHeader)); apiToken != "" {
				ctx = apiclient.WithToken(ctx, apiToken)
			}
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
