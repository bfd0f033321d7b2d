package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/bizmanager/ledgersync/api/responses"
	"github.com/bizmanager/ledgersync/internal/store"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/logger"
)

// TokenAuth gates every ledger route behind the shared opaque token. A
// request without the header is unauthenticated; a request with the wrong
// token is a permission failure, so the client can tell the two apart.
func TokenAuth(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "store token not configured"))
				return
			}

			got := r.Header.Get(store.TokenHeader)
			if got == "" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "missing store token"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeForbidden, "store token rejected"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
