package middleware

import (
	"net/http"
	"strings"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	pkgAuth "github.com/KTAKhang/SEP490-Group10-sub002/pkg/auth"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

const bearerChallenge = `Bearer realm="storefront"`

// Auth validates the bearer token and seeds the caller into the context and
// the log fields. Only the customer and admin roles survive token parsing.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithCaller(r.Context(), Caller{UserID: claims.UserID, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithCaller(ctx, claims.UserID.String(), string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <jwt>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", bearerChallenge)
	responses.WriteError(r.Context(), logg, w, err)
}
