package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
// Anything else counts as no credentials.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth authenticates the request and stores the principal on its
// context. A rotated refresh token is written back as a cookie together with
// the new access token header.
func RequireAuth(a *Authenticator, cookies cookieJar) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := a.Authenticate(r.Context(), bearerToken(r), refreshTokenFrom(r))
			if err != nil {
				writeError(w, err)
				return
			}

			if res.Rotated != nil {
				cookies.set(w, res.Rotated)
				w.Header().Set(AccessTokenHeader, res.Rotated.AccessToken)
				r = withRefreshToken(r, res.Rotated.RefreshToken)
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), res.User)))
		})
	}
}

// withRefreshToken replaces the refresh cookie on r so handlers further down
// see the token that is now valid.
func withRefreshToken(r *http.Request, token string) *http.Request {
	r = r.Clone(r.Context())
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != common.RefreshTokenCookieName {
			r.AddCookie(c)
		}
	}
	r.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: token})
	return r
}

// requestLogger logs one line per request.
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
