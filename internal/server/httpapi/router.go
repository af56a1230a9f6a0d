package httpapi

import (
	"net/http"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the security API, /healthz and, when metrics is not nil,
// /metrics.
func NewRouter(h *Handler, a *Authenticator, metrics http.Handler, log logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log.With("module", "http")))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/security", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/sendPasswordLink", h.SendPasswordLink)
		r.Post("/newPassword", h.NewPassword)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(a, h.cookies))
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
		})
	})

	return r
}
