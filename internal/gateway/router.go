package gateway

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncm-portal/internal/auth"
)

// NewRouter assembles the portal's routes. The browser-facing group and the
// JSON API share the same session check; the failure rendering is the only
// difference between them.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/login", h.loginPage)
	r.Post("/login", h.login)
	r.Get("/logout", h.logout)
	if h.staticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Clean(h.staticDir))))
		r.Handle("/static/*", fs)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(h.sessions, auth.RedirectToLogin))
		r.Get("/", h.index)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireSession(h.sessions, auth.JSONUnauthorized))

		r.Get("/check-login", h.checkLogin)
		r.Get("/reload", h.reloadAll)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.listDevices)
			r.Post("/", h.createDevice)
			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", h.getDevice)
				r.Put("/", h.updateDevice)
				r.Delete("/", h.deleteDevice)
			})
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", h.listNodes)
			r.Get("/stats", h.nodeStats)
			r.Get("/export.xlsx", h.exportNodes)
			r.Get("/export.pdf", h.exportNodesPDF)
			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", h.showNode)
				r.Get("/versions", h.nodeVersions)
				r.Get("/config", h.nodeConfig)
				r.Get("/reload", h.reloadNode)
			})
		})
	})

	return r
}
