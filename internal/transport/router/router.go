package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/trunov/webpbucket/internal/transport/handler"
	"github.com/trunov/webpbucket/internal/transport/middleware"
)

func NewRouter(h *handler.Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover)

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/images", func(r chi.Router) {
		r.Post("/convert", h.ConvertImage)
		r.Post("/convert-all", h.ConvertAllImages)
		r.Get("/convert-all/status", h.BatchStatus)
		r.Get("/list", h.ListImages)
	})

	return r
}
