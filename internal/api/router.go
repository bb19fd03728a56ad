package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postlock/internal/postservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *postservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	bh := NewBundleHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/build", h.Build)

	r.Get("/files", h.ListFiles)
	r.Get("/files/*", h.GetFile)
	r.Get("/runs", h.ListRuns)

	r.Post("/lock", h.Lock)
	r.Post("/unlock", h.Unlock)

	r.Post("/bundles", bh.Upload)

	r.Get("/commands", h.ListCommands)
	r.Post("/commands/{name}", h.RunCommand)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
