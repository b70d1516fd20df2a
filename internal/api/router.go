package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the pages, the JSON API under /api,
// the feed and, when user records are configured, the /auth routes.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	if h.Sessions != nil {
		r.Use(h.Sessions.Middleware)
	}

	// Pages.
	r.Get("/", h.Index)
	r.Get("/keys", h.KeysPage)

	// Feed.
	r.Get("/feed.xml", h.Feed)

	r.Route("/api", func(r chi.Router) {
		r.Use(CORS(h.cfg.CORSOrigins))
		r.Use(RateLimit(h.cfg.RateLimitRequests, h.cfg.RateLimitWindow))

		r.Get("/keys", h.GetKeys)
		r.Post("/keys", h.SaveKeys)

		r.Get("/papers", h.Papers)
		r.Get("/recommendations", h.Recommendations)
		r.Get("/status", h.Status)
		r.Post("/refresh", h.Refresh)

		r.Get("/feed-token", h.FeedToken)
		r.Get("/arxiv/papers", h.ArxivPapers)

		if h.Events != nil {
			r.Get("/events", h.Events.ServeHTTP)
		}
	})

	if h.authEnabled() {
		r.Route("/auth", func(r chi.Router) {
			r.Use(RateLimit(h.cfg.RateLimitRequests, h.cfg.RateLimitWindow))
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})

	return r
}
