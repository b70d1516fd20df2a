package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/arxiv"
	"github.com/starford/paperfeed/internal/feed"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/scope"
	"github.com/starford/paperfeed/internal/session"
	"github.com/starford/paperfeed/internal/userdb"
)

// Refresher serves and regenerates the daily refresh state.
type Refresher interface {
	Get(ctx context.Context, creds models.Credentials, store refresh.StateStore) refresh.Result
	Refresh(ctx context.Context, creds models.Credentials, store refresh.StateStore) refresh.Result
}

// PaperSearcher runs arXiv keyword searches.
type PaperSearcher interface {
	Papers(ctx context.Context, keywords string) arxiv.Result
}

// FeedConfig configures GET /feed.xml.
type FeedConfig struct {
	Enabled     bool
	Title       string
	Description string
	// PublicURL overrides the request root as the channel link.
	PublicURL string
}

// Config holds the HTTP-facing settings.
type Config struct {
	Feed              FeedConfig
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string
	// AdminKeyManaged marks the recommender key as set by the operator.
	AdminKeyManaged bool
}

// Deps are the collaborators of Handler. Sessions, Users, Tokens, Arxiv
// and Events are optional.
type Deps struct {
	Resolver  scope.Resolver
	Refresher Refresher
	Sessions  *session.Manager
	Users     *userdb.DB
	Tokens    *scope.FeedTokens
	Arxiv     PaperSearcher
	Events    http.Handler
}

// Handler holds API route handlers.
type Handler struct {
	Deps
	cfg    Config
	logger *slog.Logger
	pages  map[string]*template.Template
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{Deps: deps, cfg: cfg, logger: logger, pages: parsePages()}
}

func (h *Handler) authEnabled() bool {
	return h.Users != nil && h.Sessions != nil
}

// resolve returns the scope of r, writing a JSON error when it fails.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*scope.Scope, bool) {
	sc, err := h.Resolver.Resolve(r)
	if err != nil {
		h.writeScopeError(w, err)
		return nil, false
	}
	return sc, true
}

func (h *Handler) writeScopeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperr.ErrUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, errorBody("login required"))
		return
	}
	h.logger.Error("resolve scope failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// today returns the refresh result of sc. Scopes without complete
// credentials get an empty result and no upstream traffic.
func (h *Handler) today(ctx context.Context, sc *scope.Scope) refresh.Result {
	if !sc.Credentials.Complete() {
		return refresh.Result{SeedPapers: []models.Paper{}, Recommendations: []models.Recommendation{}}
	}
	return h.Refresher.Get(ctx, sc.Credentials, sc.Store)
}

func (h *Handler) basePage(title string) page {
	return page{Title: title, FeedEnabled: h.cfg.Feed.Enabled, AuthEnabled: h.authEnabled()}
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := indexPage{page: h.basePage("Paper Recommendations")}

	sc, err := h.Resolver.Resolve(r)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		data.NeedsLogin = true
	case err != nil:
		h.logger.Error("resolve scope failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		res := h.today(r.Context(), sc)
		data.HasKeys = sc.Credentials.Complete()
		data.Ready = res.Ready()
		data.LastRefresh = res.LastRefresh.String()
		data.SeedPapers = res.SeedPapers
		data.Recommendations = res.Recommendations
	}
	h.render(w, "index.html", data)
}

// KeysPage handles GET /keys.
func (h *Handler) KeysPage(w http.ResponseWriter, r *http.Request) {
	data := keysPage{page: h.basePage("API keys"), AdminKey: h.cfg.AdminKeyManaged}

	sc, err := h.Resolver.Resolve(r)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		data.NeedsLogin = true
	case err != nil:
		h.logger.Error("resolve scope failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		data.HasKeys = sc.Credentials.Complete()
		data.Keys = maskedKeys(sc.Credentials)
	}
	h.render(w, "keys.html", data)
}

// GetKeys handles GET /api/keys.
//
//	@Summary		Stored credentials with the API keys masked
//	@Tags			keys
//	@Produce		json
//	@Success		200	{object}	KeysResponse
//	@Failure		401	{object}	errResponse
//	@Router			/keys [get]
func (h *Handler) GetKeys(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, maskedKeys(sc.Credentials))
}

// SaveKeys handles POST /api/keys. Form posts are redirected to the main
// page; JSON posts get the masked result.
//
//	@Summary		Replace the stored credentials
//	@Tags			keys
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			body	body		KeysRequest	true	"Credentials"
//	@Success		200		{object}	KeysResponse
//	@Success		303
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Router			/keys [post]
func (h *Handler) SaveKeys(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req KeysRequest
	err := decodeBody(w, r, &req, map[string]*string{
		"zotero_user_id":           &req.ZoteroUserID,
		"zotero_api_key":           &req.ZoteroAPIKey,
		"semantic_scholar_api_key": &req.SemanticScholarAPIKey,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	if err := sc.SaveCredentials(r.Context(), req.credentials()); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorBody("credentials are read-only"))
			return
		}
		h.logger.Error("save credentials failed",
			slog.String("scope", string(sc.Kind)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.logger.Info("credentials saved", slog.String("scope", string(sc.Kind)))

	if !isJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, maskedKeys(sc.Credentials))
}

// Papers handles GET /api/papers.
//
//	@Summary		Today's seed papers
//	@Tags			recommendations
//	@Produce		json
//	@Success		200	{array}		models.Paper
//	@Failure		401	{object}	errResponse
//	@Router			/papers [get]
func (h *Handler) Papers(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.today(r.Context(), sc).SeedPapers)
}

// Recommendations handles GET /api/recommendations.
//
//	@Summary		Today's recommendations
//	@Tags			recommendations
//	@Produce		json
//	@Success		200	{array}		models.Recommendation
//	@Failure		401	{object}	errResponse
//	@Router			/recommendations [get]
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.today(r.Context(), sc).Recommendations)
}

// Status handles GET /api/status. It reads the stored state and never
// triggers a refresh.
//
//	@Summary		Refresh state of the active scope
//	@Tags			recommendations
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		401	{object}	errResponse
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	resp := StatusResponse{HasKeys: sc.Credentials.Complete(), Backend: string(h.Resolver.Kind())}
	st, err := sc.Store.Load(r.Context())
	switch {
	case err == nil:
		resp.LastRefresh = st.LastRefresh.String()
		resp.SeedCount = len(st.SeedPapers)
		resp.RecommendationCount = len(st.Recommendations)
	case !errors.Is(err, apperr.ErrNotFound):
		h.logger.Warn("load refresh state failed",
			slog.String("scope", sc.Store.Key()),
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Regenerate today's recommendations now
//	@Tags			recommendations
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		400	{object}	errResponse
//	@Failure		401	{object}	errResponse
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if !sc.Credentials.Complete() {
		writeJSON(w, http.StatusBadRequest, errorBody("API keys are not configured"))
		return
	}
	res := h.Refresher.Refresh(r.Context(), sc.Credentials, sc.Store)
	writeJSON(w, http.StatusOK, StatusResponse{
		LastRefresh:         res.LastRefresh.String(),
		HasKeys:             true,
		SeedCount:           len(res.SeedPapers),
		RecommendationCount: len(res.Recommendations),
		Backend:             string(h.Resolver.Kind()),
	})
}

// Feed handles GET /feed.xml. A token query parameter selects the
// credentials encoded in a feed token instead of the request's scope.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Feed.Enabled {
		http.NotFound(w, r)
		return
	}

	var (
		sc  *scope.Scope
		err error
	)
	if token := r.URL.Query().Get("token"); token != "" {
		if h.Tokens == nil {
			http.NotFound(w, r)
			return
		}
		sc, err = h.Tokens.Resolve(token)
	} else {
		sc, err = h.Resolver.Resolve(r)
	}
	if err != nil {
		h.writeScopeError(w, err)
		return
	}

	res := h.today(r.Context(), sc)
	out, err := feed.RSS(feed.Channel{
		Title:       h.cfg.Feed.Title,
		Description: h.cfg.Feed.Description,
		Link:        h.rootURL(r),
	}, res.Recommendations, res.LastRefresh)
	if err != nil {
		h.logger.Error("render feed failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// FeedToken handles GET /api/feed-token.
//
//	@Summary		Issue a token that lets feed readers fetch this scope's feed
//	@Tags			feed
//	@Produce		json
//	@Success		200	{object}	FeedTokenResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/feed-token [get]
func (h *Handler) FeedToken(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil || !h.cfg.Feed.Enabled {
		writeJSON(w, http.StatusNotFound, errorBody("feed tokens are disabled"))
		return
	}
	sc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if !sc.Credentials.Complete() {
		writeJSON(w, http.StatusBadRequest, errorBody("API keys are not configured"))
		return
	}
	token, err := h.Tokens.Issue(sc.Credentials)
	if err != nil {
		h.logger.Error("issue feed token failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, FeedTokenResponse{
		Token:   token,
		FeedURL: h.rootURL(r) + "feed.xml?token=" + url.QueryEscape(token),
	})
}

// ArxivPapers handles GET /api/arxiv/papers.
//
//	@Summary		Recent machine-learning papers on arXiv
//	@Tags			arxiv
//	@Produce		json
//	@Param			keywords	query		string	false	"Comma-separated keywords"
//	@Success		200			{object}	arxiv.Result
//	@Failure		404			{object}	errResponse
//	@Router			/arxiv/papers [get]
func (h *Handler) ArxivPapers(w http.ResponseWriter, r *http.Request) {
	if h.Arxiv == nil {
		writeJSON(w, http.StatusNotFound, errorBody("arxiv search is disabled"))
		return
	}
	writeJSON(w, http.StatusOK, h.Arxiv.Papers(r.Context(), r.URL.Query().Get("keywords")))
}

// rootURL returns the public root of the site with a trailing slash.
func (h *Handler) rootURL(r *http.Request) string {
	if u := h.cfg.Feed.PublicURL; u != "" {
		return strings.TrimRight(u, "/") + "/"
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}
