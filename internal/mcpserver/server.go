// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the daily recommendations of the shared data directory over stdio.
package mcpserver

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/arxiv"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/scope"
)

// ScopeSource returns the scope the tools operate on.
type ScopeSource interface {
	Scope() (*scope.Scope, error)
}

// RefreshGetter serves today's refresh state.
type RefreshGetter interface {
	Get(ctx context.Context, creds models.Credentials, store refresh.StateStore) refresh.Result
}

// PaperSearcher runs keyword searches against arXiv.
type PaperSearcher interface {
	Papers(ctx context.Context, keywords string) arxiv.Result
}

// Server wraps the MCP server with the recommendation tools.
type Server struct {
	mcp    *server.MCPServer
	scopes ScopeSource
	orch   RefreshGetter
	arxiv  PaperSearcher
}

// StatusReport is the payload of refresh_status.
type StatusReport struct {
	LastRefresh         string `json:"last_refresh"`
	HasKeys             bool   `json:"has_keys"`
	SeedCount           int    `json:"seed_count"`
	RecommendationCount int    `json:"recommendation_count"`
}

// New creates a new MCP server. search is optional; search_arxiv is only
// registered when it is set.
func New(scopes ScopeSource, orch RefreshGetter, search PaperSearcher, version string) *Server {
	s := &Server{scopes: scopes, orch: orch, arxiv: search}

	s.mcp = server.NewMCPServer(
		"Paperfeed",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("get_seed_papers",
		mcp.WithDescription("Today's seed papers sampled from the Zotero library. "+
			"Regenerates the daily sample if it is stale."),
	), s.getSeedPapers)

	s.mcp.AddTool(mcp.NewTool("get_recommendations",
		mcp.WithDescription("Today's Semantic Scholar recommendations for the seed papers."),
	), s.getRecommendations)

	s.mcp.AddTool(mcp.NewTool("refresh_status",
		mcp.WithDescription("Date of the last refresh and the sizes of the stored lists. Never triggers a refresh."),
	), s.refreshStatus)

	if search != nil {
		s.mcp.AddTool(mcp.NewTool("search_arxiv",
			mcp.WithDescription("Recent machine-learning papers on arXiv matching all comma-separated keywords."),
			mcp.WithString("keywords", mcp.Description("Comma-separated keywords (empty for all recent ML papers)")),
		), s.searchArxiv)
	}

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) today(ctx context.Context) (refresh.Result, *mcp.CallToolResult) {
	sc, err := s.scopes.Scope()
	if err != nil {
		return refresh.Result{}, mcp.NewToolResultError(err.Error())
	}
	if !sc.Credentials.Complete() {
		return refresh.Result{}, mcp.NewToolResultError("API keys are not configured")
	}
	return s.orch.Get(ctx, sc.Credentials, sc.Store), nil
}

func (s *Server) getSeedPapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, errResult := s.today(ctx)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(res.SeedPapers)
}

func (s *Server) getRecommendations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, errResult := s.today(ctx)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(res.Recommendations)
}

func (s *Server) refreshStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.scopes.Scope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report := StatusReport{HasKeys: sc.Credentials.Complete()}
	st, err := sc.Store.Load(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	default:
		report.LastRefresh = st.LastRefresh.String()
		report.SeedCount = len(st.SeedPapers)
		report.RecommendationCount = len(st.Recommendations)
	}
	return jsonResult(report)
}

func (s *Server) searchArxiv(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.arxiv.Papers(ctx, req.GetString("keywords", "")))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
