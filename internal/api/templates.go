package api

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/paperfeed/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index.html", "keys.html"} {
		pages[name] = template.Must(template.New(name).Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return pages
}

// page is the data shared by every HTML page.
type page struct {
	Title       string
	FeedEnabled bool
	AuthEnabled bool
	NeedsLogin  bool
	HasKeys     bool
}

type indexPage struct {
	page
	Ready           bool
	LastRefresh     string
	SeedPapers      []models.Paper
	Recommendations []models.Recommendation
}

type keysPage struct {
	page
	Keys     KeysResponse
	AdminKey bool
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[name].ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render page failed", slog.String("page", name), slog.String("error", err.Error()))
	}
}
