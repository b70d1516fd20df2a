package zotero

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/upstream"
)

// ItemLister is the subset of Client used by Fetcher.
type ItemLister interface {
	ListItems(ctx context.Context, userID, apiKey string, limit int) ([]Item, error)
}

// Fetcher turns a user's most recent Zotero items into papers.
type Fetcher struct {
	client ItemLister
	delay  time.Duration
	logger *slog.Logger
}

// NewFetcher creates a Fetcher that waits delay before every request.
func NewFetcher(client ItemLister, delay time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, delay: delay, logger: logger}
}

// FetchRecent returns up to limit recent items that carry a DOI.
// It never fails: missing credentials or upstream errors yield an empty slice.
func (f *Fetcher) FetchRecent(ctx context.Context, limit int, creds models.Credentials) []models.Paper {
	if !creds.HasSource() {
		f.logger.Warn("zotero: missing credentials, skipping fetch")
		return []models.Paper{}
	}
	if limit <= 0 {
		return []models.Paper{}
	}

	if err := upstream.Pause(ctx, f.delay); err != nil {
		f.logger.Warn("zotero: fetch cancelled", slog.String("error", err.Error()))
		return []models.Paper{}
	}

	items, err := f.client.ListItems(ctx, creds.ZoteroUserID, creds.ZoteroAPIKey, limit)
	if err != nil {
		f.logger.Error("zotero: fetch failed", slog.String("error", err.Error()))
		return []models.Paper{}
	}

	papers := make([]models.Paper, 0, len(items))
	for _, it := range items {
		if p, ok := normalize(it, creds.ZoteroUserID); ok {
			papers = append(papers, p)
		}
	}
	f.logger.Debug("zotero: fetched papers",
		slog.Int("items", len(items)),
		slog.Int("with_doi", len(papers)))
	return papers
}

// normalize converts an item, reporting false when it has no DOI.
func normalize(it Item, userID string) (models.Paper, bool) {
	d := it.Data
	doi := strings.TrimSpace(d.DOI)
	if doi == "" {
		return models.Paper{}, false
	}

	date, _ := models.FormatLongDate(d.Date)

	authors := make([]string, 0, len(d.Creators))
	for _, c := range d.Creators {
		authors = append(authors, creatorName(c))
	}

	key := it.Key
	if key == "" {
		key = d.Key
	}

	return models.Paper{
		Title:     d.Title,
		Authors:   authors,
		DOI:       doi,
		Abstract:  d.AbstractNote,
		Date:      date,
		URL:       d.URL,
		SourceURL: fmt.Sprintf("https://www.zotero.org/groups/%s/items/%s", userID, key),
	}, true
}

func creatorName(c Creator) string {
	if c.Name != "" {
		return c.Name
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}
