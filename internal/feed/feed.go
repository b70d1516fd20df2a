// Package feed renders recommendations as an RSS 2.0 document.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/starford/paperfeed/internal/models"
)

// Defaults for the channel metadata.
const (
	DefaultTitle       = "Paper Recommendations"
	DefaultDescription = "Latest paper recommendations based on your Zotero library"
)

// Channel describes the RSS channel.
type Channel struct {
	Title       string
	Description string
	Link        string
}

// RSS renders recs as RSS. lastRefresh, when non-zero, becomes the channel
// update time. Items whose date does not parse are emitted without pubDate.
func RSS(ch Channel, recs []models.Recommendation, lastRefresh models.Day) (string, error) {
	if ch.Title == "" {
		ch.Title = DefaultTitle
	}
	if ch.Description == "" {
		ch.Description = DefaultDescription
	}

	f := &feeds.Feed{
		Title:       ch.Title,
		Link:        &feeds.Link{Href: ch.Link},
		Description: ch.Description,
	}
	if !lastRefresh.IsZero() {
		t := lastRefresh.Time()
		f.Updated = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	for _, r := range recs {
		item := &feeds.Item{
			Title:       r.Title,
			Link:        &feeds.Link{Href: r.URL},
			Description: r.Abstract,
			Author:      &feeds.Author{Name: strings.Join(r.Authors, ", ")},
			Id:          r.URL,
		}
		if t, err := models.ParseLongDate(r.Date); err == nil {
			item.Created = t.UTC()
		}
		f.Items = append(f.Items, item)
	}

	rss := (&feeds.Rss{Feed: f}).RssFeed()
	rss.Language = "en"
	if f.Updated.IsZero() {
		rss.LastBuildDate = ""
	} else {
		rss.LastBuildDate = f.Updated.Format(time.RFC1123Z)
	}
	out, err := feeds.ToXML(rss)
	if err != nil {
		return "", fmt.Errorf("feed: render rss: %w", err)
	}
	return out, nil
}
