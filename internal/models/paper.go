// Package models defines the domain types for paperfeed.
package models

import "strings"

// Credentials holds the three upstream API credentials of one scope.
type Credentials struct {
	ZoteroUserID          string `json:"zotero_user_id"`
	ZoteroAPIKey          string `json:"zotero_api_key"`
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key"`
}

// Complete reports whether every credential is set.
func (c Credentials) Complete() bool {
	return c.ZoteroUserID != "" && c.ZoteroAPIKey != "" && c.SemanticScholarAPIKey != ""
}

// HasSource reports whether the Zotero half of the credentials is set.
func (c Credentials) HasSource() bool {
	return c.ZoteroUserID != "" && c.ZoteroAPIKey != ""
}

// Paper is a normalized Zotero library item. Only items with a DOI are kept.
type Paper struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	DOI       string   `json:"doi,omitempty"`
	Abstract  string   `json:"abstract"`
	Date      string   `json:"date"`
	URL       string   `json:"url"`
	SourceURL string   `json:"zotero_url"`
}

// Recommendation is a related paper returned by Semantic Scholar.
type Recommendation struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	URL      string   `json:"url"`
	Date     string   `json:"date"`
	Abstract string   `json:"abstract"`
}

// Complete reports whether all five fields are present and non-empty.
func (r Recommendation) Complete() bool {
	if strings.TrimSpace(r.Title) == "" || r.URL == "" || r.Date == "" || strings.TrimSpace(r.Abstract) == "" {
		return false
	}
	if len(r.Authors) == 0 {
		return false
	}
	for _, a := range r.Authors {
		if strings.TrimSpace(a) == "" {
			return false
		}
	}
	return true
}

// RefreshState is the persisted result of one daily refresh.
type RefreshState struct {
	LastRefresh     Day              `json:"last_refresh"`
	SeedPapers      []Paper          `json:"seed_papers"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Ready reports whether both collections are populated.
func (s *RefreshState) Ready() bool {
	return s != nil && len(s.SeedPapers) > 0 && len(s.Recommendations) > 0
}
