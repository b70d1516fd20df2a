package storage

import (
	"context"
	"testing"
	"time"

	"github.com/starford/paperfeed/internal/models"
)

func sampleState() *models.RefreshState {
	return &models.RefreshState{
		LastRefresh: models.NewDay(2024, time.March, 5),
		SeedPapers: []models.Paper{
			{Title: "Seed", Authors: []string{"A"}, DOI: "10.1/a", Date: "March 05, 2024", URL: "u", SourceURL: "z"},
		},
		Recommendations: []models.Recommendation{
			{Title: "Rec", Authors: []string{"B"}, URL: "u", Date: "March 05, 2024", Abstract: "x"},
		},
	}
}

func TestStateFiles_SaveAndLoad(t *testing.T) {
	fs := tempData(t)
	st := NewStateFiles(fs)
	ctx := context.Background()

	if err := st.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{LastRefreshFile, SeedPapersFile, RecommendationsFile} {
		if !fs.Exists(name) {
			t.Errorf("%s not written", name)
		}
	}
	raw, _ := fs.Read(LastRefreshFile)
	if string(raw) != "{\n    \"last_refresh\": \"2024-03-05\"\n}" {
		t.Errorf("last_refresh.json = %s", raw)
	}

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastRefresh.String() != "2024-03-05" {
		t.Errorf("LastRefresh = %s", got.LastRefresh)
	}
	if len(got.SeedPapers) != 1 || got.SeedPapers[0].SourceURL != "z" {
		t.Errorf("seed papers = %+v", got.SeedPapers)
	}
	if len(got.Recommendations) != 1 || got.Recommendations[0].Abstract != "x" {
		t.Errorf("recommendations = %+v", got.Recommendations)
	}
}

func TestStateFiles_MissingAndCorrupt(t *testing.T) {
	fs := tempData(t)
	st := NewStateFiles(fs)
	ctx := context.Background()

	if _, err := st.LastRefresh(ctx); err == nil {
		t.Error("expected error with no files")
	}

	_ = fs.Write(LastRefreshFile, []byte(`{"last_refresh":"yesterday"}`))
	if _, err := st.LastRefresh(ctx); err == nil {
		t.Error("expected error for unparseable date")
	}

	_ = st.Save(ctx, sampleState())
	_ = fs.Write(RecommendationsFile, []byte(`[{"title":`))
	if _, err := st.Load(ctx); err == nil {
		t.Error("expected error for corrupt recommendations file")
	}

	_ = fs.Delete(SeedPapersFile)
	if _, err := st.Load(ctx); err == nil {
		t.Error("expected error for missing seed papers file")
	}
}

func TestStateFiles_EmptyListsPersistAsArrays(t *testing.T) {
	fs := tempData(t)
	st := NewStateFiles(fs)
	_ = st.Save(context.Background(), &models.RefreshState{LastRefresh: models.NewDay(2024, time.March, 5)})
	raw, _ := fs.Read(RecommendationsFile)
	if string(raw) != "[]" {
		t.Errorf("recommendations.json = %s, want []", raw)
	}
}
