package api

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/paperfeed/internal/arxiv"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/scope"
	"github.com/starford/paperfeed/internal/storage"
	"github.com/starford/paperfeed/internal/testutil"
)

var testCreds = testutil.Credentials

// fakeRefresher stores a canned result in the scope's store, the way the
// orchestrator persists a regeneration.
type fakeRefresher struct {
	gets      atomic.Int32
	refreshes atomic.Int32
	creds     atomic.Value
}

func (f *fakeRefresher) result() refresh.Result {
	return refresh.Result{
		SeedPapers: []models.Paper{{Title: "Seed paper", Authors: []string{"Ada Lovelace"}, DOI: "10.1/x", URL: "https://example.org/seed"}},
		Recommendations: []models.Recommendation{{
			Title: "Recommended paper", Authors: []string{"Alan Turing", "Grace Hopper"},
			URL: "https://example.org/rec", Date: "March 05, 2024", Abstract: "An abstract",
		}},
		LastRefresh: models.NewDay(2024, time.March, 6),
	}
}

func (f *fakeRefresher) save(ctx context.Context, store refresh.StateStore) refresh.Result {
	res := f.result()
	_ = store.Save(ctx, &models.RefreshState{
		LastRefresh:     res.LastRefresh,
		SeedPapers:      res.SeedPapers,
		Recommendations: res.Recommendations,
	})
	return res
}

func (f *fakeRefresher) Get(ctx context.Context, creds models.Credentials, store refresh.StateStore) refresh.Result {
	f.gets.Add(1)
	f.creds.Store(creds)
	return f.save(ctx, store)
}

func (f *fakeRefresher) Refresh(ctx context.Context, creds models.Credentials, store refresh.StateStore) refresh.Result {
	f.refreshes.Add(1)
	f.creds.Store(creds)
	return f.save(ctx, store)
}

type fakeArxiv struct{}

func (fakeArxiv) Papers(_ context.Context, keywords string) arxiv.Result {
	return arxiv.Result{
		Papers:      []arxiv.Paper{{Title: "Preprint"}},
		CacheStatus: arxiv.CacheInitial,
		SearchQuery: arxiv.BuildQuery(keywords),
	}
}

type fileEnv struct {
	router http.Handler
	creds  *storage.Credentials
	state  *storage.StateFiles
	ref    *fakeRefresher
}

func newFileEnv(t *testing.T, cfg Config) *fileEnv {
	t.Helper()
	_, fs := testutil.TestDataDir(t)
	creds := storage.NewCredentials(fs)
	state := storage.NewStateFiles(fs)
	ref := &fakeRefresher{}
	h := NewHandler(Deps{
		Resolver:  scope.NewFileBacked(creds, state, ""),
		Refresher: ref,
		Tokens:    scope.NewFeedTokens(testutil.TestEncryptor(t), ""),
		Arxiv:     fakeArxiv{},
	}, cfg, testutil.Logger())
	return &fileEnv{router: NewRouter(h), creds: creds, state: state, ref: ref}
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestIndex_WithoutKeys(t *testing.T) {
	env := newFileEnv(t, Config{})
	w := do(t, env.router, http.MethodGet, "/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/keys") {
		t.Error("index without keys does not link to the keys page")
	}
	if env.ref.gets.Load() != 0 {
		t.Error("refresh ran without keys")
	}
}

func TestIndex_ShowsRecommendations(t *testing.T) {
	env := newFileEnv(t, Config{})
	_ = env.creds.Save(testCreds)

	w := do(t, env.router, http.MethodGet, "/", nil, "")
	body := w.Body.String()
	for _, want := range []string{"Recommended paper", "Alan Turing, Grace Hopper", "Seed paper", "2024-03-06"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestKeys_FormPostRedirects(t *testing.T) {
	env := newFileEnv(t, Config{})

	form := url.Values{}
	form.Set("zotero_user_id", " 42 ")
	form.Set("zotero_api_key", "zotero-secret")
	form.Set("semantic_scholar_api_key", "s2-secret")
	w := do(t, env.router, http.MethodPost, "/api/keys", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("status = %d, location = %q", w.Code, w.Header().Get("Location"))
	}

	got, _ := env.creds.Load()
	if got != testCreds {
		t.Errorf("stored = %+v", got)
	}
}

func TestKeys_JSONRoundTripIsMasked(t *testing.T) {
	env := newFileEnv(t, Config{})

	body, _ := json.Marshal(KeysRequest{ZoteroUserID: "42", ZoteroAPIKey: "zotero-secret", SemanticScholarAPIKey: "s2-secret"})
	w := do(t, env.router, http.MethodPost, "/api/keys", bytes.NewReader(body), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, env.router, http.MethodGet, "/api/keys", nil, "")
	resp := decode[KeysResponse](t, w)
	want := KeysResponse{ZoteroUserID: "42", ZoteroAPIKey: "*********cret", SemanticScholarAPIKey: "*****cret", HasKeys: true}
	if resp != want {
		t.Errorf("keys = %+v, want %+v", resp, want)
	}
	if strings.Contains(w.Body.String(), "zotero-secret") {
		t.Error("API key leaked unmasked")
	}
}

func TestKeys_InvalidJSON(t *testing.T) {
	env := newFileEnv(t, Config{})
	w := do(t, env.router, http.MethodPost, "/api/keys", strings.NewReader("{"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestPapersAndRecommendations(t *testing.T) {
	env := newFileEnv(t, Config{})

	w := do(t, env.router, http.MethodGet, "/api/recommendations", nil, "")
	if recs := decode[[]models.Recommendation](t, w); len(recs) != 0 {
		t.Errorf("recommendations without keys = %+v", recs)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}

	_ = env.creds.Save(testCreds)
	seeds := decode[[]models.Paper](t, do(t, env.router, http.MethodGet, "/api/papers", nil, ""))
	if len(seeds) != 1 || seeds[0].Title != "Seed paper" {
		t.Errorf("seeds = %+v", seeds)
	}
	recs := decode[[]models.Recommendation](t, do(t, env.router, http.MethodGet, "/api/recommendations", nil, ""))
	if len(recs) != 1 || recs[0].URL != "https://example.org/rec" {
		t.Errorf("recs = %+v", recs)
	}
}

func TestStatus_DoesNotRefresh(t *testing.T) {
	env := newFileEnv(t, Config{})
	_ = env.creds.Save(testCreds)

	st := decode[StatusResponse](t, do(t, env.router, http.MethodGet, "/api/status", nil, ""))
	if st != (StatusResponse{HasKeys: true, Backend: "file"}) {
		t.Errorf("status = %+v", st)
	}
	if env.ref.gets.Load() != 0 {
		t.Error("status triggered a refresh")
	}

	do(t, env.router, http.MethodGet, "/api/papers", nil, "")
	st = decode[StatusResponse](t, do(t, env.router, http.MethodGet, "/api/status", nil, ""))
	want := StatusResponse{LastRefresh: "2024-03-06", HasKeys: true, SeedCount: 1, RecommendationCount: 1, Backend: "file"}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}
}

func TestRefresh(t *testing.T) {
	env := newFileEnv(t, Config{})

	w := do(t, env.router, http.MethodPost, "/api/refresh", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("refresh without keys status = %d", w.Code)
	}

	_ = env.creds.Save(testCreds)
	w = do(t, env.router, http.MethodPost, "/api/refresh", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env.ref.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d", env.ref.refreshes.Load())
	}
	if st := decode[StatusResponse](t, w); st.RecommendationCount != 1 || st.LastRefresh != "2024-03-06" {
		t.Errorf("status = %+v", st)
	}
}

type rssDoc struct {
	Channel struct {
		Title string `xml:"title"`
		Link  string `xml:"link"`
		Items []struct {
			Title  string `xml:"title"`
			Author string `xml:"author"`
		} `xml:"item"`
	} `xml:"channel"`
}

func TestFeed_Disabled(t *testing.T) {
	env := newFileEnv(t, Config{})
	if w := do(t, env.router, http.MethodGet, "/feed.xml", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestFeed(t *testing.T) {
	env := newFileEnv(t, Config{Feed: FeedConfig{Enabled: true}})
	_ = env.creds.Save(testCreds)

	w := do(t, env.router, http.MethodGet, "/feed.xml", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("content type = %q", ct)
	}
	var doc rssDoc
	if err := xml.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Channel.Title != "Paper Recommendations" || doc.Channel.Link != "http://example.com/" {
		t.Errorf("channel = %+v", doc.Channel)
	}
	if len(doc.Channel.Items) != 1 || !strings.Contains(doc.Channel.Items[0].Author, "Alan Turing, Grace Hopper") {
		t.Errorf("items = %+v", doc.Channel.Items)
	}
}

func TestFeedToken(t *testing.T) {
	env := newFileEnv(t, Config{Feed: FeedConfig{Enabled: true, PublicURL: "https://papers.example.org"}})

	if w := do(t, env.router, http.MethodGet, "/api/feed-token", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("token without keys status = %d", w.Code)
	}

	_ = env.creds.Save(testCreds)
	resp := decode[FeedTokenResponse](t, do(t, env.router, http.MethodGet, "/api/feed-token", nil, ""))
	if resp.Token == "" || !strings.HasPrefix(resp.FeedURL, "https://papers.example.org/feed.xml?token=") {
		t.Fatalf("token response = %+v", resp)
	}

	// The token keeps working after the shared keys are cleared.
	_ = env.creds.Save(models.Credentials{})
	w := do(t, env.router, http.MethodGet, "/feed.xml?token="+url.QueryEscape(resp.Token), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("feed status = %d", w.Code)
	}
	if got := env.ref.creds.Load().(models.Credentials); got != testCreds {
		t.Errorf("feed used credentials %+v", got)
	}

	if w := do(t, env.router, http.MethodGet, "/feed.xml?token=garbage", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d", w.Code)
	}
}

func TestArxivPapers(t *testing.T) {
	env := newFileEnv(t, Config{})
	res := decode[arxiv.Result](t, do(t, env.router, http.MethodGet, "/api/arxiv/papers?keywords=diffusion", nil, ""))
	if len(res.Papers) != 1 || !strings.Contains(res.SearchQuery, `ti:"diffusion"`) {
		t.Errorf("result = %+v", res)
	}
}

func TestRateLimit(t *testing.T) {
	env := newFileEnv(t, Config{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	for i := 0; i < 2; i++ {
		if w := do(t, env.router, http.MethodGet, "/api/status", nil, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := do(t, env.router, http.MethodGet, "/api/status", nil, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newFileEnv(t, Config{CORSOrigins: []string{"https://app.example.org"}})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://app.example.org")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.org" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{"": "", "abc": "***", "abcd": "****", "abcdef": "**cdef"}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}

// newClient returns a client with a cookie jar that does not follow redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postJSON(t *testing.T, c *http.Client, target string, v any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(v)
	resp, err := c.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, c *http.Client, target string) *http.Response {
	t.Helper()
	resp, err := c.Get(target)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessionBacked_IsolatesVisitors(t *testing.T) {
	mgr := testutil.TestSessions(t)
	h := NewHandler(Deps{
		Resolver:  scope.NewSessionBacked(mgr, ""),
		Refresher: &fakeRefresher{},
		Sessions:  mgr,
	}, Config{}, testutil.Logger())
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	alice, bob := newClient(t), newClient(t)
	get(t, alice, srv.URL+"/api/status")
	get(t, bob, srv.URL+"/api/status")

	if resp := postJSON(t, alice, srv.URL+"/api/keys", testCreds); resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	var st StatusResponse
	_ = json.NewDecoder(get(t, alice, srv.URL+"/api/status").Body).Decode(&st)
	if !st.HasKeys || st.Backend != "session" {
		t.Errorf("alice status = %+v", st)
	}
	_ = json.NewDecoder(get(t, bob, srv.URL+"/api/status").Body).Decode(&st)
	if st.HasKeys {
		t.Error("bob sees alice's keys")
	}
}

func TestDatabaseBacked_RegisterLoginLogout(t *testing.T) {
	mgr := testutil.TestSessions(t)
	users := testutil.TestUserDB(t, testutil.TestEncryptor(t))

	h := NewHandler(Deps{
		Resolver:  scope.NewUserRecordBacked(mgr, users, ""),
		Refresher: &fakeRefresher{},
		Sessions:  mgr,
		Users:     users,
	}, Config{}, testutil.Logger())
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	c := newClient(t)
	if resp := get(t, c, srv.URL+"/api/status"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", resp.StatusCode)
	}
	page, _ := io.ReadAll(get(t, c, srv.URL+"/").Body)
	if !strings.Contains(string(page), "/auth/login") {
		t.Error("anonymous index does not offer a login form")
	}

	bad := RegisterRequest{Username: "ada", Email: "not-an-email", Password: "correct horse"}
	if resp := postJSON(t, c, srv.URL+"/auth/register", bad); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid register status = %d", resp.StatusCode)
	}

	reg := RegisterRequest{Username: "ada", Email: "ada@example.org", Password: "correct horse"}
	if resp := postJSON(t, c, srv.URL+"/auth/register", reg); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, c, srv.URL+"/auth/register", reg); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d", resp.StatusCode)
	}

	if resp := postJSON(t, c, srv.URL+"/api/keys", testCreds); resp.StatusCode != http.StatusOK {
		t.Fatalf("save keys status = %d", resp.StatusCode)
	}

	if resp := postJSON(t, c, srv.URL+"/auth/logout", struct{}{}); resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout status = %d", resp.StatusCode)
	}
	if resp := get(t, c, srv.URL+"/api/keys"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("keys after logout status = %d", resp.StatusCode)
	}

	wrong := LoginRequest{Username: "ada", Password: "wrong password"}
	if resp := postJSON(t, c, srv.URL+"/auth/login", wrong); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, c, srv.URL+"/auth/login", LoginRequest{Username: "ada", Password: "correct horse"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var keys KeysResponse
	_ = json.NewDecoder(get(t, c, srv.URL+"/api/keys").Body).Decode(&keys)
	if !keys.HasKeys || keys.ZoteroUserID != "42" {
		t.Errorf("keys after login = %+v", keys)
	}

	// A wiped user table leaves the session pointing at a missing user.
	if err := users.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	resp := get(t, c, srv.URL+"/")
	page, _ = io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(page), "/auth/login") {
		t.Errorf("index after wipe = %d, login form shown: %v", resp.StatusCode, strings.Contains(string(page), "/auth/login"))
	}
	if resp := get(t, c, srv.URL+"/api/keys"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("keys after wipe status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, c, srv.URL+"/auth/register", reg); resp.StatusCode != http.StatusCreated {
		t.Errorf("register after wipe status = %d", resp.StatusCode)
	}
}
