package geiri

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geiri-is/geiri/linkedin"
	"github.com/geiri-is/geiri/posts"
)

type mockCrossPoster struct {
	mock.Mock
}

func (m *mockCrossPoster) MaybePost(ctx context.Context, p posts.BlogPost) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func testConfig() SiteConfig {
	return SiteConfig{
		Name:          "Geiri",
		URL:           "https://example.com/",
		Description:   "Notes on Teams & <Intune>",
		Author:        "Geiri",
		SessionSecret: "test-session-secret-0123456789abcdef",
	}
}

func newTestApp(t *testing.T, cfg SiteConfig, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithPostBackend(posts.NewMemoryBackend(posts.WithoutSeed())),
		WithSecretStore(linkedin.NewMemorySecretStore()),
	}
	app := New(cfg, append(base, opts...)...)
	require.NoError(t, app.Setup(context.Background()))
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func adminPrincipal(roles ...string) string {
	b, _ := json.Marshal(Principal{IdentityProvider: "aad", UserID: "u1", UserDetails: "geiri", UserRoles: roles})
	return base64.StdEncoding.EncodeToString(b)
}

type request struct {
	method  string
	path    string
	body    string
	admin   bool
	headers map[string]string
	cookies []*http.Cookie
}

func (a *App) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.admin {
		req.Header.Set(principalHeader, adminPrincipal("anonymous", "authenticated", "admin"))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

type postEnvelope struct {
	Post     posts.BlogPost  `json:"post"`
	LinkedIn CrossPostResult `json:"linkedIn"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *App) createPost(t *testing.T, body string) posts.BlogPost {
	t.Helper()
	rec := a.do(t, request{method: http.MethodPost, path: "/api/admin/posts", body: body, admin: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[postEnvelope](t, rec).Post
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	app := newTestApp(t, testConfig())
	p := app.createPost(t, `{"title":"Existing"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"no principal", ""},
		{"not base64", "%%%"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("nope"))},
		{"no admin role", adminPrincipal("authenticated")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers[principalHeader] = tt.header
			}
			for _, r := range []request{
				{method: http.MethodGet, path: "/api/admin/posts"},
				{method: http.MethodPost, path: "/api/admin/posts", body: `{"title":"Sneaky"}`},
				{method: http.MethodPatch, path: "/api/admin/posts/" + p.ID, body: `{"title":"Changed"}`},
				{method: http.MethodPost, path: "/api/admin/posts/" + p.ID + "/publish"},
				{method: http.MethodGet, path: "/api/admin/linkedin/status"},
				{method: http.MethodGet, path: "/api/admin/stats"},
			} {
				r.headers = headers
				rec := app.do(t, r)
				assert.Equal(t, http.StatusForbidden, rec.Code, r.method+" "+r.path)
				assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
			}
		})
	}

	all, err := app.Posts.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1, "forbidden requests must not create posts")
	assert.Equal(t, "Existing", all[0].Title)
	assert.Equal(t, posts.StatusDraft, all[0].Status)
}

func TestDevModeTreatsEveryoneAsAdmin(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "development"
	app := newTestApp(t, cfg)

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/posts"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCreateAndGet(t *testing.T) {
	app := newTestApp(t, testConfig())

	p := app.createPost(t, `{"title":"Hello World","summary":"s","tags":[" a ",""],"productArea":"entra"}`)
	assert.Equal(t, "hello-world", p.Slug)
	assert.Equal(t, posts.StatusDraft, p.Status)
	assert.Nil(t, p.PublishedAt)
	assert.Equal(t, []string{"a"}, p.Tags)
	assert.Equal(t, posts.AreaEntra, p.ProductArea)

	second := app.createPost(t, `{"title":"Hello World"}`)
	assert.Equal(t, "hello-world-2", second.Slug)

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/posts/" + p.ID, admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.ID, decode[postEnvelope](t, rec).Post.ID)

	rec = app.do(t, request{method: http.MethodGet, path: "/api/admin/posts/missing", admin: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())

	rec = app.do(t, request{method: http.MethodGet, path: "/api/admin/posts", admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Posts []posts.BlogPost `json:"posts"`
	}](t, rec)
	assert.Len(t, list.Posts, 2)
}

func TestAdminCreateValidation(t *testing.T) {
	app := newTestApp(t, testConfig())
	for _, body := range []string{`{}`, `{"title":"   "}`, `{"title":"x","productArea":"azure"}`, `{"title":`} {
		rec := app.do(t, request{method: http.MethodPost, path: "/api/admin/posts", body: body, admin: true})
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestAdminUpdate(t *testing.T) {
	app := newTestApp(t, testConfig())
	p := app.createPost(t, `{"title":"Original","summary":"keep"}`)

	rec := app.do(t, request{method: http.MethodPatch, path: "/api/admin/posts/" + p.ID, body: `{"title":"Renamed"}`, admin: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[postEnvelope](t, rec).Post
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "renamed", updated.Slug)
	assert.Equal(t, "keep", updated.Summary)

	rec = app.do(t, request{method: http.MethodPatch, path: "/api/admin/posts/" + p.ID, body: `{"title":null}`, admin: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, request{method: http.MethodPatch, path: "/api/admin/posts/missing", body: `{"title":"x"}`, admin: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishCrossPostsOnce(t *testing.T) {
	cp := &mockCrossPoster{}
	app := newTestApp(t, testConfig(), WithCrossPoster(cp))
	p := app.createPost(t, `{"title":"Shared"}`)

	cp.On("MaybePost", mock.Anything, mock.MatchedBy(func(bp posts.BlogPost) bool {
		return bp.ID == p.ID && bp.Published()
	})).Return("urn:li:share:1", nil).Once()

	rec := app.do(t, request{method: http.MethodPost, path: "/api/admin/posts/" + p.ID + "/publish", admin: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[postEnvelope](t, rec)
	assert.True(t, res.LinkedIn.Posted)
	assert.Equal(t, "urn:li:share:1", res.LinkedIn.URN)
	require.NotNil(t, res.Post.LinkedInPostURN)
	assert.Equal(t, "urn:li:share:1", *res.Post.LinkedInPostURN)
	require.NotNil(t, res.Post.PublishedAt)
	first := *res.Post.PublishedAt

	rec = app.do(t, request{method: http.MethodPost, path: "/api/admin/posts/" + p.ID + "/publish", admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[postEnvelope](t, rec)
	assert.False(t, again.LinkedIn.Posted)
	assert.True(t, again.Post.PublishedAt.Equal(first))

	cp.AssertExpectations(t)
	cp.AssertNumberOfCalls(t, "MaybePost", 1)
}

func TestPublishSucceedsWhenCrossPostFails(t *testing.T) {
	cp := &mockCrossPoster{}
	cp.On("MaybePost", mock.Anything, mock.Anything).Return("", linkedin.ErrPostFailed)
	app := newTestApp(t, testConfig(), WithCrossPoster(cp))
	p := app.createPost(t, `{"title":"Unlucky"}`)

	rec := app.do(t, request{method: http.MethodPost, path: "/api/admin/posts/" + p.ID + "/publish", admin: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[postEnvelope](t, rec)
	assert.Equal(t, posts.StatusPublished, res.Post.Status)
	assert.Nil(t, res.Post.LinkedInPostURN)
	assert.False(t, res.LinkedIn.Posted)
	assert.Contains(t, res.LinkedIn.Error, "post failed")

	stored, err := app.Posts.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Published())
	assert.Nil(t, stored.LinkedInPostURN)
}

func TestPublishSkippedCrossPostLeavesNoURN(t *testing.T) {
	cp := &mockCrossPoster{}
	cp.On("MaybePost", mock.Anything, mock.Anything).Return("", nil)
	app := newTestApp(t, testConfig(), WithCrossPoster(cp))
	p := app.createPost(t, `{"title":"Quiet"}`)

	rec := app.do(t, request{method: http.MethodPost, path: "/api/admin/posts/" + p.ID + "/publish", admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[postEnvelope](t, rec)
	assert.Nil(t, res.Post.LinkedInPostURN)
	assert.Empty(t, res.LinkedIn.Error)
}

func TestPublishUnknownPost(t *testing.T) {
	cp := &mockCrossPoster{}
	app := newTestApp(t, testConfig(), WithCrossPoster(cp))
	rec := app.do(t, request{method: http.MethodPost, path: "/api/admin/posts/missing/publish", admin: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	cp.AssertNotCalled(t, "MaybePost", mock.Anything, mock.Anything)
}

func (a *App) publish(t *testing.T, id string) posts.BlogPost {
	t.Helper()
	rec := a.do(t, request{method: http.MethodPost, path: "/api/admin/posts/" + id + "/publish", admin: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[postEnvelope](t, rec).Post
}

func noCrossPost() Option {
	cp := &mockCrossPoster{}
	cp.On("MaybePost", mock.Anything, mock.Anything).Return("", nil)
	return WithCrossPoster(cp)
}

func TestPublicPostAPI(t *testing.T) {
	app := newTestApp(t, testConfig(), noCrossPost())
	draft := app.createPost(t, `{"title":"Draft"}`)
	live := app.createPost(t, `{"title":"Live","bodyMarkdown":"Some **bold** text"}`)

	rec := app.do(t, request{method: http.MethodGet, path: "/api/posts"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"posts":[]}`, rec.Body.String())

	app.publish(t, live.ID)

	rec = app.do(t, request{method: http.MethodGet, path: "/api/posts"})
	list := decode[struct {
		Posts []posts.BlogPost `json:"posts"`
	}](t, rec)
	require.Len(t, list.Posts, 1, "publishing must invalidate the cache")
	assert.Equal(t, "live", list.Posts[0].Slug)

	rec = app.do(t, request{method: http.MethodGet, path: "/api/posts/live"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Post PublicPost `json:"post"`
	}](t, rec)
	assert.Contains(t, got.Post.BodyHTML, "<strong>bold</strong>")

	rec = app.do(t, request{method: http.MethodGet, path: "/api/posts/" + draft.Slug})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())
}

func TestHTMLPages(t *testing.T) {
	app := newTestApp(t, testConfig(), noCrossPost())
	p := app.createPost(t, `{"title":"Page & Title","bodyMarkdown":"# Heading"}`)
	app.publish(t, p.ID)

	rec := app.do(t, request{method: http.MethodGet, path: "/blog/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/blog/page-title/"`)
	assert.Contains(t, rec.Body.String(), "Page &amp; Title")

	rec = app.do(t, request{method: http.MethodGet, path: "/blog/page-title/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<h1 id="heading">Heading</h1>`)
	assert.Equal(t, echoHTML, rec.Header().Get("Content-Type"))

	rec = app.do(t, request{method: http.MethodGet, path: "/blog/page-title"})
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	rec = app.do(t, request{method: http.MethodGet, path: "/blog/nothing-here/"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Not found | Geiri</title>")

	for _, path := range []string{"/", "/cv/"} {
		rec = app.do(t, request{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

const echoHTML = "text/html; charset=UTF-8"

func TestFeed(t *testing.T) {
	app := newTestApp(t, testConfig(), noCrossPost())
	draft := app.createPost(t, `{"title":"Hidden draft"}`)
	p := app.createPost(t, `{"title":"Tom & Jerry <3","summary":"cats < dogs"}`)
	app.publish(t, p.ID)

	rec := app.do(t, request{method: http.MethodGet, path: "/feed.xml"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, body, `<rss version="2.0">`)
	assert.Contains(t, body, "<title>Tom &amp; Jerry &lt;3</title>")
	assert.Contains(t, body, "<description>cats &lt; dogs</description>")
	assert.Contains(t, body, "<description>Notes on Teams &amp; &lt;Intune&gt;</description>")
	assert.Contains(t, body, `<guid isPermaLink="true">https://example.com/blog/tom-jerry-3/</guid>`)
	assert.Contains(t, body, "<link>https://example.com/blog/tom-jerry-3/</link>")
	assert.Contains(t, body, "<pubDate>")
	assert.Contains(t, body, "<lastBuildDate>")
	assert.NotContains(t, body, draft.Title)
}

func TestSitemap(t *testing.T) {
	app := newTestApp(t, testConfig(), noCrossPost())
	p := app.createPost(t, `{"title":"Mapped"}`)
	published := app.publish(t, p.ID)
	app.createPost(t, `{"title":"Unmapped"}`)

	rec := app.do(t, request{method: http.MethodGet, path: "/sitemap.xml"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, loc := range []string{
		"https://example.com/",
		"https://example.com/cv/",
		"https://example.com/blog/",
		"https://example.com/blog/mapped/",
	} {
		assert.Contains(t, body, "<loc>"+loc+"</loc>")
	}
	assert.Contains(t, body, "<lastmod>"+published.UpdatedAt.UTC().Format("2006-01-02")+"</lastmod>")
	assert.NotContains(t, body, "unmapped")
	assert.Equal(t, 4, strings.Count(body, "<url>"))
}

func TestRobotsAndHealth(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(t, request{method: http.MethodGet, path: "/robots.txt"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Disallow: /api/admin/")
	assert.Contains(t, rec.Body.String(), "Sitemap: https://example.com/sitemap.xml")

	rec = app.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatsAndMetrics(t *testing.T) {
	app := newTestApp(t, testConfig())
	for i := 0; i < 3; i++ {
		app.do(t, request{method: http.MethodGet, path: "/api/posts"})
	}
	app.do(t, request{method: http.MethodGet, path: "/healthz"})

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/stats", admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[RequestStats](t, rec)
	assert.True(t, stats.Enabled)
	assert.GreaterOrEqual(t, stats.TotalRequests, 4)
	require.NotEmpty(t, stats.TopPages)
	assert.Equal(t, PageCount{Name: "/api/posts", Count: 3}, stats.TopPages[0])

	rec = app.do(t, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `geiri_http_requests_total{code="200",host="example.com",method="GET",url="/api/posts"} 3`)
}

func TestSetupRequiresSessionSecret(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSecret = ""
	app := New(cfg, WithPostBackend(posts.NewMemoryBackend()))
	assert.Error(t, app.Setup(context.Background()))
}

// fakeLinkedIn counts token exchanges and serves a member profile.
type fakeLinkedIn struct {
	*httptest.Server
	tokenCalls atomic.Int32
}

func newFakeLinkedIn(t *testing.T) *fakeLinkedIn {
	f := &fakeLinkedIn{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/accessToken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":5184000}`)
	})
	mux.HandleFunc("/v2/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"member-1"}`)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func fakeLinkedInSite(f *fakeLinkedIn) SiteConfig {
	cfg := testConfig()
	cfg.LinkedIn = LinkedInConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      f.URL + "/oauth/v2/authorization",
		TokenURL:     f.URL + "/oauth/v2/accessToken",
		APIBaseURL:   f.URL,
	}
	return cfg
}

func TestLinkedInConnectFlow(t *testing.T) {
	f := newFakeLinkedIn(t)
	app := newTestApp(t, fakeLinkedInSite(f))

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/connect", admin: true})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/v2/authorization", loc.Path)
	assert.Equal(t, "https://example.com/api/admin/linkedin/callback", loc.Query().Get("redirect_uri"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = app.do(t, request{
		method:  http.MethodGet,
		path:    "/api/admin/linkedin/callback?code=abc&state=" + url.QueryEscape(state),
		admin:   true,
		cookies: cookies,
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, adminConnectedURL, rec.Header().Get("Location"))
	assert.EqualValues(t, 1, f.tokenCalls.Load())

	rec = app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/status", admin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[linkedin.Status](t, rec)
	assert.True(t, st.Connected)
	assert.NotNil(t, st.ExpiresAt)
}

func TestLinkedInCallbackRejectsBadState(t *testing.T) {
	f := newFakeLinkedIn(t)
	app := newTestApp(t, fakeLinkedInSite(f))

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/connect", admin: true})
	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()

	tests := []struct {
		name    string
		query   string
		cookies []*http.Cookie
	}{
		{"no cookie", "?code=abc&state=whatever", nil},
		{"wrong state", "?code=abc&state=forged", cookies},
		{"no code", "?state=forged", cookies},
		{"tampered cookie", "?code=abc&state=x", []*http.Cookie{{Name: oauthSessionName, Value: "garbage"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/callback" + tt.query, admin: true, cookies: tt.cookies})
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, adminErrorURL, rec.Header().Get("Location"))
		})
	}
	assert.Zero(t, f.tokenCalls.Load(), "token endpoint must not be called")

	rec = app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/status", admin: true})
	assert.JSONEq(t, `{"connected":false,"expiresAt":null}`, rec.Body.String())
}

func TestLinkedInConnectNotConfigured(t *testing.T) {
	app := newTestApp(t, testConfig())
	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/connect", admin: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&posts.ValidationError{Err: errors.New("x")}))
	assert.Equal(t, http.StatusNotFound, statusFor(posts.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(posts.ErrSlugAllocationExhausted))
	assert.Equal(t, http.StatusInternalServerError, statusFor(linkedin.ErrPostFailed))
}

func TestLinkedInConnectIsRateLimited(t *testing.T) {
	f := newFakeLinkedIn(t)
	app := newTestApp(t, fakeLinkedInSite(f))

	codes := map[int]int{}
	for i := 0; i < 12; i++ {
		rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/connect", admin: true})
		codes[rec.Code]++
		if rec.Code == http.StatusTooManyRequests {
			assert.Contains(t, decode[map[string]string](t, rec)["error"], "too many requests")
		}
	}
	assert.Equal(t, map[int]int{http.StatusFound: 10, http.StatusTooManyRequests: 2}, codes)

	rec := app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/callback?code=abc&state=x", admin: true})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "callback shares the per-ip budget")

	rec = app.do(t, request{method: http.MethodGet, path: "/api/admin/linkedin/status", admin: true})
	assert.Equal(t, http.StatusOK, rec.Code, "status is not limited")
}

// stateCookie signs an OAuth state session the way the cookie store does,
// with an arbitrary issue time.
func stateCookie(t *testing.T, secret, state string, issued time.Time) *http.Cookie {
	t.Helper()
	raw, err := securecookie.GobEncoder{}.Serialize(map[interface{}]interface{}{oauthStateKey: state})
	require.NoError(t, err)
	b := []byte(fmt.Sprintf("%s|%d|%s|", oauthSessionName, issued.Unix(), base64.URLEncoding.EncodeToString(raw)))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(b[:len(b)-1])
	b = append(b, mac.Sum(nil)...)[len(oauthSessionName)+1:]
	return &http.Cookie{Name: oauthSessionName, Value: base64.URLEncoding.EncodeToString(b)}
}

func TestLinkedInCallbackRejectsStaleStateCookie(t *testing.T) {
	f := newFakeLinkedIn(t)
	cfg := fakeLinkedInSite(f)
	app := newTestApp(t, cfg)

	callback := func(c *http.Cookie) *httptest.ResponseRecorder {
		return app.do(t, request{
			method:  http.MethodGet,
			path:    "/api/admin/linkedin/callback?code=abc&state=s1",
			admin:   true,
			cookies: []*http.Cookie{c},
		})
	}

	rec := callback(stateCookie(t, cfg.SessionSecret, "s1", time.Now().Add(-20*time.Minute)))
	assert.Equal(t, adminErrorURL, rec.Header().Get("Location"))
	assert.Zero(t, f.tokenCalls.Load(), "an expired state must not reach the token endpoint")

	rec = callback(stateCookie(t, cfg.SessionSecret, "s1", time.Now().Add(-time.Minute)))
	assert.Equal(t, adminConnectedURL, rec.Header().Get("Location"))
	assert.EqualValues(t, 1, f.tokenCalls.Load())
}

func TestAdminMutationsLogTheActingAdmin(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, testConfig(), noCrossPost(), WithLogger(zerolog.New(&buf)))

	p := app.createPost(t, `{"title":"Audited"}`)
	app.publish(t, p.ID)

	var published map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "post published" {
			published = entry
		}
	}
	require.NotNil(t, published, buf.String())
	assert.Equal(t, "geiri", published["admin"])
	assert.Equal(t, "u1", published["admin_id"])
	assert.Equal(t, p.ID, published["post"])
	assert.Contains(t, buf.String(), `"message":"post created"`)
}
