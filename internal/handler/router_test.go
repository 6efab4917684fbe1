package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/repodigest/internal/directory"
	"github.com/hitoshi/repodigest/internal/metrics"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
	"github.com/hitoshi/repodigest/internal/render"
	"github.com/hitoshi/repodigest/internal/session"
	"github.com/hitoshi/repodigest/internal/workflow"
)

// newTestRouter はSource Directory未設定（モックモード）の実構成でルーターを組み立てる。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := discardLogger()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	gateway := directory.NewGateway(nil, logger, collector)
	catalog := workflow.NewCatalog(gateway, logger, collector)
	controller := workflow.NewController(workflow.ControllerDeps{
		Gateway:  gateway,
		Logger:   logger,
		Observer: collector,
	})

	store := session.NewStore(catalog, time.Hour)
	t.Cleanup(store.Stop)
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	return NewRouter(&RouterDeps{
		Logger:            logger,
		Sessions:          store,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		StatusObserver:    collector,
		Gatherer:          reg,
		Catalog:           catalog,
		Workflow:          controller,
		Renderer:          render.NewRenderer(nil),
		DownloadDir:       t.TempDir(),
	})
}

// client はレスポンスのCookieを次のリクエストへ引き継ぐテスト用クライアント。
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, handler: h, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for _, ck := range c.cookies {
		r.AddCookie(ck)
	}
	if ck, ok := c.cookies["csrf_token"]; ok {
		r.Header.Set("X-CSRF-Token", ck.Value)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, r)
	for _, ck := range w.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return w
}

func TestRouter_FetchFlowInMockMode(t *testing.T) {
	c := newClient(t, newTestRouter(t))

	w := c.do(http.MethodGet, "/api/options", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/options status = %d", w.Code)
	}
	opts := decodeBody[optionsResponse](t, w)
	if !opts.Models.IsMock || len(opts.Sources.Sources) != 3 {
		t.Errorf("options = %+v, want mock data", opts)
	}
	if c.cookies["session_id"] == nil || c.cookies["csrf_token"] == nil {
		t.Fatalf("session_id / csrf_token cookies should be issued, got %v", c.cookies)
	}

	w = c.do(http.MethodPost, "/api/fetch", fetchRequest{
		Model:      "llama3.2",
		SourceType: "github",
		Source:     "golang/go",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/fetch status = %d (body=%s)", w.Code, w.Body.String())
	}
	resp := decodeBody[runResponse](t, w)
	if resp.Final.Status.Kind != model.StatusSuccess {
		t.Fatalf("final status = %+v", resp.Final.Status)
	}
	if !strings.Contains(resp.Final.Status.Message, "サンプルデータ") {
		t.Errorf("message = %q, want sample-data notice", resp.Final.Status.Message)
	}
	if !strings.Contains(resp.Final.SummaryHTML, "<h") || resp.Final.Summary == "" {
		t.Errorf("summary_html = %q", resp.Final.SummaryHTML)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	t.Run("未知のソースはErrorで終わる", func(t *testing.T) {
		w := c.do(http.MethodPost, "/api/fetch", fetchRequest{
			Model: "llama3.2", SourceType: "github", Source: "nonexistent/repo",
		})
		resp := decodeBody[runResponse](t, w)
		if resp.Final.Status.Kind != model.StatusError || !strings.Contains(resp.Final.Status.Message, "nonexistent/repo") {
			t.Errorf("final = %+v", resp.Final.Status)
		}
	})

	t.Run("メトリクスに実行結果が記録される", func(t *testing.T) {
		w := c.do(http.MethodGet, "/metrics", nil)
		if !strings.Contains(w.Body.String(), `repodigest_workflow_runs_total{action="fetch",outcome="success"} 1`) {
			t.Errorf("metrics body missing run counter:\n%s", w.Body.String())
		}
	})
}

func TestRouter_CSRFRequiredForPost(t *testing.T) {
	h := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/api/fetch", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assertErrorCode(t, w, http.StatusForbidden, "CSRF_VALIDATION_FAILED")
}

func TestRouter_HealthDoesNotIssueSession(t *testing.T) {
	h := newTestRouter(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "session_id" {
			t.Error("/health はセッションを発行してはならない")
		}
	}
}

func TestRouter_HistoryDisabled(t *testing.T) {
	c := newClient(t, newTestRouter(t))

	w := c.do(http.MethodGet, "/api/history", nil)
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeHistoryUnavailable)
}

func TestRouter_Preflight(t *testing.T) {
	h := newTestRouter(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/fetch", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_DownloadAndValidate(t *testing.T) {
	c := newClient(t, newTestRouter(t))
	c.do(http.MethodGet, "/api/csrf-token", nil)

	w := c.do(http.MethodPost, "/api/recipients/validate", validateRecipientsRequest{Recipients: "a@example.com"})
	if got := decodeBody[statusResponse](t, w); got.Kind != model.StatusSuccess {
		t.Errorf("validate = %+v", got)
	}

	w = c.do(http.MethodPost, "/api/download", downloadRequest{Content: "# x", SourceType: "github", Source: "golang/go"})
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d (body=%s)", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="github_golang_go_`) {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
}
