package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/repodigest/internal/lookup"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
	"github.com/hitoshi/repodigest/internal/session"
	"github.com/hitoshi/repodigest/internal/workflow"
)

// --- モック ---

// mockCatalog はCatalogServiceのモック実装。
type mockCatalog struct {
	modelsFn          func(ctx context.Context) ([]string, bool)
	sourceTypesFn     func(ctx context.Context) ([]string, bool)
	fallbackSourcesFn func() []model.Source
	unavailable       bool
}

func (m *mockCatalog) Models(ctx context.Context) ([]string, bool) {
	if m.modelsFn != nil {
		return m.modelsFn(ctx)
	}
	return []string{"llama3.2"}, false
}

func (m *mockCatalog) SourceTypes(ctx context.Context) ([]string, bool) {
	if m.sourceTypesFn != nil {
		return m.sourceTypesFn(ctx)
	}
	return []string{"github", "hackernews"}, false
}

func (m *mockCatalog) Available() bool {
	return !m.unavailable
}

func (m *mockCatalog) FallbackSources() []model.Source {
	if m.fallbackSourcesFn != nil {
		return m.fallbackSourcesFn()
	}
	return []model.Source{{ID: 3, Name: "python/cpython"}}
}

// mockLister はlookup.SourceListerのモック実装。
type mockLister struct {
	listSourcesFn func(ctx context.Context, sourceType *model.SourceType) ([]model.Source, error)
}

func (m *mockLister) ListSources(ctx context.Context, sourceType *model.SourceType) ([]model.Source, error) {
	if m.listSourcesFn != nil {
		return m.listSourcesFn(ctx, sourceType)
	}
	return []model.Source{{ID: 1, Name: "golang/go"}, {ID: 2, Name: "rust-lang/rust"}}, nil
}

// mockWorkflow はWorkflowRunnerのモック実装。
type mockWorkflow struct {
	runFetchFn    func(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot]
	sendSummaryFn func(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot]
}

func (m *mockWorkflow) RunFetch(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot] {
	if m.runFetchFn != nil {
		return m.runFetchFn(ctx, cache, req)
	}
	return seqOf()
}

func (m *mockWorkflow) SendSummary(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot] {
	if m.sendSummaryFn != nil {
		return m.sendSummaryFn(ctx, cache, req)
	}
	return seqOf()
}

// stubRenderer はMarkdownを<p>で囲むだけのMarkdownRenderer。
type stubRenderer struct {
	err error
}

func (s stubRenderer) HTML(markdown string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "<p>" + markdown + "</p>", nil
}

// mockHistory はHistoryListerのモック実装。
type mockHistory struct {
	listRecentFn    func(ctx context.Context, limit int) ([]model.Run, error)
	listBySessionFn func(ctx context.Context, sessionID string, limit int) ([]model.Run, error)
}

func (m *mockHistory) ListRecent(ctx context.Context, limit int) ([]model.Run, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockHistory) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	if m.listBySessionFn != nil {
		return m.listBySessionFn(ctx, sessionID, limit)
	}
	return nil, nil
}

// mockPinger はHealthCheckerのモック実装。
type mockPinger struct {
	err error
}

func (m mockPinger) PingContext(ctx context.Context) error { return m.err }

// --- ヘルパー ---

func seqOf(snaps ...workflow.Snapshot) iter.Seq[workflow.Snapshot] {
	return func(yield func(workflow.Snapshot) bool) {
		for _, s := range snaps {
			if !yield(s) {
				return
			}
		}
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func discardLogger() *slog.Logger {
	return newTestLogger(&bytes.Buffer{})
}

func newTestSession(t *testing.T, lister lookup.SourceLister) *session.Session {
	t.Helper()
	if lister == nil {
		lister = &mockLister{}
	}
	store := session.NewStore(lister, time.Hour)
	t.Cleanup(store.Stop)
	return store.Create()
}

// withSession はテスト用にセッションを注入したリクエストを返す。
func withSession(req *http.Request, sess *session.Session) *http.Request {
	return req.WithContext(middleware.ContextWithSession(req.Context(), sess))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("リクエストボディの生成に失敗: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("不正なJSONは400を返す", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
		var v fetchRequest
		if decodeJSON(w, r, &v) {
			t.Fatal("decodeJSON should fail")
		}
		assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidRequest)
	})

	t.Run("空ボディはゼロ値として受け付ける", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		var v fetchRequest
		if !decodeJSON(w, r, &v) {
			t.Fatalf("decodeJSON failed: %s", w.Body.String())
		}
	})
}

var errBoom = errors.New("boom")
