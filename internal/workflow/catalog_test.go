package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/repodigest/internal/directory"
	"github.com/hitoshi/repodigest/internal/mock"
	"github.com/hitoshi/repodigest/internal/model"
)

func newTestCatalog(dir directory.Directory) (*Catalog, *recordingObserver, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	obs := &recordingObserver{}
	return NewCatalog(directory.NewGateway(dir, logger, nil), logger, obs), obs, &buf
}

func TestCatalog_Models(t *testing.T) {
	t.Run("取得成功時はライブの一覧を返す", func(t *testing.T) {
		c, obs, _ := newTestCatalog(&mockDirectory{
			modelListFn: func(ctx context.Context) ([]string, error) {
				return []string{"deepseek-chat"}, nil
			},
		})

		got, isMock := c.Models(context.Background())
		if isMock {
			t.Error("isMock = true, want false")
		}
		if diff := cmp.Diff([]string{"deepseek-chat"}, got); diff != "" {
			t.Errorf("Models mismatch (-want +got):\n%s", diff)
		}
		if len(obs.fallbacks) != 0 {
			t.Errorf("fallbacks = %v, want none", obs.fallbacks)
		}
	})

	t.Run("取得失敗時は代替データを返し警告を記録する", func(t *testing.T) {
		c, obs, logs := newTestCatalog(&mockDirectory{
			modelListFn: func(ctx context.Context) ([]string, error) {
				return nil, errors.New("ollama is down")
			},
		})

		got, isMock := c.Models(context.Background())
		if !isMock {
			t.Error("isMock = false, want true")
		}
		if diff := cmp.Diff(mock.Models(), got); diff != "" {
			t.Errorf("Models mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(logs.String(), "ollama is down") {
			t.Error("failure reason should be logged")
		}
		if diff := cmp.Diff([]string{CategoryModels}, obs.fallbacks); diff != "" {
			t.Errorf("fallbacks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("未設定時は代替データを返す", func(t *testing.T) {
		c, _, _ := newTestCatalog(nil)

		got, isMock := c.Models(context.Background())
		if !isMock || len(got) == 0 {
			t.Errorf("Models() = (%v, %v), want non-empty mock", got, isMock)
		}
	})
}

func TestCatalog_SourceTypes_MapsUnknownValues(t *testing.T) {
	c, _, _ := newTestCatalog(&mockDirectory{
		sourceTypeListFn: func(ctx context.Context) ([]int, error) {
			return []int{1, 2, 7}, nil
		},
	})

	got, isMock := c.SourceTypes(context.Background())
	if isMock {
		t.Error("isMock = true, want false")
	}
	if diff := cmp.Diff([]string{"github", "hackernews", "unknown"}, got); diff != "" {
		t.Errorf("SourceTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalog_SourceTypes_Fallback(t *testing.T) {
	c, _, _ := newTestCatalog(nil)

	got, isMock := c.SourceTypes(context.Background())
	if !isMock {
		t.Error("isMock = false, want true")
	}
	if diff := cmp.Diff([]string{"github", "hackernews"}, got); diff != "" {
		t.Errorf("SourceTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalog_ListSources(t *testing.T) {
	t.Run("取得失敗時は代替データを使わずエラーを返す", func(t *testing.T) {
		c, obs, _ := newTestCatalog(&mockDirectory{
			sourceListFn: func(ctx context.Context, sourceTypeID *int) ([]model.Source, error) {
				return nil, errors.New("database locked")
			},
		})

		got, err := c.ListSources(context.Background(), nil)
		if err == nil {
			t.Fatalf("expected error, got sources %v", got)
		}
		var lerr *ListingError
		if !errors.As(err, &lerr) || lerr.Reason != "database locked" {
			t.Errorf("err = %v, want ListingError with reason %q", err, "database locked")
		}
		if len(obs.fallbacks) != 0 {
			t.Errorf("fallbacks = %v, want none", obs.fallbacks)
		}
	})

	t.Run("未設定の場合は代替データを返す", func(t *testing.T) {
		c, obs, _ := newTestCatalog(nil)

		got, err := c.ListSources(context.Background(), nil)
		if err != nil {
			t.Fatalf("ListSources がエラーを返した: %v", err)
		}
		if diff := cmp.Diff(mock.Sources(), got); diff != "" {
			t.Errorf("ListSources mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{CategorySources}, obs.fallbacks); diff != "" {
			t.Errorf("fallbacks mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCatalog_FallbackSources(t *testing.T) {
	c, obs, _ := newTestCatalog(&mockDirectory{})

	if diff := cmp.Diff(mock.Sources(), c.FallbackSources()); diff != "" {
		t.Errorf("FallbackSources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{CategorySources}, obs.fallbacks); diff != "" {
		t.Errorf("fallbacks mismatch (-want +got):\n%s", diff)
	}
	if !c.Available() {
		t.Error("Available() = false, want true for configured directory")
	}
}
