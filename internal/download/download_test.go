package download

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/repodigest/internal/model"
)

func TestWriteTemp_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := "# golang/go 更新サマリー\n\n- コンパイラの最適化 ✓\n"

	path, err := WriteTemp(dir, content)
	if err != nil {
		t.Fatalf("WriteTemp がエラーを返した: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q, want file under %q", path, dir)
	}
	if !strings.HasPrefix(filepath.Base(path), "repodigest-") || filepath.Ext(path) != ".md" {
		t.Errorf("file name = %q, want repodigest-*.md", filepath.Base(path))
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(got) != content {
		t.Errorf("read back %q, want byte-identical %q", got, content)
	}
}

func TestWriteTemp_EmptyContent(t *testing.T) {
	path, err := WriteTemp(t.TempDir(), "")
	if err != nil {
		t.Fatalf("WriteTemp がエラーを返した: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestWriteTemp_MissingDir_ReturnsError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")

	path, err := WriteTemp(dir, "content")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if path != "" {
		t.Errorf("path = %q, want empty on error", path)
	}
}

// failingFile は実ファイルへ途中まで書き込んだ後にエラーを返すtempFile。
type failingFile struct {
	*os.File
	closed bool
}

func (f *failingFile) WriteString(s string) (int, error) {
	n, _ := f.File.WriteString(s[:len(s)/2])
	return n, errors.New("disk full")
}

func (f *failingFile) Close() error {
	f.closed = true
	return f.File.Close()
}

func TestWriteTemp_WriteFailure_ClosesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	var created *failingFile
	create := func(dir, pattern string) (tempFile, error) {
		f, err := os.CreateTemp(dir, pattern)
		if err != nil {
			return nil, err
		}
		created = &failingFile{File: f}
		return created, nil
	}

	path, err := writeTemp(dir, "# partial content", create)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to write temp file") {
		t.Errorf("err = %v, want write failure", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty on error", path)
	}
	if created == nil {
		t.Fatal("temp file was not created")
	}
	if !created.closed {
		t.Error("file descriptor must be closed after a write failure")
	}
	if _, statErr := os.Stat(created.Name()); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("partial file %q should be removed, stat err = %v", created.Name(), statErr)
	}
}

func TestFileName(t *testing.T) {
	now := time.Unix(1711353600, 0)

	tests := []struct {
		name       string
		sourceType model.SourceType
		source     string
		want       string
	}{
		{name: "owner/repo形式", sourceType: model.SourceTypeGitHub, source: "golang/go", want: "github_golang_go_1711353600.md"},
		{name: "記号は置換される", sourceType: model.SourceTypeGitHub, source: "a b/c:d", want: "github_a_b_c_d_1711353600.md"},
		{name: "空のソース名", sourceType: model.SourceTypeHackerNews, source: " ", want: "hackernews_summary_1711353600.md"},
		{name: "未知のソース種別", sourceType: model.SourceType(99), source: "x/y", want: "unknown_x_y_1711353600.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.sourceType, tt.source, now); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoveStale(t *testing.T) {
	dir := t.TempDir()
	old, _ := WriteTemp(dir, "old")
	fresh, _ := WriteTemp(dir, "fresh")
	other := filepath.Join(dir, "keep.md")
	os.WriteFile(other, []byte("unrelated"), 0o600)

	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(other, past, past)

	removed, err := RemoveStale(dir, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RemoveStale がエラーを返した: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale temp file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh temp file should be kept")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("files not created by WriteTemp should be kept")
	}
}
