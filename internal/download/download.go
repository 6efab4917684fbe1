// Package download は要約をダウンロード用の一時ファイルに書き出す。
// 生成したファイルの削除は呼び出し側の責務である。
package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/repodigest/internal/model"
)

// filePattern は一時ファイル名のパターン。RemoveStaleはこの接頭辞のファイルのみを対象にする。
const filePattern = "repodigest-*.md"

const filePrefix = "repodigest-"

// tempFile はWriteTempが書き込む一時ファイル。*os.Fileが実装する。
type tempFile interface {
	WriteString(s string) (int, error)
	Close() error
	Name() string
}

func createOSTemp(dir, pattern string) (tempFile, error) {
	return os.CreateTemp(dir, pattern)
}

// WriteTemp はcontentをdir配下の一時ファイルに書き出してパスを返す。
// 書き込みに失敗した場合もファイル記述子は必ず閉じ、作成したファイルは削除する。
func WriteTemp(dir, content string) (string, error) {
	return writeTemp(dir, content, createOSTemp)
}

func writeTemp(dir, content string, create func(dir, pattern string) (tempFile, error)) (path string, err error) {
	f, err := create(dir, filePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close temp file: %w", cerr))
		}
		if err != nil {
			os.Remove(f.Name())
			path = ""
		}
	}()

	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

// FileName はダウンロード時のファイル名を組み立てる。
// 形式は {source_type}_{owner}_{repo}_{unixtime}.md で、ファイル名に使えない文字は "_" に置き換える。
func FileName(sourceType model.SourceType, sourceName string, now time.Time) string {
	name := strings.ReplaceAll(strings.TrimSpace(sourceName), "/", "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "summary"
	}
	return fmt.Sprintf("%s_%s_%d.md", sourceType, name, now.Unix())
}

// RemoveStale はdir内の一時ファイルのうち、更新時刻がbeforeより古いものを削除する。
// 削除した件数を返す。
func RemoveStale(dir string, before time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read download dir: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
