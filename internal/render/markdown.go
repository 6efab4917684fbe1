// Package render は取得した原文と要約のMarkdownを表示用の安全なHTMLに変換する。
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer はMarkdownをサニタイズ済みHTMLに変換する。
// goldmarkの変換結果を必ずSanitizerに通してから返す。
type Renderer struct {
	md        goldmark.Markdown
	sanitizer Sanitizer
}

// NewRenderer はGFM拡張を有効にしたRendererを生成する。
// sanitizerがnilの場合はNewSanitizer()を使用する。
func NewRenderer(sanitizer Sanitizer) *Renderer {
	if sanitizer == nil {
		sanitizer = NewSanitizer()
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Renderer{md: md, sanitizer: sanitizer}
}

// HTML はMarkdownをHTMLに変換する。空文字列の入力には空文字列を返す。
func (r *Renderer) HTML(markdown string) (string, error) {
	markdown = stripCodeFence(markdown)
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return r.sanitizer.Sanitize(buf.String()), nil
}

// stripCodeFence は全体が ```markdown ... ``` で囲まれた応答から外側のフェンスを除く。
// LLMの出力はしばしばこの形式で返る。
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return s
	}

	firstLine, rest, ok := strings.Cut(trimmed, "\n")
	if !ok {
		return s
	}
	lang := strings.TrimSpace(strings.TrimPrefix(firstLine, "```"))
	if lang != "" && !strings.EqualFold(lang, "markdown") && !strings.EqualFold(lang, "md") {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(rest, "```"))
}
