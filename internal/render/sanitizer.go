package render

import "github.com/microcosm-cc/bluemonday"

// Sanitizer はMarkdownから生成したHTMLをサニタイズするインターフェース。
type Sanitizer interface {
	// Sanitize はHTMLを許可リストに基づいてサニタイズする。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// htmlSanitizer はbluemondayのポリシーを保持するSanitizerの実装。
type htmlSanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer は要約表示用のポリシーでSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: 見出し, p, br, hr, ul, ol, li, blockquote, pre, code, strong, em, del, table系
//   - a, imgのURL: http/httpsの絶対URLのみ
//   - aタグには target="_blank" と rel="noopener noreferrer" を付与
//   - script, iframe, style および on*イベント属性は除去
func NewSanitizer() *htmlSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("align").Matching(bluemonday.CellAlign).OnElements("th", "td")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")

	return &htmlSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *htmlSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
