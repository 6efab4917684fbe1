// Package mock はSource Directoryが利用できない場合の代替データを提供する。
// すべての値は決定的で、外部コンポーネントの有無に依存しない。
package mock

import (
	"strings"

	"github.com/hitoshi/repodigest/internal/model"
)

const rawContent = `# golang/go 最新の更新

## コミット

1. [cmd/compile: make more functions able to be inlined](https://github.com/golang/go/commit/abc123)
   - 作成者: John Doe
   - 日付: 2024-03-25
   - 概要: コンパイラのインライン化を改善し、実行効率を向上

2. [net/http: improve server performance](https://github.com/golang/go/commit/def456)
   - 作成者: Jane Smith
   - 日付: 2024-03-24
   - 概要: HTTPサーバーの性能を改善

## Pull Requests

1. [proposal: spec: allow type parameters on methods](https://github.com/golang/go/pull/789)
   - 状態: Open
   - 作成者: Alice Johnson
   - 概要: メソッドでの型パラメータを提案

2. [cmd/go: add workspace mode](https://github.com/golang/go/pull/101112)
   - 状態: Merged
   - 作成者: Bob Wilson
   - 概要: ワークスペースモードを追加
`

const summaryContent = `# golang/go 更新サマリー

今回の更新の主な変更点:

1. **コンパイラの最適化**
   - 関数のインライン化を改善
   - 実行性能の向上が見込まれる

2. **HTTPの性能改善**
   - サーバー性能を最適化

3. **新機能の提案**
   - メソッドでの型パラメータを検討中

4. **ツールチェーンの改善**
   - ワークスペースモードを追加し、マルチモジュール開発を改善

## 注目ポイント

- HTTPサーバーの性能に依存するプロジェクトは関連する変更を確認すること
- マルチモジュール構成のプロジェクトはワークスペースモードを試すとよい
`

// Models は代替のLLMモデル一覧を返す。
func Models() []string {
	return []string{"llama3.2", "llama2", "gpt-4"}
}

// SourceTypes は代替のソース種別一覧を返す。
func SourceTypes() []model.SourceType {
	return []model.SourceType{model.SourceTypeGitHub, model.SourceTypeHackerNews}
}

// Sources は代替のソース一覧を返す。
// 代替データはソース種別による絞り込みを行わない。
func Sources() []model.Source {
	return []model.Source{
		{ID: 1, Name: "golang/go"},
		{ID: 2, Name: "rust-lang/rust"},
		{ID: 3, Name: "python/cpython"},
	}
}

// Update は代替の原文と要約の組を返す。
func Update() model.UpdateResult {
	return model.UpdateResult{
		Raw:     strings.TrimSpace(rawContent),
		Summary: strings.TrimSpace(summaryContent),
	}
}
