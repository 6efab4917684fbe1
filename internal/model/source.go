// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Source は更新を追跡する対象（GitHubリポジトリ等）を表す。
// IDはSource Directoryが採番する不透明な整数で、Nameは表示名（例: "golang/go"）。
type Source struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SourceType はソース提供元の種別を表す閉じた列挙型。
// 数値はSource Directoryとのワイヤ値として使う。
type SourceType int

const (
	// SourceTypeGitHub はGitHubリポジトリ。
	SourceTypeGitHub SourceType = 1
	// SourceTypeHackerNews はHacker News。
	SourceTypeHackerNews SourceType = 2
)

// SourceTypeUnknown は列挙に存在しない数値を表示するときの文字列。
// 送信時には常に拒否される。
const SourceTypeUnknown = "unknown"

var sourceTypeNames = map[SourceType]string{
	SourceTypeGitHub:     "github",
	SourceTypeHackerNews: "hackernews",
}

// String は表示用の名前を返す。列挙外の値は"unknown"になる。
func (t SourceType) String() string {
	if name, ok := sourceTypeNames[t]; ok {
		return name
	}
	return SourceTypeUnknown
}

// Valid は列挙に含まれる値かどうかを返す。
func (t SourceType) Valid() bool {
	_, ok := sourceTypeNames[t]
	return ok
}

// ParseSourceType は表示名（大文字小文字を区別しない）をSourceTypeに変換する。
// 列挙に存在しない名前の場合はfalseを返す。
func ParseSourceType(name string) (SourceType, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for t, n := range sourceTypeNames {
		if n == key {
			return t, true
		}
	}
	return 0, false
}

// UpdateResult はSource Directoryが返す原文と要約の組。
// セッション中のUI状態としてのみ保持し、永続化しない。
type UpdateResult struct {
	Raw     string
	Summary string
}

// Run は1回のフェッチ/送信ワークフローの実行履歴を表す。
// コンテンツ本体は保存せず、結果の概要のみを記録する。
type Run struct {
	ID              int64
	SessionID       string
	Action          string // fetch, send
	Model           string
	SourceType      string
	SourceName      string
	RecipientsCount int
	StatusKind      StatusKind
	StatusMessage   string
	StartedAt       time.Time
	FinishedAt      time.Time
}
