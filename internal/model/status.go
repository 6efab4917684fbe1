package model

import (
	"fmt"
	"html"
)

// StatusKind はワークフローステータスの種別。
type StatusKind string

const (
	// StatusInfo は途中経過を表す。
	StatusInfo StatusKind = "info"
	// StatusSuccess は成功で終了したことを表す。
	StatusSuccess StatusKind = "success"
	// StatusError は失敗で終了したことを表す。
	StatusError StatusKind = "error"
)

// Status はワークフローの各段階で生成される表示用ステータス。
// 再試行のための状態は持たない。
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
}

// Info は途中経過のステータスを生成する。
func Info(format string, args ...any) Status {
	return Status{Kind: StatusInfo, Message: fmt.Sprintf(format, args...)}
}

// Success は成功ステータスを生成する。
func Success(format string, args ...any) Status {
	return Status{Kind: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

// Failure はエラーステータスを生成する。
func Failure(format string, args ...any) Status {
	return Status{Kind: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Terminal は最終ステータス（成功または失敗）かどうかを返す。
func (s Status) Terminal() bool {
	return s.Kind == StatusSuccess || s.Kind == StatusError
}

// HTML はステータスをUI表示用のspan要素に整形する。
// メッセージはHTMLエスケープされる。
func (s Status) HTML() string {
	var class, icon string
	switch s.Kind {
	case StatusSuccess:
		class, icon = "success-message", "✓"
	case StatusError:
		class, icon = "error-message", "✗"
	default:
		class, icon = "info-message", "⏳"
	}
	return fmt.Sprintf("<span class='%s'>%s %s</span>", class, icon, html.EscapeString(s.Message))
}
