package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, directory, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidSourceType  = "INVALID_SOURCE_TYPE"
	ErrCodeEmptyContent       = "EMPTY_CONTENT"
	ErrCodeHistoryUnavailable = "HISTORY_UNAVAILABLE"
	ErrCodeSessionRequired    = "SESSION_REQUIRED"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidSourceTypeError は列挙外のソース種別が指定された場合のエラーを生成する。
func NewInvalidSourceTypeError(sourceType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSourceType,
		Message:  fmt.Sprintf("不明なソース種別です: %s", sourceType),
		Category: "validation",
		Action:   "ソース種別には github または hackernews を指定してください。",
	}
}

// NewEmptyContentError はダウンロード対象のコンテンツが空の場合のエラーを生成する。
func NewEmptyContentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyContent,
		Message:  "ダウンロードするコンテンツがありません。",
		Category: "validation",
		Action:   "先に更新を取得してください。",
	}
}

// NewHistoryUnavailableError は実行履歴ストレージが無効な場合のエラーを生成する。
func NewHistoryUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeHistoryUnavailable,
		Message:  "実行履歴は有効になっていません。",
		Category: "system",
		Action:   "DATABASE_URLを設定してサーバーを再起動してください。",
	}
}

// NewSessionRequiredError はセッションがコンテキストに存在しない場合のエラーを生成する。
func NewSessionRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionRequired,
		Message:  "セッションが見つかりません。",
		Category: "system",
		Action:   "ページを再読み込みしてください。",
	}
}

// ErrorKind はワークフロー内で発生するエラーの分類。
type ErrorKind string

const (
	// ErrKindValidation は選択値の欠落・不正。
	ErrKindValidation ErrorKind = "validation"
	// ErrKindLookup はソース名を識別子に解決できない。
	ErrKindLookup ErrorKind = "lookup"
	// ErrKindBackend はSource Directory呼び出しの失敗。
	ErrKindBackend ErrorKind = "backend"
	// ErrKindFormat はメールアドレスの形式不正。
	ErrKindFormat ErrorKind = "format"
)

// WorkflowError はワークフローの各段階で発生したエラー。
// ワークフローの外へは伝播せず、Errorステータスに変換される。
type WorkflowError struct {
	Kind    ErrorKind
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *WorkflowError) Error() string {
	return e.Message
}

// NewMissingSelectionError は必須の選択値が空の場合のエラーを生成する。
func NewMissingSelectionError(fields []string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindValidation,
		Message: fmt.Sprintf("%s を選択してください", strings.Join(fields, "、")),
	}
}

// NewUnknownSourceTypeError は列挙外のソース種別のエラーを生成する。
func NewUnknownSourceTypeError(sourceType string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindValidation,
		Message: fmt.Sprintf("不明なソース種別です: %s", sourceType),
	}
}

// NewSourceNotFoundError はソース名が解決できない場合のエラーを生成する。
func NewSourceNotFoundError(name string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindLookup,
		Message: fmt.Sprintf("ソースが見つかりません: %s", name),
	}
}

// NewBackendError はSource Directory呼び出し失敗のエラーを生成する。
// reasonはSource Directoryのメッセージをそのまま含む。
func NewBackendError(reason string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindBackend,
		Message: fmt.Sprintf("取得に失敗しました: %s", reason),
	}
}

// NewSourceListError はソース一覧の取得に失敗し、ソースIDを解決できない場合のエラーを生成する。
func NewSourceListError(reason string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindBackend,
		Message: fmt.Sprintf("ソース一覧の取得に失敗しました: %s", reason),
	}
}

// NewInvalidRecipientsError は形式が不正なメールアドレスをすべて列挙するエラーを生成する。
func NewInvalidRecipientsError(invalid []string) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrKindFormat,
		Message: fmt.Sprintf("以下のメールアドレスの形式が無効です: %s", strings.Join(invalid, ", ")),
	}
}
