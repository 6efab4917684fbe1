// Package directory はSource Directory（外部の取得・要約・メール送信エンジン）との連携を提供する。
// HTTP/JSONクライアントと、呼び出し結果を明示的なResult型に変換するGatewayを含む。
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/repodigest/internal/model"
)

// maxErrorBodySize はエラーレスポンスとして読み取る最大バイト数。
const maxErrorBodySize = 64 * 1024

// Directory はSource Directoryが提供する操作のインターフェース。
type Directory interface {
	// ModelList は利用可能なLLMモデル名を返す。
	ModelList(ctx context.Context) ([]string, error)
	// SourceTypeList は利用可能なソース種別の数値を返す。
	SourceTypeList(ctx context.Context) ([]int, error)
	// SourceList はソースの(id, name)一覧を返す。sourceTypeIDがnilの場合は全件。
	SourceList(ctx context.Context, sourceTypeID *int) ([]model.Source, error)
	// FetchUpdates は更新を取得して要約し、recipientsが空でなければメール送信まで行う。
	FetchUpdates(ctx context.Context, sourceTypeID int, sourceID int64, modelName string, recipients []string) (model.UpdateResult, error)
}

// BackendError はSource Directoryがエラーステータスを返したことを表す。
// MessageはSource Directoryのメッセージをそのまま保持する。
type BackendError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *BackendError) Error() string {
	return e.Message
}

// Client はSource DirectoryのHTTP/JSONクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしのSource Directoryのルートを指定する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// fetchRequest は POST /fetch のリクエストボディ。
type fetchRequest struct {
	SourceTypeID int      `json:"source_type_id"`
	SourceID     int64    `json:"source_id"`
	Model        string   `json:"model"`
	Recipients   []string `json:"recipients"`
}

// fetchResponse は POST /fetch のレスポンスボディ。
type fetchResponse struct {
	RawContent     string `json:"raw_content"`
	SummaryContent string `json:"summary_content"`
}

// errorResponse はSource Directoryのエラーレスポンスボディ。
type errorResponse struct {
	Message string `json:"message"`
}

// ModelList は GET /models を呼び出す。
func (c *Client) ModelList(ctx context.Context) ([]string, error) {
	var models []string
	if err := c.do(ctx, http.MethodGet, "/models", nil, nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// SourceTypeList は GET /source-types を呼び出す。
func (c *Client) SourceTypeList(ctx context.Context) ([]int, error) {
	var types []int
	if err := c.do(ctx, http.MethodGet, "/source-types", nil, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// SourceList は GET /sources を呼び出す。
func (c *Client) SourceList(ctx context.Context, sourceTypeID *int) ([]model.Source, error) {
	q := url.Values{}
	if sourceTypeID != nil {
		q.Set("source_type", strconv.Itoa(*sourceTypeID))
	}

	var sources []model.Source
	if err := c.do(ctx, http.MethodGet, "/sources", q, nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// FetchUpdates は POST /fetch を呼び出す。
func (c *Client) FetchUpdates(ctx context.Context, sourceTypeID int, sourceID int64, modelName string, recipients []string) (model.UpdateResult, error) {
	if recipients == nil {
		recipients = []string{}
	}
	body := fetchRequest{
		SourceTypeID: sourceTypeID,
		SourceID:     sourceID,
		Model:        modelName,
		Recipients:   recipients,
	}

	var resp fetchResponse
	if err := c.do(ctx, http.MethodPost, "/fetch", nil, body, &resp); err != nil {
		return model.UpdateResult{}, err
	}
	return model.UpdateResult{Raw: resp.RawContent, Summary: resp.SummaryContent}, nil
}

// do はリクエストを送信し、成功時はレスポンスJSONをoutにデコードする。
// 2xx以外のステータスは*BackendErrorとして返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "repodigest/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Source Directoryの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Source Directoryに接続できません: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		backendErr := readBackendError(resp)
		c.logger.Warn("Source Directoryがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", backendErr.Message),
		)
		return backendErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// readBackendError はエラーレスポンスからメッセージを取り出す。
// JSONでない場合は本文をそのまま、本文が空の場合はステータス行を使う。
func readBackendError(resp *http.Response) *BackendError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var er errorResponse
	msg := ""
	if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
		msg = er.Message
	} else if len(bytes.TrimSpace(raw)) > 0 {
		msg = string(bytes.TrimSpace(raw))
	} else {
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &BackendError{StatusCode: resp.StatusCode, Message: msg}
}

// IsBackendError はerrが*BackendErrorかどうかを返す。
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
