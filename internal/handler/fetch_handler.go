package handler

import (
	"context"
	"html"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/repodigest/internal/lookup"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
	"github.com/hitoshi/repodigest/internal/workflow"
)

const (
	wsReadTimeout  = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WorkflowRunner は更新取得ワークフローを実行するインターフェース。
type WorkflowRunner interface {
	RunFetch(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot]
	SendSummary(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot]
}

// MarkdownRenderer はMarkdownを表示用HTMLに変換するインターフェース。
type MarkdownRenderer interface {
	HTML(markdown string) (string, error)
}

// FetchHandler は更新取得・送信・宛先検証のHTTPハンドラー。
type FetchHandler struct {
	workflow      WorkflowRunner
	renderer      MarkdownRenderer
	logger        *slog.Logger
	allowedOrigin string
	upgrader      websocket.Upgrader
}

// NewFetchHandler はFetchHandlerを生成する。
// allowedOriginはWebSocket接続で許可するOrigin。空の場合は同一ホストのみ許可する。
func NewFetchHandler(runner WorkflowRunner, renderer MarkdownRenderer, logger *slog.Logger, allowedOrigin string) *FetchHandler {
	h := &FetchHandler{
		workflow:      runner,
		renderer:      renderer,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// fetchRequest は取得・送信リクエストのボディ。
// recipientsは改行区切りの入力欄の内容をそのまま受け取る。
type fetchRequest struct {
	Model      string `json:"model"`
	SourceType string `json:"source_type"`
	Source     string `json:"source"`
	Recipients string `json:"recipients"`
}

func (req fetchRequest) toWorkflow(sessionID string) workflow.FetchRequest {
	return workflow.FetchRequest{
		SessionID:  sessionID,
		Model:      req.Model,
		SourceType: req.SourceType,
		SourceName: req.Source,
		Recipients: req.Recipients,
	}
}

type statusResponse struct {
	Kind    model.StatusKind `json:"kind"`
	Message string           `json:"message"`
	HTML    string           `json:"html"`
}

type snapshotResponse struct {
	Raw         string         `json:"raw"`
	Summary     string         `json:"summary"`
	RawHTML     string         `json:"raw_html"`
	SummaryHTML string         `json:"summary_html"`
	Status      statusResponse `json:"status"`
	Final       bool           `json:"final"`
}

type runResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
	Final     snapshotResponse   `json:"final"`
}

// Fetch は選択されたソースの更新を取得し、途中経過と最終結果をまとめて返す。
// ワークフローの失敗はErrorステータスとして200で返す。
// POST /api/fetch
func (h *FetchHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	h.serveRun(w, r, h.workflow.RunFetch)
}

// Send は現在の選択値で更新を取得し、入力された宛先へ要約を送信する。
// POST /api/send
func (h *FetchHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.serveRun(w, r, h.workflow.SendSummary)
}

type runFunc func(ctx context.Context, cache *lookup.Cache, req workflow.FetchRequest) iter.Seq[workflow.Snapshot]

func (h *FetchHandler) serveRun(w http.ResponseWriter, r *http.Request, run runFunc) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeSessionRequired(w)
		return
	}

	var req fetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp := runResponse{Snapshots: []snapshotResponse{}}
	for s := range run(r.Context(), sess.Cache, req.toWorkflow(sess.ID)) {
		out := h.toResponse(s)
		resp.Snapshots = append(resp.Snapshots, out)
		if s.Final {
			resp.Final = out
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stream はWebSocket上でワークフローの各スナップショットを逐次送信する。
// クライアントは接続後にリクエストJSONを1つ送り、最終スナップショットの後にサーバーが切断する。
// GET /api/fetch/stream
func (h *FetchHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeSessionRequired(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket接続のアップグレードに失敗しました", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var req fetchRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Warn("WebSocketリクエストの読み取りに失敗しました", slog.String("error", err.Error()))
		h.closeWith(conn, websocket.CloseUnsupportedData, "invalid request")
		return
	}
	conn.SetReadDeadline(time.Time{})

	// 切断を検知したらワークフローを止める
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for s := range h.workflow.RunFetch(ctx, sess.Cache, req.toWorkflow(sess.ID)) {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(h.toResponse(s)); err != nil {
			h.logger.Warn("スナップショットの送信に失敗しました", slog.String("error", err.Error()))
			return
		}
	}
	h.closeWith(conn, websocket.CloseNormalClosure, "")
}

func (h *FetchHandler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

// checkOrigin はWebSocketハンドシェイクのOriginを検証する。
// GETはCSRF検証の対象外のため、ここで許可したOrigin以外を拒否する。
func (h *FetchHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigin != "" && origin == h.allowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

type validateRecipientsRequest struct {
	Recipients string `json:"recipients"`
}

// ValidateRecipients は宛先入力欄を検証し、結果をステータスで返す。
// POST /api/recipients/validate
func (h *FetchHandler) ValidateRecipients(w http.ResponseWriter, r *http.Request) {
	var req validateRecipientsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(workflow.ValidateRecipients(req.Recipients)))
}

func (h *FetchHandler) toResponse(s workflow.Snapshot) snapshotResponse {
	return snapshotResponse{
		Raw:         s.Raw,
		Summary:     s.Summary,
		RawHTML:     h.render(s.Raw),
		SummaryHTML: h.render(s.Summary),
		Status:      toStatusResponse(s.Status),
		Final:       s.Final,
	}
}

// render はMarkdownをHTMLに変換する。変換に失敗した場合はエスケープしたテキストを返す。
func (h *FetchHandler) render(markdown string) string {
	if markdown == "" {
		return ""
	}
	out, err := h.renderer.HTML(markdown)
	if err != nil {
		h.logger.Warn("Markdownの変換に失敗しました", slog.String("error", err.Error()))
		return "<pre>" + html.EscapeString(markdown) + "</pre>"
	}
	return out
}

func toStatusResponse(s model.Status) statusResponse {
	return statusResponse{Kind: s.Kind, Message: s.Message, HTML: s.HTML()}
}

