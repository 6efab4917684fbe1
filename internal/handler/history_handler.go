package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
)

const defaultHistoryLimit = 20

// HistoryLister は実行履歴を取得するインターフェース。
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.Run, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Run, error)
}

// HistoryHandler は実行履歴のHTTPハンドラー。
type HistoryHandler struct {
	lister HistoryLister
	logger *slog.Logger
}

// NewHistoryHandler はHistoryHandlerを生成する。listerがnilの場合は履歴無効として扱う。
func NewHistoryHandler(lister HistoryLister, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{lister: lister, logger: logger}
}

type runItem struct {
	ID              int64            `json:"id"`
	Action          string           `json:"action"`
	Model           string           `json:"model"`
	SourceType      string           `json:"source_type"`
	Source          string           `json:"source"`
	RecipientsCount int              `json:"recipients_count"`
	StatusKind      model.StatusKind `json:"status_kind"`
	StatusMessage   string           `json:"status_message"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

type historyResponse struct {
	Runs []runItem `json:"runs"`
}

// List は実行履歴を新しい順に返す。
// scope=all の場合は全セッション、それ以外は自セッションの履歴のみ。
// GET /api/history?limit=20&scope=session
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewHistoryUnavailableError())
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		limit = n
	}

	var runs []model.Run
	var err error
	if r.URL.Query().Get("scope") == "all" {
		runs, err = h.lister.ListRecent(r.Context(), limit)
	} else {
		sess, serr := middleware.SessionFromContext(r.Context())
		if serr != nil {
			writeSessionRequired(w)
			return
		}
		runs, err = h.lister.ListBySession(r.Context(), sess.ID, limit)
	}
	if err != nil {
		h.logger.Error("実行履歴の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	resp := historyResponse{Runs: make([]runItem, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runItem{
			ID:              run.ID,
			Action:          run.Action,
			Model:           run.Model,
			SourceType:      run.SourceType,
			Source:          run.SourceName,
			RecipientsCount: run.RecipientsCount,
			StatusKind:      run.StatusKind,
			StatusMessage:   run.StatusMessage,
			StartedAt:       run.StartedAt,
			FinishedAt:      run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
