package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/repodigest/internal/download"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
)

// DownloadHandler は要約をMarkdownファイルとして返すHTTPハンドラー。
type DownloadHandler struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewDownloadHandler はDownloadHandlerを生成する。
// dirは一時ファイルを作成するディレクトリ。
func NewDownloadHandler(dir string, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{dir: dir, logger: logger, now: time.Now}
}

type downloadRequest struct {
	Content    string `json:"content"`
	SourceType string `json:"source_type"`
	Source     string `json:"source"`
}

// Download は要約を一時ファイルに書き出し、添付ファイルとして返してから削除する。
// ファイル名は {source_type}_{owner}_{repo}_{unix}.md。
// POST /api/download
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyContentError())
		return
	}
	sourceType, ok := model.ParseSourceType(req.SourceType)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSourceTypeError(req.SourceType))
		return
	}

	path, err := download.WriteTemp(h.dir, req.Content)
	if err != nil {
		h.logger.Error("一時ファイルの作成に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.logger.Warn("一時ファイルの削除に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("一時ファイルのオープンに失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	defer f.Close()

	now := h.now()
	name := download.FileName(sourceType, req.Source, now)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, now, f)
}
