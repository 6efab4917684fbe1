package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker は依存先の疎通を確認するインターフェース。*sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status    string `json:"status"`
	Directory string `json:"directory"`
	History   string `json:"history"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// dbがnilの場合は履歴を無効として扱う。directoryConfiguredがfalseの場合はモックモードを示す。
// GET /health
func NewHealthHandler(db HealthChecker, directoryConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Directory: "mock", History: "disabled"}
		if directoryConfigured {
			resp.Directory = "configured"
		}
		if db == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			resp.Status = "unavailable"
			resp.History = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.History = "ok"
		writeJSON(w, http.StatusOK, resp)
	}
}
