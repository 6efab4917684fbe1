// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/repodigest/internal/model"
)

// RunRepository は実行履歴の永続化インターフェース。
type RunRepository interface {
	// Create は実行履歴を1件保存し、採番されたIDをrun.IDに設定する。
	Create(ctx context.Context, run *model.Run) error

	// ListRecent は終了時刻の新しい順に最大limit件を取得する。
	ListRecent(ctx context.Context, limit int) ([]model.Run, error)

	// ListBySession は指定セッションの実行履歴を新しい順に最大limit件取得する。
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Run, error)

	// DeleteFinishedBefore はbeforeより前に終了した実行履歴を削除し、削除件数を返す。
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
