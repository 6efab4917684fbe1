package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/repodigest/internal/model"
)

// MaxListLimit は一覧取得で返す件数の上限。
const MaxListLimit = 200

const selectRunColumns = `SELECT id, session_id, action, model, source_type, source_name,
        recipients_count, status_kind, status_message, started_at, finished_at
 FROM runs`

// PostgresRunRepo はPostgreSQLを使用した実行履歴リポジトリ。
type PostgresRunRepo struct {
	db *sql.DB
}

// NewPostgresRunRepo はPostgresRunRepoを生成する。
func NewPostgresRunRepo(db *sql.DB) *PostgresRunRepo {
	return &PostgresRunRepo{db: db}
}

// Create は実行履歴を1件保存する。
func (r *PostgresRunRepo) Create(ctx context.Context, run *model.Run) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO runs (session_id, action, model, source_type, source_name,
		                   recipients_count, status_kind, status_message, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		run.SessionID, run.Action, run.Model, run.SourceType, run.SourceName,
		run.RecipientsCount, string(run.StatusKind), run.StatusMessage,
		run.StartedAt, run.FinishedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("実行履歴の作成に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は終了時刻の新しい順に最大limit件を取得する。
func (r *PostgresRunRepo) ListRecent(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRunColumns+` ORDER BY finished_at DESC, id DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("実行履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListBySession は指定セッションの実行履歴を新しい順に最大limit件取得する。
func (r *PostgresRunRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRunColumns+` WHERE session_id = $1 ORDER BY finished_at DESC, id DESC LIMIT $2`,
		sessionID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("セッションの実行履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// DeleteFinishedBefore はbeforeより前に終了した実行履歴を削除する。
func (r *PostgresRunRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("古い実行履歴の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func scanRuns(rows *sql.Rows) ([]model.Run, error) {
	runs := []model.Run{}
	for rows.Next() {
		var run model.Run
		var kind string
		if err := rows.Scan(
			&run.ID, &run.SessionID, &run.Action, &run.Model, &run.SourceType, &run.SourceName,
			&run.RecipientsCount, &kind, &run.StatusMessage, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("実行履歴の読み取りに失敗しました: %w", err)
		}
		run.StatusKind = model.StatusKind(kind)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("実行履歴の走査に失敗しました: %w", err)
	}
	return runs, nil
}

// clampLimit はlimitを1からMaxListLimitの範囲に収める。
func clampLimit(limit int) int {
	return min(max(limit, 1), MaxListLimit)
}
