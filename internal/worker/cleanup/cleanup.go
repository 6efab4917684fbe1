// Package cleanup は不要データの定期削除ジョブを提供する。
// 保持期間を超過した実行履歴と、ダウンロード用に作成されたまま残った
// 一時ファイルを削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/repodigest/internal/download"
)

// 削除対象。メトリクスのラベルに使う。
const (
	TargetRuns      = "runs"
	TargetDownloads = "downloads"
)

// RunPruner は古い実行履歴を削除するインターフェース。
type RunPruner interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Recorder は削除件数を受け取るインターフェース。
type Recorder interface {
	RecordCleanup(target string, count int)
}

// CleanupJob は保持期間を超過したデータの削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	runs     RunPruner // nilの場合は実行履歴を扱わない
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	RetentionDays int           // 実行履歴の保持日数（デフォルト: 30）
	DownloadDir   string        // 空の場合は一時ファイルを扱わない
	DownloadTTL   time.Duration // 一時ファイルの保持時間（デフォルト: 1時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(runs RunPruner, downloadDir string, logger *slog.Logger, recorder Recorder) *CleanupJob {
	return &CleanupJob{
		runs:          runs,
		logger:        logger,
		recorder:      recorder,
		now:           time.Now,
		RetentionDays: 30,
		DownloadDir:   downloadDir,
		DownloadTTL:   time.Hour,
	}
}

// Run は実行履歴と一時ファイルの削除を順に行う。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	var errs []error
	if err := j.pruneRuns(ctx, start); err != nil {
		errs = append(errs, err)
	}
	if err := j.pruneDownloads(start); err != nil {
		errs = append(errs, err)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int("retention_days", j.RetentionDays),
		slog.Int("errors", len(errs)),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return errors.Join(errs...)
}

func (j *CleanupJob) pruneRuns(ctx context.Context, now time.Time) error {
	if j.runs == nil {
		return nil
	}

	before := now.AddDate(0, 0, -j.RetentionDays)
	deleted, err := j.runs.DeleteFinishedBefore(ctx, before)
	if err != nil {
		j.logger.Error("実行履歴のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("実行履歴のクリーンアップに失敗: %w", err)
	}

	j.logger.Info("実行履歴を削除しました",
		slog.String("target", TargetRuns),
		slog.Int64("deleted_count", deleted),
		slog.Time("before", before),
	)
	j.record(TargetRuns, int(deleted))
	return nil
}

func (j *CleanupJob) pruneDownloads(now time.Time) error {
	if j.DownloadDir == "" {
		return nil
	}

	deleted, err := download.RemoveStale(j.DownloadDir, now.Add(-j.DownloadTTL))
	if err != nil {
		j.logger.Error("一時ファイルのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.String("dir", j.DownloadDir),
		)
		return fmt.Errorf("一時ファイルのクリーンアップに失敗: %w", err)
	}

	j.logger.Info("一時ファイルを削除しました",
		slog.String("target", TargetDownloads),
		slog.Int("deleted_count", deleted),
	)
	j.record(TargetDownloads, deleted)
	return nil
}

func (j *CleanupJob) record(target string, count int) {
	if j.recorder != nil {
		j.recorder.RecordCleanup(target, count)
	}
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行する。
// ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
