package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "github.com/lib/pq"

	"github.com/hitoshi/repodigest/internal/database"
	"github.com/hitoshi/repodigest/internal/model"
)

// PostgresRunRepoはRunRepositoryインターフェースを満たすことを検証
func TestPostgresRunRepo_ImplementsInterface(t *testing.T) {
	var _ RunRepository = (*PostgresRunRepo)(nil)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{in: -1, want: 1},
		{in: 0, want: 1},
		{in: 20, want: 20},
		{in: MaxListLimit, want: MaxListLimit},
		{in: MaxListLimit + 1, want: MaxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// setupRunRepo はテスト用DBにマイグレーションを適用してリポジトリを返す。
// TEST_DATABASE_URLが未設定、または接続できない場合はスキップする。
func setupRunRepo(t *testing.T) (*PostgresRunRepo, *sql.DB) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE runs`); err != nil {
		t.Fatalf("runsテーブルの初期化に失敗: %v", err)
	}

	return NewPostgresRunRepo(db), db
}

func newRun(sessionID string, finished time.Time) *model.Run {
	return &model.Run{
		SessionID:       sessionID,
		Action:          "fetch",
		Model:           "llama3.2",
		SourceType:      "github",
		SourceName:      "golang/go",
		RecipientsCount: 2,
		StatusKind:      model.StatusSuccess,
		StatusMessage:   "更新を取得しました",
		StartedAt:       finished.Add(-time.Second),
		FinishedAt:      finished,
	}
}

func TestPostgresRunRepo_CreateAndList(t *testing.T) {
	repo, _ := setupRunRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := newRun("s1", base.Add(-time.Hour))
	newer := newRun("s2", base)
	for _, r := range []*model.Run{older, newer} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create に失敗: %v", err)
		}
		if r.ID == 0 {
			t.Error("Create後にIDが採番されていません")
		}
	}

	got, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent に失敗: %v", err)
	}
	want := []model.Run{*newer, *older}
	opts := cmpopts.EquateApproxTime(time.Millisecond)
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("ListRecent mismatch (-want +got):\n%s", diff)
	}

	t.Run("セッションで絞り込める", func(t *testing.T) {
		got, err := repo.ListBySession(ctx, "s1", 10)
		if err != nil {
			t.Fatalf("ListBySession に失敗: %v", err)
		}
		if len(got) != 1 || got[0].ID != older.ID {
			t.Errorf("ListBySession(s1) = %+v, want only run %d", got, older.ID)
		}
	})

	t.Run("件数上限が適用される", func(t *testing.T) {
		got, err := repo.ListRecent(ctx, 1)
		if err != nil {
			t.Fatalf("ListRecent に失敗: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("len = %d, want 1", len(got))
		}
	})
}

func TestPostgresRunRepo_DeleteFinishedBefore(t *testing.T) {
	repo, _ := setupRunRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, r := range []*model.Run{
		newRun("s", now.Add(-48*time.Hour)),
		newRun("s", now.Add(-25*time.Hour)),
		newRun("s", now),
	} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create に失敗: %v", err)
		}
	}

	n, err := repo.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteFinishedBefore に失敗: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	// 冪等
	n, err = repo.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 0 {
		t.Errorf("2回目の削除 = (%d, %v), want (0, nil)", n, err)
	}
}
