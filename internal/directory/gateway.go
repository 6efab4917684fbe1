package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hitoshi/repodigest/internal/model"
)

// ErrNotConfigured はSource Directoryが設定されていないことを表す。
var ErrNotConfigured = errors.New("Source Directoryが設定されていません")

// State はSource Directory呼び出し結果の分類。
type State string

const (
	// StateOK は呼び出しが成功したことを表す。
	StateOK State = "ok"
	// StateUnavailable はSource Directoryが利用できない（未設定）ことを表す。
	StateUnavailable State = "unavailable"
	// StateFailed は呼び出しが失敗したことを表す。
	StateFailed State = "failed"
)

// Result はSource Directory呼び出しの結果を表すタグ付きの値。
// 呼び出し元はStateを見てモックへのフォールバックやエラー表示を判断する。
type Result[T any] struct {
	Value T
	State State
	Err   error
}

// OK は呼び出しが成功したかどうかを返す。
func (r Result[T]) OK() bool {
	return r.State == StateOK
}

// Reason は失敗理由のメッセージを返す。成功時は空文字列。
func (r Result[T]) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Observer はSource Directory呼び出しの計測を受け取るインターフェース。
type Observer interface {
	RecordDirectoryCall(operation string, state string, duration time.Duration)
}

// Gateway はDirectoryをラップし、すべての呼び出し結果をResultに変換する。
// dirがnilの場合はすべての呼び出しがStateUnavailableになる。
type Gateway struct {
	dir      Directory
	logger   *slog.Logger
	observer Observer
}

// NewGateway はGatewayを生成する。observerはnilでもよい。
func NewGateway(dir Directory, logger *slog.Logger, observer Observer) *Gateway {
	return &Gateway{
		dir:      dir,
		logger:   logger,
		observer: observer,
	}
}

// Available はSource Directoryが設定されているかどうかを返す。
func (g *Gateway) Available() bool {
	return g.dir != nil
}

// Models はモデル一覧を取得する。
func (g *Gateway) Models(ctx context.Context) Result[[]string] {
	return call(ctx, g, "model_list", func(ctx context.Context) ([]string, error) {
		return g.dir.ModelList(ctx)
	})
}

// SourceTypes はソース種別の数値一覧を取得する。
func (g *Gateway) SourceTypes(ctx context.Context) Result[[]int] {
	return call(ctx, g, "source_type_list", func(ctx context.Context) ([]int, error) {
		return g.dir.SourceTypeList(ctx)
	})
}

// Sources はソース一覧を取得する。sourceTypeがnilの場合は全件。
func (g *Gateway) Sources(ctx context.Context, sourceType *model.SourceType) Result[[]model.Source] {
	var id *int
	if sourceType != nil {
		v := int(*sourceType)
		id = &v
	}
	return call(ctx, g, "source_list", func(ctx context.Context) ([]model.Source, error) {
		return g.dir.SourceList(ctx, id)
	})
}

// Fetch は更新の取得・要約（およびメール送信）を実行する。
func (g *Gateway) Fetch(ctx context.Context, sourceType model.SourceType, sourceID int64, modelName string, recipients []string) Result[model.UpdateResult] {
	return call(ctx, g, "fetch_updates", func(ctx context.Context) (model.UpdateResult, error) {
		return g.dir.FetchUpdates(ctx, int(sourceType), sourceID, modelName, recipients)
	})
}

// call はfnを実行してResultに変換する。
// fn内のpanicは回収してStateFailedとして扱い、スタックをログに残す。
func call[T any](ctx context.Context, g *Gateway, operation string, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	if g.dir == nil {
		return Result[T]{State: StateUnavailable, Err: ErrNotConfigured}
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("Source Directory呼び出し中にpanicが発生しました",
				slog.String("operation", operation),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			res = Result[T]{State: StateFailed, Err: fmt.Errorf("%v", rec)}
		}
		if g.observer != nil {
			g.observer.RecordDirectoryCall(operation, string(res.State), time.Since(start))
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return Result[T]{State: StateFailed, Err: err}
	}
	return Result[T]{Value: v, State: StateOK}
}
