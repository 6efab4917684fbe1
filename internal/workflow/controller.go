// Package workflow は更新取得ワークフロー（選択値の検証、ソースIDの解決、
// Source Directoryの呼び出し、ステータス列の生成）を実装する。
//
// ワークフロー内で発生したエラーはすべてErrorステータスに変換され、
// 呼び出し元へは伝播しない。1回の実行は必ずちょうど1つの最終スナップショットで終わる。
package workflow

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hitoshi/repodigest/internal/directory"
	"github.com/hitoshi/repodigest/internal/lookup"
	"github.com/hitoshi/repodigest/internal/mock"
	"github.com/hitoshi/repodigest/internal/model"
	"github.com/hitoshi/repodigest/internal/recipient"
)

// 実行種別。履歴とメトリクスのラベルに使う。
const (
	ActionFetch = "fetch"
	ActionSend  = "send"
)

// historyTimeout は実行履歴の保存にかける最大時間。
const historyTimeout = 5 * time.Second

// Observer はワークフローの計測を受け取るインターフェース。
type Observer interface {
	RecordFallback(category string)
	RecordRun(action string, outcome model.StatusKind)
	RecordStageFailure(kind model.ErrorKind)
}

// HistoryStore は実行履歴を保存するインターフェース。
type HistoryStore interface {
	Create(ctx context.Context, run *model.Run) error
}

// FetchRequest はユーザーの現在の選択値。
type FetchRequest struct {
	SessionID  string
	Model      string
	SourceType string
	SourceName string
	Recipients string // 改行区切り
}

// Snapshot はワークフローの途中または最終の状態。
// 途中のスナップショットはコンテンツを持たない。
type Snapshot struct {
	Raw     string
	Summary string
	Status  model.Status
	Final   bool
}

// ControllerDeps はControllerの依存関係を保持する。
type ControllerDeps struct {
	Gateway    *directory.Gateway
	Logger     *slog.Logger
	StageDelay time.Duration
	Observer   Observer     // nilの場合は計測しない
	History    HistoryStore // nilの場合は履歴を保存しない
}

// Controller は更新取得ワークフローを実行する。
type Controller struct {
	gateway    *directory.Gateway
	logger     *slog.Logger
	stageDelay time.Duration
	observer   Observer
	history    HistoryStore
	now        func() time.Time
}

// NewController はControllerを生成する。
func NewController(deps ControllerDeps) *Controller {
	return &Controller{
		gateway:    deps.Gateway,
		logger:     deps.Logger,
		stageDelay: deps.StageDelay,
		observer:   deps.Observer,
		history:    deps.History,
		now:        time.Now,
	}
}

// RunFetch は選択されたソースの更新を取得するワークフローを返す。
// シーケンスを最後まで消費すると、最後の要素は必ずFinal=trueになる。
// cacheはセッションが所有するLookup Cache。
func (c *Controller) RunFetch(ctx context.Context, cache *lookup.Cache, req FetchRequest) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		c.run(ctx, cache, req, ActionFetch, yield)
	}
}

// SendSummary は現在の選択値で更新を取得し、入力された宛先へ要約を送信する。
// 送信先が1件もない場合は検証エラーで終了する。
func (c *Controller) SendSummary(ctx context.Context, cache *lookup.Cache, req FetchRequest) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		c.run(ctx, cache, req, ActionSend, yield)
	}
}

// ValidateRecipients は送信先フィールドを検証し、結果をステータスで返す。
// 無効なアドレスは最初の1件で止めずにすべて列挙する。
func ValidateRecipients(field string) model.Status {
	addrs := recipient.Parse(field)
	if len(addrs) == 0 {
		return model.Failure("メールアドレスを入力してください")
	}
	if invalid := recipient.Invalid(addrs); len(invalid) > 0 {
		return model.Failure("%s", model.NewInvalidRecipientsError(invalid).Message)
	}
	return model.Success("%d件のメールアドレスはすべて有効です", len(addrs))
}

// Collect はシーケンスをすべて消費し、全スナップショットと最終スナップショットを返す。
func Collect(seq iter.Seq[Snapshot]) ([]Snapshot, Snapshot) {
	var all []Snapshot
	var final Snapshot
	for s := range seq {
		all = append(all, s)
		if s.Final {
			final = s
		}
	}
	return all, final
}

// emitter はyieldをラップし、消費側の停止と最終スナップショットの送出を管理する。
type emitter struct {
	yield    func(Snapshot) bool
	done     bool
	yielding bool
}

func (e *emitter) emit(s Snapshot) bool {
	if e.done {
		return false
	}
	e.yielding = true
	ok := e.yield(s)
	e.yielding = false
	if !ok || s.Final {
		e.done = true
	}
	return ok
}

func (c *Controller) run(ctx context.Context, cache *lookup.Cache, req FetchRequest, action string, yield func(Snapshot) bool) {
	started := c.now()
	e := &emitter{yield: yield}

	final := c.execute(ctx, cache, req, action, e)
	if e.done {
		// 消費側が途中で停止した
		return
	}
	final.Final = true

	c.finish(ctx, req, action, final, started)
	e.emit(final)
}

// execute は各段階を順に実行し、最終スナップショットを返す。
// 途中で消費側が停止した場合は戻り値を使わない。
func (c *Controller) execute(ctx context.Context, cache *lookup.Cache, req FetchRequest, action string, e *emitter) (final Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			if e.yielding {
				panic(rec)
			}
			c.logger.Error("ワークフロー実行中にpanicが発生しました",
				slog.String("action", action),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			final = Snapshot{Status: model.Failure("内部エラーが発生しました: %v", rec)}
		}
	}()

	step := func(status model.Status) (Snapshot, bool) {
		if !e.emit(Snapshot{Status: status}) {
			return Snapshot{}, false
		}
		if err := c.pause(ctx); err != nil {
			return Snapshot{Status: model.Failure("処理がキャンセルされました")}, false
		}
		return Snapshot{}, true
	}

	if s, ok := step(model.Info("初期化しています...")); !ok {
		return s
	}

	modelName := strings.TrimSpace(req.Model)
	sourceTypeName := strings.TrimSpace(req.SourceType)
	sourceName := strings.TrimSpace(req.SourceName)
	if missing := missingSelections(modelName, sourceTypeName, sourceName); len(missing) > 0 {
		return c.fail(model.NewMissingSelectionError(missing))
	}

	if s, ok := step(model.Info("更新の取得を準備しています...")); !ok {
		return s
	}
	sourceType, ok := model.ParseSourceType(sourceTypeName)
	if !ok {
		return c.fail(model.NewUnknownSourceTypeError(sourceTypeName))
	}

	if s, ok := step(model.Info("ソースIDを検索しています...")); !ok {
		return s
	}
	sourceID, found, err := cache.ResolveOrRefresh(ctx, sourceName, &sourceType)
	if err != nil {
		c.logger.Warn("ソース一覧の再取得に失敗しました",
			slog.String("source", sourceName),
			slog.String("error", err.Error()),
		)
		reason := err.Error()
		var lerr *ListingError
		if errors.As(err, &lerr) {
			reason = lerr.Reason
		}
		return c.fail(model.NewSourceListError(reason))
	}
	if !found {
		return c.fail(model.NewSourceNotFoundError(sourceName))
	}

	recipients := recipient.Parse(req.Recipients)
	if invalid := recipient.Invalid(recipients); len(invalid) > 0 {
		return c.fail(model.NewInvalidRecipientsError(invalid))
	}
	if action == ActionSend && len(recipients) == 0 {
		return c.fail(&model.WorkflowError{
			Kind:    model.ErrKindValidation,
			Message: "送信先のメールアドレスを入力してください",
		})
	}
	if len(recipients) > 0 {
		if s, ok := step(model.Info("更新を送信します: %s", strings.Join(recipients, ", "))); !ok {
			return s
		}
	}

	if s, ok := step(model.Info("「%s」の更新を取得しています...", sourceName)); !ok {
		return s
	}

	res := c.gateway.Fetch(ctx, sourceType, sourceID, modelName, recipients)
	switch res.State {
	case directory.StateOK:
		return Snapshot{
			Raw:     res.Value.Raw,
			Summary: res.Value.Summary,
			Status:  successStatus(action, len(recipients)),
		}
	case directory.StateUnavailable:
		if c.observer != nil {
			c.observer.RecordFallback(CategoryFetch)
		}
		sample := mock.Update()
		return Snapshot{
			Raw:     sample.Raw,
			Summary: sample.Summary,
			Status:  model.Success("Source Directoryが未設定のため、サンプルデータを表示しています"),
		}
	default:
		return c.fail(model.NewBackendError(res.Reason()))
	}
}

// pause は段階間の表示用の待機を行う。コンテキストのキャンセルで中断する。
func (c *Controller) pause(ctx context.Context) error {
	if c.stageDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.stageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) fail(werr *model.WorkflowError) Snapshot {
	if c.observer != nil {
		c.observer.RecordStageFailure(werr.Kind)
	}
	return Snapshot{Status: model.Failure("%s", werr.Message)}
}

// finish は実行結果をログ・メトリクス・履歴に記録する。
func (c *Controller) finish(ctx context.Context, req FetchRequest, action string, final Snapshot, started time.Time) {
	finished := c.now()
	c.logger.Info("workflow_finished",
		slog.String("action", action),
		slog.String("session_id", req.SessionID),
		slog.String("source", req.SourceName),
		slog.String("status", string(final.Status.Kind)),
		slog.Int64("duration_ms", finished.Sub(started).Milliseconds()),
	)
	if c.observer != nil {
		c.observer.RecordRun(action, final.Status.Kind)
	}
	if c.history == nil {
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	run := &model.Run{
		SessionID:       req.SessionID,
		Action:          action,
		Model:           strings.TrimSpace(req.Model),
		SourceType:      strings.TrimSpace(req.SourceType),
		SourceName:      strings.TrimSpace(req.SourceName),
		RecipientsCount: len(recipient.Parse(req.Recipients)),
		StatusKind:      final.Status.Kind,
		StatusMessage:   final.Status.Message,
		StartedAt:       started,
		FinishedAt:      finished,
	}
	if err := c.history.Create(hctx, run); err != nil {
		c.logger.Error("実行履歴の保存に失敗しました",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

func missingSelections(modelName, sourceType, sourceName string) []string {
	var missing []string
	if modelName == "" {
		missing = append(missing, "モデル")
	}
	if sourceType == "" {
		missing = append(missing, "ソース種別")
	}
	if sourceName == "" {
		missing = append(missing, "ソース")
	}
	return missing
}

func successStatus(action string, recipients int) model.Status {
	if action == ActionSend {
		return model.Success("更新を取得し、%d件の宛先に要約を送信しました", recipients)
	}
	if recipients > 0 {
		return model.Success("更新を取得しました（%d件の宛先に送信しました）", recipients)
	}
	return model.Success("更新を取得しました")
}
