// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/repodigest/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// directory.Observer、workflow.Observer、middleware.StatusObserverを満たす。
type Collector struct {
	workflowRuns     *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	directoryLatency *prometheus.HistogramVec
	httpStatus       *prometheus.CounterVec
	httpLatency      prometheus.Histogram
	cleanupDeleted   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodigest_workflow_runs_total",
			Help: "ワークフロー実行数（種別・結果別）",
		}, []string{"action", "outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodigest_workflow_stage_failures_total",
			Help: "ワークフローの段階別エラー数",
		}, []string{"kind"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodigest_mock_fallbacks_total",
			Help: "代替データを使用した回数（カテゴリ別）",
		}, []string{"category"}),
		directoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repodigest_directory_call_seconds",
			Help:    "Source Directory呼び出しのレイテンシ（秒）",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation", "state"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodigest_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repodigest_http_request_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repodigest_cleanup_deleted_total",
			Help: "クリーンアップで削除した件数（対象別）",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.workflowRuns,
		c.stageFailures,
		c.fallbacks,
		c.directoryLatency,
		c.httpStatus,
		c.httpLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordRun はワークフローの実行結果を記録する。
func (c *Collector) RecordRun(action string, outcome model.StatusKind) {
	c.workflowRuns.WithLabelValues(action, string(outcome)).Inc()
}

// RecordStageFailure はワークフローの段階エラーを記録する。
func (c *Collector) RecordStageFailure(kind model.ErrorKind) {
	c.stageFailures.WithLabelValues(string(kind)).Inc()
}

// RecordFallback は代替データの使用を記録する。
func (c *Collector) RecordFallback(category string) {
	c.fallbacks.WithLabelValues(category).Inc()
}

// RecordDirectoryCall はSource Directory呼び出しのレイテンシを記録する。
func (c *Collector) RecordDirectoryCall(operation string, state string, duration time.Duration) {
	c.directoryLatency.WithLabelValues(operation, state).Observe(duration.Seconds())
}

// RecordHTTPRequest はHTTPレスポンスのステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordCleanup はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanup(target string, count int) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
