// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フェッチオーケストレータやワーカーから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(apiID string)
	RecordFetchFailure(apiID string, reason string)
	RecordNormalizeFailure(apiID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordEventsMerged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess  prometheus.Counter
	fetchFail     *prometheus.CounterVec
	normalizeFail prometheus.Counter
	httpStatus    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	eventsMerged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jikanwari_fetch_success_total",
			Help: "時間割フェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jikanwari_fetch_fail_total",
			Help: "時間割フェッチ失敗のエラー分類別の合計数",
		}, []string{"reason"}),
		normalizeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jikanwari_normalize_fail_total",
			Help: "時間割正規化失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jikanwari_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jikanwari_fetch_latency_seconds",
			Help:    "時間割フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		eventsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jikanwari_events_merged_total",
			Help: "マージで永続化されたイベントの合計数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.normalizeFail,
		c.httpStatus,
		c.fetchLatency,
		c.eventsMerged,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(apiID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗をエラー分類のラベル付きで記録する。
func (c *Collector) RecordFetchFailure(apiID string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordNormalizeFailure は正規化失敗を記録する。
func (c *Collector) RecordNormalizeFailure(apiID string) {
	c.normalizeFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordEventsMerged はマージで永続化されたイベント数を記録する。
func (c *Collector) RecordEventsMerged(count int) {
	c.eventsMerged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターが/metricsにマウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
