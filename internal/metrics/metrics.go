// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ステートマシン・セッション管理・スイーパーから利用する。
type MetricsCollector interface {
	RecordDetection(outcome string)
	RecordTransition(from, to string)
	RecordSweepDuration(duration time.Duration)
	RecordSweepFailure()
	RecordSessionStarted()
	RecordSessionEnded(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	detections    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepFailures prometheus.Counter
	sessionsStart prometheus.Counter
	sessionsEnded *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenced_detections_total",
			Help: "処理した検出報告の合計数（結果アクション別）",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenced_transitions_total",
			Help: "在席状態遷移の合計数（遷移元・遷移先別）",
		}, []string{"from", "to"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "presenced_sweep_duration_seconds",
			Help:    "スイープ1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presenced_sweep_failures_total",
			Help: "スイープ中のデバイス単位の失敗の合計数",
		}),
		sessionsStart: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presenced_sessions_started_total",
			Help: "開始されたセッションの合計数",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenced_sessions_ended_total",
			Help: "終了したセッションの合計数（終了理由別）",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.detections,
		c.transitions,
		c.sweepDuration,
		c.sweepFailures,
		c.sessionsStart,
		c.sessionsEnded,
	)

	return c
}

// RecordDetection は検出報告の処理結果を記録する。
func (c *Collector) RecordDetection(outcome string) {
	c.detections.WithLabelValues(outcome).Inc()
}

// RecordTransition は在席状態遷移を記録する。
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordSweepDuration はスイープの所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// RecordSweepFailure はスイープ中のデバイス単位の失敗を記録する。
func (c *Collector) RecordSweepFailure() {
	c.sweepFailures.Inc()
}

// RecordSessionStarted はセッション開始を記録する。
func (c *Collector) RecordSessionStarted() {
	c.sessionsStart.Inc()
}

// RecordSessionEnded はセッション終了を終了理由付きで記録する。
func (c *Collector) RecordSessionEnded(reason string) {
	c.sessionsEnded.WithLabelValues(reason).Inc()
}

// NopCollector は何も記録しないMetricsCollector実装。
// 計測が不要な構成やテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordDetection(outcome string)             {}
func (NopCollector) RecordTransition(from, to string)           {}
func (NopCollector) RecordSweepDuration(duration time.Duration) {}
func (NopCollector) RecordSweepFailure()                        {}
func (NopCollector) RecordSessionStarted()                      {}
func (NopCollector) RecordSessionEnded(reason string)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
