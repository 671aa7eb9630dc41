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
// 同期オーケストレーターやクライアント層から利用する。
type MetricsCollector interface {
	RecordSyncSuccess()
	RecordSyncFailure(reason string)
	RecordProviderStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordRecordsUpserted(count int)
	SetConnectionStatus(connected bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess      prometheus.Counter
	syncFail         *prometheus.CounterVec
	providerStatus   *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	recordsUpserted  prometheus.Counter
	connectionStatus prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsync_sync_success_total",
			Help: "同期サイクル成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitsync_sync_fail_total",
			Help: "同期サイクル失敗の合計数（原因別）",
		}, []string{"reason"}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitsync_provider_status_total",
			Help: "プロバイダーAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fitsync_fetch_latency_seconds",
			Help:    "プロバイダーからのメトリクス取得レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		recordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitsync_records_upserted_total",
			Help: "レジャーにアップサートされた活動レコードの合計数",
		}),
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fitsync_connected",
			Help: "プロバイダー接続状態（1=接続中、0=未接続）",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.providerStatus,
		c.fetchLatency,
		c.recordsUpserted,
		c.connectionStatus,
	)

	return c
}

// RecordSyncSuccess は同期サイクル成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期サイクル失敗を原因別に記録する。
func (c *Collector) RecordSyncFailure(reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordProviderStatus はプロバイダーAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderStatus(statusCode int) {
	c.providerStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はメトリクス取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordRecordsUpserted はアップサートされたレコード数を記録する。
func (c *Collector) RecordRecordsUpserted(count int) {
	c.recordsUpserted.Add(float64(count))
}

// SetConnectionStatus は接続状態ゲージを更新する。
func (c *Collector) SetConnectionStatus(connected bool) {
	if connected {
		c.connectionStatus.Set(1)
	} else {
		c.connectionStatus.Set(0)
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
