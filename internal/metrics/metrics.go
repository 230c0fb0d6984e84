// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 入札結果のラベル値
const (
	BidResultPlaced    = "placed"
	BidResultDuplicate = "duplicate"
	BidResultFailed    = "failed"
)

// Recorder はメトリクス収集のインターフェース。
// セッション管理、入札キャッシュ、APIクライアントから利用する。
type Recorder interface {
	RecordAuthOperation(op string, err error)
	RecordSessionTransition(state string)
	RecordBidPlacement(result string)
	RecordSummaryRefresh(success bool)
	SetCachedBidCount(count int)
	RecordAPIRequest(endpoint string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOps        *prometheus.CounterVec
	sessionChanges *prometheus.CounterVec
	bidPlacements  *prometheus.CounterVec
	summaryRefresh *prometheus.CounterVec
	cachedBids     prometheus.Gauge
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbid_auth_operations_total",
			Help: "認証操作の合計数（操作・結果別）",
		}, []string{"op", "result"}),
		sessionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbid_session_transitions_total",
			Help: "セッション状態遷移の合計数",
		}, []string{"state"}),
		bidPlacements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbid_bid_placements_total",
			Help: "入札リクエストの合計数（結果別）",
		}, []string{"result"}),
		summaryRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbid_bid_summary_refresh_total",
			Help: "入札サマリー再取得の合計数（結果別）",
		}, []string{"result"}),
		cachedBids: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskbid_cached_bid_count",
			Help: "キャッシュ中の入札済みタスク数",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbid_api_requests_total",
			Help: "マーケットプレイスAPIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskbid_api_latency_seconds",
			Help:    "マーケットプレイスAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.authOps,
		c.sessionChanges,
		c.bidPlacements,
		c.summaryRefresh,
		c.cachedBids,
		c.apiRequests,
		c.apiLatency,
	)

	return c
}

// RecordAuthOperation は認証操作の結果を記録する。
func (c *Collector) RecordAuthOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.authOps.WithLabelValues(op, result).Inc()
}

// RecordSessionTransition はセッション状態の遷移を記録する。
func (c *Collector) RecordSessionTransition(state string) {
	c.sessionChanges.WithLabelValues(state).Inc()
}

// RecordBidPlacement は入札結果を記録する。
func (c *Collector) RecordBidPlacement(result string) {
	c.bidPlacements.WithLabelValues(result).Inc()
}

// RecordSummaryRefresh は入札サマリー再取得の結果を記録する。
func (c *Collector) RecordSummaryRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.summaryRefresh.WithLabelValues(result).Inc()
}

// SetCachedBidCount はキャッシュ中の入札数を設定する。
func (c *Collector) SetCachedBidCount(count int) {
	c.cachedBids.Set(float64(count))
}

// RecordAPIRequest はAPIリクエストのステータスとレイテンシを記録する。
// statusCodeが0の場合はレスポンスを受け取れなかったことを示す。
func (c *Collector) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAuthOperation(string, error)           {}
func (Nop) RecordSessionTransition(string)              {}
func (Nop) RecordBidPlacement(string)                   {}
func (Nop) RecordSummaryRefresh(bool)                   {}
func (Nop) SetCachedBidCount(int)                       {}
func (Nop) RecordAPIRequest(string, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
