package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 予約結果のラベル値
const (
	ResultSuccess    = "success"
	ResultConflict   = "conflict"
	ResultBadRequest = "bad_request"
	ResultNotFound   = "not_found"
	ResultError      = "error"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約作成の総数（result: success, conflict, bad_request, not_found, error）
	BookingsTotal *prometheus.CounterVec

	// キャンセルによる座席解放の総数（result: success, conflict, error）
	SeatReleasesTotal *prometheus.CounterVec

	// 一時的な競合によるトランザクション再実行の回数
	TransactionRetriesTotal prometheus.Counter

	// 直近の監査で検出した台帳不整合のクラス数
	LedgerViolations prometheus.Gauge
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking attempts",
			},
			[]string{"result"},
		),
		SeatReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_releases_total",
				Help: "Total number of seat releases caused by cancellation",
			},
			[]string{"result"},
		),
		TransactionRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transaction_retries_total",
				Help: "Total number of transaction retries on serialization failure or deadlock",
			},
		),
		LedgerViolations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_violations",
				Help: "Number of seat classes violating the ledger invariants in the last audit",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingsTotal,
		m.SeatReleasesTotal,
		m.TransactionRetriesTotal,
		m.LedgerViolations,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
