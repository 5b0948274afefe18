package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 予約結果のラベル値
const (
	ResultSuccess      = "success"
	ResultInsufficient = "insufficient_capacity"
	ResultInvalid      = "invalid"
	ResultNotFound     = "not_found"
	ResultTimeout      = "lock_timeout"
	ResultReplayed     = "idempotent_replay"
	ResultError        = "error"
)

// Metrics はアプリケーションのメトリクスを管理する
// nil レシーバでも Observe 系メソッドは何もしない
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 座席確保の試行回数（result）
	ReservationsTotal *prometheus.CounterVec

	// 予約の状態遷移回数（to: confirmed / cancelled, result）
	TransitionsTotal *prometheus.CounterVec

	// ツアーロックの待ち時間（backend, status: acquired / timeout）
	LockWaitDuration *prometheus.HistogramVec

	// 直近に観測したツアーごとの空席数
	AvailableSeats *prometheus.GaugeVec

	// 整合性監査で検出した差分（capacity - available - 有効予約人数）
	InventoryDrift *prometheus.GaugeVec

	// 予約イベントの送信結果（type, result）
	EventsPublishedTotal *prometheus.CounterVec
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
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_reservations_total",
				Help: "Total number of seat reservation attempts by result",
			},
			[]string{"result"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_booking_transitions_total",
				Help: "Total number of booking status transitions by target status and result",
			},
			[]string{"to", "result"},
		),
		LockWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trip_lock_wait_seconds",
				Help:    "Time spent waiting for the per-trip reservation lock",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"backend", "status"},
		),
		AvailableSeats: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trip_available_seats",
				Help: "Last observed available seats per trip",
			},
			[]string{"trip_id"},
		),
		InventoryDrift: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trip_inventory_drift_seats",
				Help: "capacity minus available seats minus seats held by active bookings",
			},
			[]string{"trip_id"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_booking_events_published_total",
				Help: "Total number of booking events handed to the event publisher",
			},
			[]string{"type", "result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.TransitionsTotal,
		m.LockWaitDuration,
		m.AvailableSeats,
		m.InventoryDrift,
		m.EventsPublishedTotal,
	)

	return m
}

// ObserveReservation は座席確保の結果を記録する
func (m *Metrics) ObserveReservation(result string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(result).Inc()
}

// ObserveTransition は状態遷移の結果を記録する
func (m *Metrics) ObserveTransition(to, result string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to, result).Inc()
}

// ObserveLockWait はロック待ち時間を記録する
func (m *Metrics) ObserveLockWait(backend string, acquired bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "acquired"
	if !acquired {
		status = "timeout"
	}
	m.LockWaitDuration.WithLabelValues(backend, status).Observe(d.Seconds())
}

// SetAvailableSeats はツアーの空席数を記録する
func (m *Metrics) SetAvailableSeats(tripID string, n int) {
	if m == nil {
		return
	}
	m.AvailableSeats.WithLabelValues(tripID).Set(float64(n))
}

// SetInventoryDrift は監査で得た差分を記録する
func (m *Metrics) SetInventoryDrift(tripID string, drift int) {
	if m == nil {
		return
	}
	m.InventoryDrift.WithLabelValues(tripID).Set(float64(drift))
}

// ObserveEvent はイベント送信の結果を記録する
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}
