package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk engine fulfillment.
// Semua method aman dipanggil pada receiver nil.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockPostings     *prometheus.CounterVec
	negativeRejected  prometheus.Counter
	alertsCreated     *prometheus.CounterVec
	dispatches        *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	pickListsCreated  prometheus.Counter
	pickListsComplete prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_postings_total",
		Help: "Stock movements committed to the ledger by reason.",
	}, []string{"reason"})
	negative := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_inventory_negative_stock_rejections_total",
		Help: "Postings rejected because stock would go negative.",
	})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_alerts_created_total",
		Help: "Inventory alerts created by stock level.",
	}, []string{"level"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_alert_dispatch_total",
		Help: "Alert side effects handed off, by kind and outcome.",
	}, []string{"kind", "status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_fulfillment_transitions_total",
		Help: "Fulfillment status transitions by target status.",
	}, []string{"status"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_picklists_created_total",
		Help: "Pick lists aggregated.",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_picklists_completed_total",
		Help: "Pick lists completed.",
	})
	registry.MustRegister(requests, duration, postings, negative, alerts, dispatches, transitions, created, completed)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		stockPostings:     postings,
		negativeRejected:  negative,
		alertsCreated:     alerts,
		dispatches:        dispatches,
		transitions:       transitions,
		pickListsCreated:  created,
		pickListsComplete: completed,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// StockPosted mencatat pergerakan stok yang berhasil di-commit.
func (m *Metrics) StockPosted(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.stockPostings.WithLabelValues(reason).Add(float64(count))
}

// NegativeStockRejected mencatat posting yang ditolak.
func (m *Metrics) NegativeStockRejected() {
	if m == nil {
		return
	}
	m.negativeRejected.Inc()
}

// AlertCreated mencatat alert baru per level stok.
func (m *Metrics) AlertCreated(level string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(level).Inc()
}

// Dispatched mencatat side effect yang berhasil diserahkan.
func (m *Metrics) Dispatched(kind string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind, "success").Inc()
}

// DispatchFailed mencatat side effect yang gagal diserahkan.
func (m *Metrics) DispatchFailed(kind string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind, "failure").Inc()
}

// Transition mencatat perpindahan status fulfillment.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PickListCreated() {
	if m == nil {
		return
	}
	m.pickListsCreated.Inc()
}

func (m *Metrics) PickListCompleted() {
	if m == nil {
		return
	}
	m.pickListsComplete.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
