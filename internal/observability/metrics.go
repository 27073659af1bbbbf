package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/Dan9191/budget-service/internal/models"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	transactionsTotal *prometheus.CounterVec
	balance           prometheus.Gauge
	drift             prometheus.Gauge
	reconcileRuns     *prometheus.CounterVec
	cbState           *prometheus.GaugeVec
}

// NewMetrics registers the service collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger mutations by operation and transaction type.",
		}, []string{"operation", "type"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_balance",
			Help: "Balance after the most recent ledger mutation.",
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_balance_drift",
			Help: "Stored balance minus the balance derived from transactions at the last reconciliation.",
		}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconcile_runs_total",
			Help: "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.transactionsTotal,
		m.balance,
		m.drift,
		m.reconcileRuns,
		m.cbState,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and durations labelled by the matched
// route template, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TransactionRecorded counts a recorded transaction and tracks the new balance.
func (m *Metrics) TransactionRecorded(tx models.Transaction, balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues("record", tx.Type).Inc()
	m.balance.Set(balance.InexactFloat64())
}

// TransactionDeleted counts a deleted transaction and tracks the new balance.
func (m *Metrics) TransactionDeleted(tx models.Transaction, balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues("delete", tx.Type).Inc()
	m.balance.Set(balance.InexactFloat64())
}

// Reconciled records the outcome of a reconciliation.
func (m *Metrics) Reconciled(rec models.Reconciliation) {
	if m == nil {
		return
	}
	m.drift.Set(rec.Drift.InexactFloat64())
	if rec.Consistent {
		m.reconcileRuns.WithLabelValues("consistent").Inc()
	} else {
		m.reconcileRuns.WithLabelValues("drift").Inc()
	}
}

// BreakerStateChanged mirrors a gobreaker state transition into cb_state.
func (m *Metrics) BreakerStateChanged(target string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.cbState.WithLabelValues(target).Set(v)
}
