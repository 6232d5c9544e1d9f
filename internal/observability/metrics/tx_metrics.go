package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/vouchr/pkg/db"
)

const (
	TxOpIssue  = "issue"
	TxOpRedeem = "redeem"
)

const (
	TxReasonDeadlineExceeded     = "deadline_exceeded"
	TxReasonDBLockTimeout        = "db_lock_timeout"
	TxReasonSerializationFailure = "serialization_failure"
	TxReasonUniqueViolation      = "unique_violation"
	TxReasonUnknown              = "unknown"
)

const (
	TxResultCommitted = "committed"
	TxResultConverged = "converged"
	TxResultRejected  = "rejected"
	TxResultFailed    = "failed"
)

// TxMetrics tracks issuance and redemption transaction health. Exposed on
// /metrics through the prometheus default registry.
type TxMetrics struct {
	attempts   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	results    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

var (
	txMetricsOnce sync.Once
	txMetrics     *TxMetrics
)

// Tx returns the process-wide transaction metrics registry.
func Tx() *TxMetrics {
	return TxWithConfig(Config{})
}

// TxWithConfig returns the process-wide registry using config labels.
func TxWithConfig(cfg Config) *TxMetrics {
	txMetricsOnce.Do(func() {
		txMetrics = NewTxMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return txMetrics
}

// ResetTxMetricsForTest resets the process-wide registry for tests.
func ResetTxMetricsForTest() {
	txMetricsOnce = sync.Once{}
	txMetrics = nil
}

func NewTxMetrics(registerer prometheus.Registerer, cfg Config) *TxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "vouchr"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "vouchr_tx_attempts_total",
		Help:        "Transaction attempts by operation, including retries.",
		ConstLabels: constLabels,
	}, []string{"op"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "vouchr_tx_retries_total",
		Help:        "Transaction retries by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"op", "reason"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "vouchr_tx_results_total",
		Help:        "Final transaction results by operation.",
		ConstLabels: constLabels,
	}, []string{"op", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "vouchr_tx_duration_seconds",
		Help:        "End-to-end transaction latency including retries.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		ConstLabels: constLabels,
	}, []string{"op"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "vouchr_delivery_queue_depth",
		Help:        "Voucher deliveries waiting for a worker.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(attempts, retries, results, duration, queueDepth)

	return &TxMetrics{
		attempts:   attempts,
		retries:    retries,
		results:    results,
		duration:   duration,
		queueDepth: queueDepth,
	}
}

// IncAttempt counts one transaction attempt.
func (m *TxMetrics) IncAttempt(op string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op).Inc()
}

// IncRetry counts a retry caused by err.
func (m *TxMetrics) IncRetry(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.retries.WithLabelValues(op, ClassifyTxReason(err)).Inc()
}

// ObserveResult records the final result and latency of an operation.
func (m *TxMetrics) ObserveResult(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetQueueDepth reports the current delivery backlog.
func (m *TxMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// ClassifyTxReason maps storage errors to stable label values.
func ClassifyTxReason(err error) string {
	switch {
	case err == nil:
		return TxReasonUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return TxReasonDeadlineExceeded
	case db.IsTimeoutErr(err):
		return TxReasonDBLockTimeout
	case db.IsSerializationErr(err):
		return TxReasonSerializationFailure
	case db.IsDuplicateKeyErr(err):
		return TxReasonUniqueViolation
	default:
		return TxReasonUnknown
	}
}
