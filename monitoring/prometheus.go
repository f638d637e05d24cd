package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/circlepay/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ledgerPromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	committedOps      *prometheus.CounterVec
	rejectedOps       *prometheus.CounterVec
	opLatency         *prometheus.HistogramVec
	ledgerHeight      prometheus.Gauge
	feeRateBps        prometheus.Gauge
	txLogSize         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newLedgerPromMetrics() *ledgerPromMetrics {
	return &ledgerPromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "circlepay_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the ledger process start",
			},
		),
		committedOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circlepay_committed_ops_total",
				Help: "The total number of committed ledger operations",
			},
			[]string{"op"},
		),
		rejectedOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circlepay_rejected_ops_total",
				Help: "The total number of rejected ledger operations",
			},
			[]string{"op", "reason"},
		),
		opLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "circlepay_op_duration_seconds",
				Help: "Duration in second of a ledger operation including commit",
			},
			[]string{"op"},
		),
		ledgerHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "circlepay_ledger_height",
				Help: "The current ledger height",
			},
		),
		feeRateBps: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "circlepay_fee_rate_bps",
				Help: "The current payment fee rate in basis points",
			},
		),
		txLogSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "circlepay_tx_log_size",
				Help: "Number of entries in the transaction log",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "circlepay_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var (
	initOnce      sync.Once
	ledgerMetrics *ledgerPromMetrics
)

// InitMetrics registers the collectors with the default registry. Safe to call
// more than once; recorders are no-ops until it has run.
func InitMetrics() {
	initOnce.Do(func() {
		ledgerMetrics = newLedgerPromMetrics()
		ledgerMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordCommittedOp(op string, duration time.Duration) {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.committedOps.With(prometheus.Labels{"op": op}).Inc()
	ledgerMetrics.opLatency.With(prometheus.Labels{"op": op}).Observe(duration.Seconds())
}

func RecordRejectedOp(op string, reason string) {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.rejectedOps.With(prometheus.Labels{
		"op":     op,
		"reason": reason,
	}).Inc()
}

func SetLedgerHeight(height uint64) {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.ledgerHeight.Set(float64(height))
}

func SetFeeRate(bps uint16) {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.feeRateBps.Set(float64(bps))
}

func SetTxLogSize(size uint64) {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.txLogSize.Set(float64(size))
}

func IncreasePanicCount() {
	if ledgerMetrics == nil {
		return
	}
	ledgerMetrics.panicCount.Inc()
}
