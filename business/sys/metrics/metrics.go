// Package metrics constructs the prometheus collectors for the node and
// provides the values that hand them to the blockchain packages.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powchain"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of handled http requests.",
	}, []string{"method", "status"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of handled http requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
	httpErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Count of handler errors.",
	})
	httpPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "panics_total",
		Help:      "Count of recovered handler panics.",
	})

	miningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mining",
		Name:      "blocks_total",
		Help:      "Count of mining attempts.",
	}, []string{"status"})
	miningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "mining",
		Name:      "duration_seconds",
		Help:      "Time spent searching for a nonce.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"status"})
	miningDifficulty = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mining",
		Name:      "difficulty",
		Help:      "Difficulty of the last mining attempt.",
	})

	replicationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "replication",
		Name:      "blocks_total",
		Help:      "Count of broadcast blocks by outcome.",
	}, []string{"outcome"})
	chainHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "height",
		Help:      "Number of blocks held by a node.",
	}, []string{"node_id"})

	storageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Count of storage operations.",
	}, []string{"operation", "status"})
	storageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Duration of storage operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// =============================================================================

// AddRequest records a completed http request.
func AddRequest(method string, statusCode int, started time.Time) {
	code := strconv.Itoa(statusCode)
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDuration.WithLabelValues(method, code).Observe(time.Since(started).Seconds())
}

// AddError records a handler error.
func AddError() {
	httpErrorsTotal.Inc()
}

// AddPanic records a recovered handler panic.
func AddPanic() {
	httpPanicsTotal.Inc()
}

// =============================================================================

// Node records mining and replication activity. It implements the
// state.Metrics interface.
type Node struct{}

// ObserveMining records a mining attempt at the specified difficulty.
func (Node) ObserveMining(difficulty uint32, err error, started time.Time) {
	s := status(err)
	miningTotal.WithLabelValues(s).Inc()
	miningDuration.WithLabelValues(s).Observe(time.Since(started).Seconds())
	miningDifficulty.Set(float64(difficulty))
}

// ObserveReplication records what happened to a broadcast block.
func (Node) ObserveReplication(outcome string) {
	replicationTotal.WithLabelValues(outcome).Inc()
}

// SetChainHeight records the number of blocks held by the node.
func (Node) SetChainHeight(nodeID string, height uint64) {
	chainHeight.WithLabelValues(nodeID).Set(float64(height))
}

// =============================================================================

// Storage records storage operations. It implements the clickhouse.Metrics
// interface.
type Storage struct{}

// Observe records a single storage operation.
func (Storage) Observe(operation string, err error, started time.Time) {
	s := status(err)
	storageTotal.WithLabelValues(operation, s).Inc()
	storageDuration.WithLabelValues(operation, s).Observe(time.Since(started).Seconds())
}
