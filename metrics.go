package main

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const poolErrorHistorySize = 6

var (
	collectorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "poolapi",
		Subsystem: "collector",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one collection cycle including broadcast.",
		Buckets:   prometheus.DefBuckets,
	})
	collectorCycleFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolapi",
		Subsystem: "collector",
		Name:      "cycle_failures_total",
		Help:      "Collection cycles that did not publish a snapshot.",
	}, []string{"reason"}) // "store", "encode", "config", "timeout"
	snapshotBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "poolapi",
		Subsystem: "snapshot",
		Name:      "bytes",
		Help:      "Size of the current snapshot.",
	}, []string{"form"}) // "raw" or "compressed"
	snapshotMiners = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "poolapi",
		Subsystem: "snapshot",
		Name:      "miners",
		Help:      "Miners with entries in the hashrate window.",
	})
	snapshotPoolHashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "poolapi",
		Subsystem: "snapshot",
		Name:      "pool_hashrate",
		Help:      "Pool hashrate of the current snapshot (H/s).",
	})
	hashrateEntriesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolapi",
		Subsystem: "snapshot",
		Name:      "hashrate_entries_skipped_total",
		Help:      "Malformed hashrate window entries ignored by aggregation.",
	})

	liveSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "poolapi",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Registered long-poll subscribers.",
	}, []string{"kind"}) // "live" or "address"
	broadcastDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolapi",
		Subsystem: "broadcast",
		Name:      "deliveries_total",
		Help:      "Payload deliveries by subscriber kind and result.",
	}, []string{"kind", "result"})

	monitorChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolapi",
		Subsystem: "monitor",
		Name:      "checks_total",
		Help:      "Health checks by module and status.",
	}, []string{"module", "status"})

	rpcCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poolapi",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Daemon and wallet JSON-RPC round-trip time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
	rpcErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolapi",
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "Failed JSON-RPC attempts per endpoint.",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(
		collectorCycleDuration,
		collectorCycleFailures,
		snapshotBytes,
		snapshotMiners,
		snapshotPoolHashrate,
		hashrateEntriesSkipped,
		liveSubscribers,
		broadcastDeliveries,
		monitorChecks,
		rpcCallDuration,
		rpcErrors,
	)
}

type ErrorEvent struct {
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// errorHistory keeps the last few operational errors for the admin
// monitoring view.
type errorHistory struct {
	mu     sync.RWMutex
	events []ErrorEvent
}

func (h *errorHistory) Record(kind, message string, at time.Time) {
	if h == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if message == "" {
		message = "unspecified"
	}
	h.mu.Lock()
	h.events = append(h.events, ErrorEvent{At: at, Type: kind, Message: message})
	if len(h.events) > poolErrorHistorySize {
		h.events = h.events[len(h.events)-poolErrorHistorySize:]
	}
	h.mu.Unlock()
}

func (h *errorHistory) Snapshot() []ErrorEvent {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.events) == 0 {
		return nil
	}
	out := make([]ErrorEvent, len(h.events))
	copy(out, h.events)
	return out
}
