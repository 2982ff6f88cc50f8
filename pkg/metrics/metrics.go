package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sidecus/raftleader/pkg/raft"
)

// Collector exposes Leader-core activity as prometheus metrics. It
// subscribes to the two observer hooks the Leader emits (§9 "Observer
// events") rather than polling, so counters only move on genuine
// replication activity.
type Collector struct {
	heartbeatsSent   prometheus.Counter
	entriesAppended  *prometheus.CounterVec
	appendBatchSize  *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics against reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raftleader",
			Subsystem: "leader",
			Name:      "heartbeats_sent_total",
			Help:      "Number of heartbeat rounds fanned out to all active voters.",
		}),
		entriesAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raftleader",
			Subsystem: "leader",
			Name:      "append_entries_sent_total",
			Help:      "Number of AppendEntries requests sent per peer.",
		}, []string{"peer"}),
		appendBatchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raftleader",
			Subsystem: "leader",
			Name:      "append_entries_batch_size",
			Help:      "Number of log entries carried per AppendEntries request.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"peer"}),
	}
}

// Attach subscribes the collector to l's observer hooks.
func (c *Collector) Attach(l *raft.Leader) {
	l.OnHeartbeatSent(func() {
		c.heartbeatsSent.Inc()
	})
	l.OnEntriesAppended(func(peer string, entries []raft.LogEntry) {
		c.entriesAppended.WithLabelValues(peer).Inc()
		c.appendBatchSize.WithLabelValues(peer).Observe(float64(len(entries)))
	})
}
