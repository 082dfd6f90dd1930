package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ShardsAssembled counts shards turned into matrices, by split
var ShardsAssembled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tabtrain_shards_assembled_total",
		Help: "Total number of shards assembled into feature matrices",
	},
	[]string{"split"},
)

// RowsEmitted counts matrix rows produced, by split
var RowsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tabtrain_rows_emitted_total",
		Help: "Total number of feature matrix rows emitted",
	},
	[]string{"split"},
)

// AssembleErrors counts failed shard assemblies, by split
var AssembleErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tabtrain_assemble_errors_total",
		Help: "Total number of shard assembly failures",
	},
	[]string{"split"},
)

// AssembleLatency records latency distribution for per-shard assembly
var AssembleLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "tabtrain_shard_assemble_latency_seconds",
		Help:    "Latency in seconds to assemble individual shards",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(ShardsAssembled, RowsEmitted, AssembleErrors)
	prometheus.MustRegister(AssembleLatency)
}
