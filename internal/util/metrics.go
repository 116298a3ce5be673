package util

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksIngested tracks total number of blocks successfully persisted
	BlocksIngested prometheus.Counter

	// TxsIngested tracks total number of transactions successfully persisted
	TxsIngested prometheus.Counter

	// QueueDepth tracks the current depth of each pipeline stage's input channel
	QueueDepth prometheus.GaugeVec

	// StageProcessed tracks per-stage processed message counts
	StageProcessed prometheus.CounterVec

	// RPCErrors tracks total number of RPC errors by error type
	RPCErrors prometheus.CounterVec

	// ReorgsHealed tracks the total number of reorgs healed
	ReorgsHealed prometheus.Counter

	// ReorgDepth observes the depth (in blocks) of each healed reorg
	ReorgDepth prometheus.Histogram

	// CapabilityProbe reports 1/0 for each probed RPC capability
	CapabilityProbe prometheus.GaugeVec

	// BackfillDuration tracks time to backfill a batch of blocks
	BackfillDuration prometheus.Histogram

	logger *slog.Logger
)

// Init initializes all Prometheus metrics. It does not start the metrics
// server; call StartMetricsServer separately once the pipeline is wired up.
func Init() error {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("initializing prometheus metrics")

	BlocksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestor_blocks_ingested_total",
		Help: "Total number of blocks persisted",
	})

	TxsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestor_txs_ingested_total",
		Help: "Total number of transactions persisted",
	})

	QueueDepth = *promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestor_queue_depth",
			Help: "Current depth of a pipeline stage's input channel",
		},
		[]string{"stage"},
	)

	StageProcessed = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_stage_processed_total",
			Help: "Total messages processed by a pipeline stage",
		},
		[]string{"stage"},
	)

	RPCErrors = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_rpc_errors_total",
			Help: "Total number of RPC errors by type",
		},
		[]string{"error_type"},
	)

	ReorgsHealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestor_reorgs_healed_total",
		Help: "Total number of chain reorgs healed",
	})

	ReorgDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestor_reorg_depth_blocks",
		Help:    "Depth in blocks of each healed reorg",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	CapabilityProbe = *promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestor_rpc_capability",
			Help: "1 if the daemon supports the capability, 0 otherwise",
		},
		[]string{"capability"},
	)

	BackfillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestor_backfill_duration_seconds",
		Help:    "Time to backfill a batch of blocks (seconds)",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	logger.Info("prometheus metrics initialized successfully")
	return nil
}

// RecordRPCError increments the RPC errors counter for a specific error type.
// errorType should be one of: network, rate_limit, invalid_param, timeout, shape_mismatch, other.
func RecordRPCError(errorType string) {
	switch errorType {
	case "network", "rate_limit", "invalid_param", "timeout", "shape_mismatch", "other":
		RPCErrors.WithLabelValues(errorType).Inc()
	default:
		if logger != nil {
			logger.Warn("unknown RPC error type", "error_type", errorType)
		}
		RPCErrors.WithLabelValues("other").Inc()
	}
}

// SetQueueDepth sets the current depth gauge for a named pipeline stage.
func SetQueueDepth(stage string, depth int) {
	QueueDepth.WithLabelValues(stage).Set(float64(depth))
}

// RecordStageProcessed increments the processed counter for a named pipeline stage.
func RecordStageProcessed(stage string) {
	StageProcessed.WithLabelValues(stage).Inc()
}

// RecordCapability sets the gauge for a probed capability to 1 (supported) or 0 (not supported).
func RecordCapability(name string, supported bool) {
	v := 0.0
	if supported {
		v = 1.0
	}
	CapabilityProbe.WithLabelValues(name).Set(v)
}

// RecordReorg records a healed reorg of the given depth in blocks.
func RecordReorg(depthBlocks int) {
	ReorgsHealed.Inc()
	ReorgDepth.Observe(float64(depthBlocks))
}

// RecordBackfillDuration records the duration of a backfill batch in seconds.
func RecordBackfillDuration(seconds float64) {
	if seconds < 0 {
		return
	}
	BackfillDuration.Observe(seconds)
}

// GetMetricsPort returns the configured metrics port from environment.
func GetMetricsPort() string {
	port := os.Getenv("METRICS_PORT")
	if port == "" {
		port = "9898"
	}
	return port
}

// GetMetricsEndpoint returns the configured metrics endpoint from environment.
func GetMetricsEndpoint() string {
	endpoint := os.Getenv("METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = "/metrics"
	}
	return endpoint
}

// StartMetricsServer starts an HTTP server serving Prometheus metrics. This call blocks;
// run it in a goroutine from main.
func StartMetricsServer() error {
	port := GetMetricsPort()
	endpoint := GetMetricsEndpoint()

	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.Handler())

	addr := fmt.Sprintf("0.0.0.0:%s", port)
	logger.Info("starting metrics server", "address", addr, "endpoint", endpoint)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server error", "error", err.Error())
		return fmt.Errorf("metrics server error: %w", err)
	}

	return nil
}
