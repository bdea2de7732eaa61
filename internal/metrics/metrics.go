package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline execution
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galaxy_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"workflow", "stage", "status"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galaxy_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"workflow", "status"},
	)

	RunsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "galaxy_runs_in_flight",
			Help: "Pipeline runs currently executing",
		},
		[]string{"workflow"},
	)

	// Language-model gateway
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galaxy_gateway_requests_total",
			Help: "Total language-model gateway calls by operation, model and outcome",
		},
		[]string{"operation", "model", "status"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galaxy_gateway_duration_seconds",
			Help:    "Latency of language-model gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "model"},
	)

	// Reply quality
	GroundingFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galaxy_grounding_fallbacks_total",
			Help: "Drafted replies replaced by the fallback message after failing grounding checks",
		},
	)

	DiscoveryRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galaxy_discovery_rejections_total",
			Help: "Content selections discarded because they did not match any supplied feed item",
		},
	)
)

// RecordStage observes a finished stage.
func RecordStage(workflow, stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(workflow, stage, status).Observe(d.Seconds())
}

// RecordGateway counts a gateway call and its latency.
func RecordGateway(operation, model string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	GatewayRequests.WithLabelValues(operation, model, status).Inc()
	GatewayDuration.WithLabelValues(operation, model).Observe(d.Seconds())
}
