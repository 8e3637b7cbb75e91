package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scaleUpTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "agentpool_autoscaler_scale_up_total",
		Help: "Total number of confirmed scale-up operations.",
	},
)

var scaleDownTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "agentpool_autoscaler_scale_down_total",
		Help: "Total number of confirmed scale-down operations.",
	},
)

var providerErrorsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentpool_autoscaler_provider_errors_total",
		Help: "Total number of capacity provider errors by kind " +
			"(throttled, auth_failure, not_found, transient).",
	},
	[]string{"kind"},
)

var providerRetriesTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "agentpool_autoscaler_provider_retries_total",
		Help: "Total number of retried capacity provider calls.",
	},
)

var observationErrorsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "agentpool_autoscaler_observation_errors_total",
		Help: "Total number of skipped cycles due to cluster observation errors.",
	},
)

var poolSize = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "agentpool_autoscaler_pool_size",
		Help: "Last confirmed compute pool size.",
	},
)

var nodeCount = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "agentpool_autoscaler_nodes",
		Help: "Number of nodes in the last cluster snapshot.",
	},
)

var pendingPods = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "agentpool_autoscaler_pending_pods",
		Help: "Number of unschedulable pending pods in the last cluster snapshot.",
	},
)

var scalingHalted = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "agentpool_autoscaler_scaling_halted",
		Help: "1 when scaling is halted after a fatal provider error, 0 otherwise.",
	},
)

var cycleDuration = promauto.With(prometheus.DefaultRegisterer).NewHistogram(
	prometheus.HistogramOpts{
		Name:    "agentpool_autoscaler_cycle_duration_seconds",
		Help:    "Duration of one reconciliation cycle.",
		Buckets: prometheus.DefBuckets,
	},
)

// RecordScaleUp increments the scale-up counter after a confirmed operation.
func RecordScaleUp() {
	scaleUpTotal.Inc()
}

// RecordScaleDown increments the scale-down counter after a confirmed operation.
func RecordScaleDown() {
	scaleDownTotal.Inc()
}

// RecordProviderError counts a provider error by taxonomy kind.
func RecordProviderError(kind string) {
	providerErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordProviderRetry counts a retried provider call.
func RecordProviderRetry() {
	providerRetriesTotal.Inc()
}

// RecordObservationError counts a cycle skipped because the cluster could not
// be observed.
func RecordObservationError() {
	observationErrorsTotal.Inc()
}

// SetPoolSize records the last confirmed pool size.
func SetPoolSize(size int) {
	poolSize.Set(float64(size))
}

// SetNodeCount records the node count of the last snapshot.
func SetNodeCount(count int) {
	nodeCount.Set(float64(count))
}

// SetPendingPods records the unschedulable pod count of the last snapshot.
func SetPendingPods(count int) {
	pendingPods.Set(float64(count))
}

// SetScalingHalted flips the halted gauge.
func SetScalingHalted(halted bool) {
	if halted {
		scalingHalted.Set(1)

		return
	}

	scalingHalted.Set(0)
}

// ObserveCycleDuration records how long one reconciliation cycle took.
func ObserveCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}
