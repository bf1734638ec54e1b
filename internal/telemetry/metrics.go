package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency by method, route, and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// ProxyForwardsTotal counts reverse-proxy forwards by outcome.
var ProxyForwardsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "proxy",
		Name:      "forwards_total",
		Help:      "Total number of requests forwarded through the reverse proxy, by outcome.",
	},
	[]string{"outcome"},
)

// ProxyForwardDuration records proxy round-trip latency to the child instance.
var ProxyForwardDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "proxy",
		Name:      "forward_duration_seconds",
		Help:      "Reverse proxy forward round-trip duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"instance_id"},
)

// InstanceStateTransitionsTotal counts supervisor state transitions by instance and target state.
var InstanceStateTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "instance",
		Name:      "state_transitions_total",
		Help:      "Total number of instance supervisor state transitions, by target state.",
	},
	[]string{"instance_id", "state"},
)

// InstancesByState is a gauge of instances currently in each lifecycle state.
var InstancesByState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "controlplane",
		Subsystem: "instance",
		Name:      "by_state",
		Help:      "Number of instances currently in each lifecycle state.",
	},
	[]string{"state"},
)

// HealthProbeDuration records the latency of /api/health probes against child processes.
var HealthProbeDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "instance",
		Name:      "health_probe_duration_seconds",
		Help:      "Health probe round-trip duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"instance_id", "result"},
)

// UsageRequestsTotal mirrors InstanceUsageStats.request_count for scraping.
var UsageRequestsTotal = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "controlplane",
		Subsystem: "usage",
		Name:      "requests_total",
		Help:      "Mirrors the request_count bucket of instance usage stats.",
	},
	[]string{"instance_id", "agent_type"},
)

// All returns all control-plane-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		ProxyForwardsTotal,
		ProxyForwardDuration,
		InstanceStateTransitionsTotal,
		InstancesByState,
		HealthProbeDuration,
		UsageRequestsTotal,
	}
}
