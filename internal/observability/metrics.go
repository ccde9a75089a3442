package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "hello",
			Name:      "handshakes_total",
			Help:      "Resolved HELLO handshakes by direction and verified origin.",
		},
		[]string{"direction", "domain"},
	)
	handshakeTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "hello",
			Name:      "timeouts_total",
			Help:      "Handshake waits that hit their deadline.",
		},
		[]string{"label"},
	)
	bridgeProvisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "bridge",
			Name:      "provisions_total",
			Help:      "Bridge provisioning attempts by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)
	bridgeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosslink",
			Subsystem: "bridge",
			Name:      "provision_duration_seconds",
			Help:      "Bridge provisioning duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"domain", "outcome"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "bridge",
			Name:      "registrations_total",
			Help:      "OPEN_TUNNEL registrations by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)
	registryLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "registry",
			Name:      "links_total",
			Help:      "Registry link calls by outcome.",
		},
		[]string{"outcome"},
	)
	registrySwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "registry",
			Name:      "swept_total",
			Help:      "Named records removed because their window closed.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosslink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosslink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			handshakes,
			handshakeTimeouts,
			bridgeProvisions,
			bridgeDuration,
			registrations,
			registryLinks,
			registrySwept,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordHandshake(direction, domain string) {
	RegisterMetrics()
	handshakes.WithLabelValues(direction, domain).Inc()
}

func RecordHandshakeTimeout(label string) {
	RegisterMetrics()
	handshakeTimeouts.WithLabelValues(label).Inc()
}

func RecordBridgeProvision(domain, outcome string, duration time.Duration) {
	RegisterMetrics()
	bridgeProvisions.WithLabelValues(domain, outcome).Inc()
	bridgeDuration.WithLabelValues(domain, outcome).Observe(duration.Seconds())
}

func RecordRegistration(domain, outcome string) {
	RegisterMetrics()
	registrations.WithLabelValues(domain, outcome).Inc()
}

func RecordRegistryLink(outcome string) {
	RegisterMetrics()
	registryLinks.WithLabelValues(outcome).Inc()
}

func RecordRegistrySwept(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	registrySwept.Add(float64(n))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
