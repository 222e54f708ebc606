package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Session handshakes by result.",
		},
		[]string{"result"},
	)
	sessionEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "session",
			Name:      "ends_total",
			Help:      "Established sessions that ended, by reason.",
		},
		[]string{"reason"},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "willow",
			Subsystem: "session",
			Name:      "state",
			Help:      "Consumer-visible connection state (0 disconnected, 1 connecting, 2 connected, 3 closed).",
		},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "bridge",
			Name:      "messages_total",
			Help:      "Messages crossing the bridge by direction.",
		},
		[]string{"direction"},
	)
	sendRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "bridge",
			Name:      "send_rejected_total",
			Help:      "Outbound sends rejected by the frame loop, by reason.",
		},
		[]string{"reason"},
	)
	outboundDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "bridge",
			Name:      "outbound_dropped_total",
			Help:      "Queued outbound messages discarded at session teardown.",
		},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "bridge",
			Name:      "tick_duration_seconds",
			Help:      "Time spent inside one frame-loop tick.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionStarts,
			sessionEnds,
			sessionState,
			messages,
			sendRejected,
			outboundDropped,
			tickDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionStart(result string) {
	RegisterMetrics()
	sessionStarts.WithLabelValues(result).Inc()
}

func RecordSessionEnd(reason string) {
	RegisterMetrics()
	sessionEnds.WithLabelValues(reason).Inc()
}

func SetSessionState(state int) {
	RegisterMetrics()
	sessionState.Set(float64(state))
}

func RecordMessages(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	messages.WithLabelValues(direction).Add(float64(n))
}

func RecordSendRejected(reason string) {
	RegisterMetrics()
	sendRejected.WithLabelValues(reason).Inc()
}

func RecordOutboundDropped(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	outboundDropped.Add(float64(n))
}

func ObserveTick(duration time.Duration) {
	RegisterMetrics()
	tickDuration.Observe(duration.Seconds())
}
