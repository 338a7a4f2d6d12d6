// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Current number of open WebSocket connections",
	}, []string{"namespace"})

	onlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "online_users",
		Help:      "Current number of identities in the presence registry",
	})

	terminalSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "terminal_sessions",
		Help:      "Current number of live shared terminal sessions",
	})

	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Inbound events handled, by name",
	}, []string{"event"})

	aiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_requests_total",
		Help:      "AI requests by intent and outcome",
	}, []string{"intent", "outcome"})
)

// Middleware records request metrics. The path label is the matched route,
// so path parameters do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// ConnectionOpened counts an open WebSocket connection in namespace ns.
func ConnectionOpened(ns string) { connections.WithLabelValues(ns).Inc() }

// ConnectionClosed releases a connection counted by ConnectionOpened.
func ConnectionClosed(ns string) { connections.WithLabelValues(ns).Dec() }

// SetOnlineUsers records the size of the presence registry.
func SetOnlineUsers(n int) { onlineUsers.Set(float64(n)) }

// SetTerminalSessions records the number of live terminal sessions.
func SetTerminalSessions(n int) { terminalSessions.Set(float64(n)) }

// Event counts one inbound event.
func Event(name string) { events.WithLabelValues(name).Inc() }

// AIRequest counts one finished AI request.
func AIRequest(intent, outcome string) { aiRequests.WithLabelValues(intent, outcome).Inc() }
