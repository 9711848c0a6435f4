package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that hit no registered route, so scanners
// cannot grow the label set.
const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// Replies stream for as long as the provider talks, so the buckets reach
	// past the default 10s.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})

	httpStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_streams_inflight",
		Help: "Current number of open server-sent event streams.",
	})

	httpStreamDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_stream_duration_seconds",
		Help:    "Lifetime of server-sent event streams in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s..128s
	})

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpStreams, httpStreamDur, httpRespSize)
}

// Metrics records per-route request counts, latency, in-flight requests and
// response sizes. Labels use the registered route template (c.FullPath()).
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

// TrackStream marks an event stream as open and returns the func that closes
// it and records its lifetime:
//
//	defer middleware.TrackStream()()
func TrackStream() func() {
	start := time.Now()
	httpStreams.Inc()
	return func() {
		httpStreams.Dec()
		httpStreamDur.Observe(time.Since(start).Seconds())
	}
}
