package providers

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Provider calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Provider call duration in seconds, including the full streamed reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration)
}

func observeCall(provider string, start time.Time, err error) {
	callDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	callsTotal.WithLabelValues(provider, outcome(err)).Inc()
}

func outcome(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe):
		return string(pe.Kind)
	}
	return "error"
}
