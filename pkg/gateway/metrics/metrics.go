// Package metrics exposes Prometheus collectors for the voice gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voice_gateway_sessions_active",
		Help: "Number of live voice sessions.",
	})

	SessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_sessions_total",
		Help: "Total voice sessions started.",
	})

	UpstreamEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_upstream_events_total",
		Help: "Upstream realtime events by handling class.",
	}, []string{"class"})

	ForwardedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_forwarded_events_total",
		Help: "Upstream events forwarded verbatim to the client.",
	})

	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_tool_calls_total",
		Help: "Function-call dispatches by tool and status.",
	}, []string{"tool", "status"})

	LookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_gateway_lookup_duration_seconds",
		Help:    "Lookup-service call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

var registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		SessionsActive,
		SessionsTotal,
		UpstreamEvents,
		ForwardedEvents,
		ToolCalls,
		LookupDuration,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the gateway metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
