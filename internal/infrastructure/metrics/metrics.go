// Package metrics holds the Prometheus collectors of the chat client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quizchat"

type Metrics struct {
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec
	DecodeFailures   prometheus.Counter
	Reconnects       prometheus.Counter
	ConnectionState  prometheus.Gauge
	MergeOutcomes    *prometheus.CounterVec
	RestFallbackSend *prometheus.CounterVec
}

// New registers every collector with reg. A nil reg leaves the collectors
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "frames_sent_total",
			Help:      "Frames written to the chat socket by request type.",
		}, []string{"type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the chat socket by event type.",
		}, []string{"type"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "decode_failures_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "reconnects_total",
			Help:      "Successful reconnects after an unexpected close.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 open, 3 closing.",
		}),
		MergeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "merge_outcomes_total",
			Help:      "Results of merging inbound messages into conversations.",
		}, []string{"outcome"}),
		RestFallbackSend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rest_fallback_sends_total",
			Help:      "Messages sent through the REST fallback path by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSent,
			m.FramesReceived,
			m.DecodeFailures,
			m.Reconnects,
			m.ConnectionState,
			m.MergeOutcomes,
			m.RestFallbackSend,
		)
	}

	return m
}
