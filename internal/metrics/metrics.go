// Package metrics exposes the sender and receiver engines' runtime
// state as Prometheus metrics: congestion window, RTT/RTO, retransmit
// and loss-event counts, bytes moved, and transfer outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of counters and gauges one rft process (sender or
// receiver) updates over the course of a transfer.
type Metrics struct {
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter

	FramesSent          prometheus.Counter
	FramesRetransmitted prometheus.Counter
	LossEvents          prometheus.Counter

	AckLatency prometheus.Histogram

	CongestionWindow  prometheus.Gauge
	SmoothedRTT       prometheus.Gauge
	RetransmitTimeout prometheus.Gauge
	InRecovery        prometheus.Gauge

	TransfersTotal  *prometheus.CounterVec
	ActiveTransfers prometheus.Gauge
}

// NewMetrics builds a Metrics set and registers it against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent, including retransmissions.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "bytes_received_total",
			Help:      "Total distinct payload bytes accepted by the receiver.",
		}),

		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "frames_sent_total",
			Help:      "Total DATA frames sent, including retransmissions.",
		}),
		FramesRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "frames_retransmitted_total",
			Help:      "Total DATA frames retransmitted, by any trigger.",
		}),
		LossEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "loss_events_total",
			Help:      "Total distinct loss events applied to the congestion window.",
		}),

		AckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rft",
			Name:      "ack_latency_seconds",
			Help:      "Time from a frame's send to the sample that acknowledged it.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),

		CongestionWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rft",
			Subsystem: "congestion",
			Name:      "window_frames",
			Help:      "Current congestion window size, in frames.",
		}),
		SmoothedRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rft",
			Subsystem: "rtt",
			Name:      "smoothed_seconds",
			Help:      "Current smoothed RTT estimate.",
		}),
		RetransmitTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rft",
			Subsystem: "rtt",
			Name:      "rto_seconds",
			Help:      "Current retransmission timeout.",
		}),
		InRecovery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rft",
			Subsystem: "congestion",
			Name:      "in_recovery",
			Help:      "Whether the sender is currently in loss recovery (1 = yes).",
		}),

		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rft",
			Name:      "transfers_total",
			Help:      "Completed transfers by outcome.",
		}, []string{"outcome"}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rft",
			Name:      "active_transfers",
			Help:      "Number of transfers currently in flight.",
		}),
	}

	registry.MustRegister(
		m.BytesSent,
		m.BytesReceived,
		m.FramesSent,
		m.FramesRetransmitted,
		m.LossEvents,
		m.AckLatency,
		m.CongestionWindow,
		m.SmoothedRTT,
		m.RetransmitTimeout,
		m.InRecovery,
		m.TransfersTotal,
		m.ActiveTransfers,
	)

	return m
}

// RecordSend accounts for a DATA frame leaving the wire, whether it is
// an original send or a retransmission.
func (m *Metrics) RecordSend(payloadLen int, retransmit bool) {
	m.BytesSent.Add(float64(payloadLen))
	m.FramesSent.Inc()
	if retransmit {
		m.FramesRetransmitted.Inc()
	}
}

// RecordReceive accounts for a distinct DATA frame's payload accepted
// by the receiver's reorder table.
func (m *Metrics) RecordReceive(payloadLen int) {
	m.BytesReceived.Add(float64(payloadLen))
}

// RecordAckLatency observes the round-trip sample a fresh ack or SACK
// bit produced.
func (m *Metrics) RecordAckLatency(seconds float64) {
	m.AckLatency.Observe(seconds)
}

// RecordLossEvent increments the loss-event counter once per distinct
// congestion-window decrease, mirroring the controller's own dedup.
func (m *Metrics) RecordLossEvent() {
	m.LossEvents.Inc()
}

// UpdateCongestionStats snapshots the sender's window and recovery
// state after processing an ack or timeout.
func (m *Metrics) UpdateCongestionStats(window int, inRecovery bool) {
	m.CongestionWindow.Set(float64(window))
	if inRecovery {
		m.InRecovery.Set(1)
	} else {
		m.InRecovery.Set(0)
	}
}

// UpdateRTTStats snapshots the current smoothed RTT and RTO.
func (m *Metrics) UpdateRTTStats(smoothedSeconds, rtoSeconds float64) {
	m.SmoothedRTT.Set(smoothedSeconds)
	m.RetransmitTimeout.Set(rtoSeconds)
}

// RecordTransferStart marks one more transfer as in flight.
func (m *Metrics) RecordTransferStart() {
	m.ActiveTransfers.Inc()
}

// RecordTransferEnd marks a transfer's outcome and clears it from the
// in-flight gauge. outcome is a short label such as "success",
// "failed", or "cancelled".
func (m *Metrics) RecordTransferEnd(outcome string) {
	m.ActiveTransfers.Dec()
	m.TransfersTotal.WithLabelValues(outcome).Inc()
}
