package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransferStats is the live state a sender.Engine exposes for a pull
// collector to read at scrape time, as an alternative to the push
// model Metrics itself uses.
type TransferStats interface {
	Window() int
	SmoothedRTT() time.Duration
	RTO() time.Duration
	InRecovery() bool
	Progress() (sendBase, total uint16)
}

// TransferCollector exposes a TransferStats provider's live congestion
// and progress state as Prometheus gauges, read fresh on every scrape
// rather than pushed as the transfer runs.
type TransferCollector struct {
	stats TransferStats

	windowDesc      *prometheus.Desc
	smoothedRTTDesc *prometheus.Desc
	rtoDesc         *prometheus.Desc
	inRecoveryDesc  *prometheus.Desc
	progressDesc    *prometheus.Desc
}

// NewTransferCollector returns a collector reading stats from the
// given provider on every Collect call.
func NewTransferCollector(stats TransferStats) *TransferCollector {
	namespace := "rft"
	subsystem := "transfer"

	return &TransferCollector{
		stats: stats,
		windowDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "window_frames_live"),
			"Congestion window at scrape time, in frames.",
			nil, nil,
		),
		smoothedRTTDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "smoothed_rtt_seconds_live"),
			"Smoothed RTT estimate at scrape time.",
			nil, nil,
		),
		rtoDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "rto_seconds_live"),
			"Retransmission timeout at scrape time.",
			nil, nil,
		),
		inRecoveryDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "in_recovery_live"),
			"Whether the sender is in loss recovery at scrape time (1 = yes).",
			nil, nil,
		),
		progressDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "progress_ratio"),
			"Fraction of frames cumulatively acknowledged at scrape time.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *TransferCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.windowDesc
	ch <- c.smoothedRTTDesc
	ch <- c.rtoDesc
	ch <- c.inRecoveryDesc
	ch <- c.progressDesc
}

// Collect implements prometheus.Collector.
func (c *TransferCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.windowDesc, prometheus.GaugeValue, float64(c.stats.Window()))
	ch <- prometheus.MustNewConstMetric(c.smoothedRTTDesc, prometheus.GaugeValue, c.stats.SmoothedRTT().Seconds())
	ch <- prometheus.MustNewConstMetric(c.rtoDesc, prometheus.GaugeValue, c.stats.RTO().Seconds())

	inRecovery := 0.0
	if c.stats.InRecovery() {
		inRecovery = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.inRecoveryDesc, prometheus.GaugeValue, inRecovery)

	sendBase, total := c.stats.Progress()
	ratio := 0.0
	if total > 0 {
		ratio = float64(sendBase) / float64(total)
	}
	ch <- prometheus.MustNewConstMetric(c.progressDesc, prometheus.GaugeValue, ratio)
}

// DedupStats is the live state a dedup.Guard exposes for a pull
// collector.
type DedupStats interface {
	Count() uint64
	Duplicates() uint64
}

// DedupCollector exposes a duplicate-frame guard's counters as
// Prometheus metrics.
type DedupCollector struct {
	stats DedupStats

	markedDesc     *prometheus.Desc
	duplicatesDesc *prometheus.Desc
}

// NewDedupCollector returns a collector reading stats from the given
// provider on every Collect call.
func NewDedupCollector(stats DedupStats) *DedupCollector {
	namespace := "rft"
	subsystem := "dedup"

	return &DedupCollector{
		stats: stats,
		markedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "marked_total"),
			"Total distinct sequence numbers marked seen.",
			nil, nil,
		),
		duplicatesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicates_total"),
			"Total confirmed duplicate frames dropped.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *DedupCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.markedDesc
	ch <- c.duplicatesDesc
}

// Collect implements prometheus.Collector.
func (c *DedupCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.markedDesc, prometheus.CounterValue, float64(c.stats.Count()))
	ch <- prometheus.MustNewConstMetric(c.duplicatesDesc, prometheus.CounterValue, float64(c.stats.Duplicates()))
}
