package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeTransferStats struct {
	window      int
	smoothedRTT time.Duration
	rto         time.Duration
	inRecovery  bool
	sendBase    uint16
	total       uint16
}

func (f fakeTransferStats) Window() int                 { return f.window }
func (f fakeTransferStats) SmoothedRTT() time.Duration   { return f.smoothedRTT }
func (f fakeTransferStats) RTO() time.Duration           { return f.rto }
func (f fakeTransferStats) InRecovery() bool             { return f.inRecovery }
func (f fakeTransferStats) Progress() (uint16, uint16)   { return f.sendBase, f.total }

func TestTransferCollectorReportsProgressRatio(t *testing.T) {
	stats := fakeTransferStats{window: 9, smoothedRTT: 50 * time.Millisecond, rto: 200 * time.Millisecond, sendBase: 25, total: 100}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewTransferCollector(stats))

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 5 {
		t.Errorf("metric family count = %d, want 5", count)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	ratio := -1.0
	for _, mf := range families {
		if mf.GetName() == "rft_transfer_progress_ratio" {
			ratio = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if ratio != 0.25 {
		t.Errorf("progress ratio = %v, want 0.25 (25 of 100 frames)", ratio)
	}
}

type fakeDedupStats struct {
	marked, duplicates uint64
}

func (f fakeDedupStats) Count() uint64      { return f.marked }
func (f fakeDedupStats) Duplicates() uint64 { return f.duplicates }

func TestDedupCollectorReportsCounts(t *testing.T) {
	stats := fakeDedupStats{marked: 40, duplicates: 3}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewDedupCollector(stats))

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 2 {
		t.Errorf("metric family count = %d, want 2", count)
	}
}
