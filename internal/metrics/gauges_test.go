package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBundleAttachesPullCollectors(t *testing.T) {
	b := NewBundle(":0", "/metrics", "/healthz", false)

	b.AttachTransferStats(fakeTransferStats{window: 5, smoothedRTT: time.Millisecond, rto: 10 * time.Millisecond, total: 10})
	b.AttachDedupStats(fakeDedupStats{marked: 10, duplicates: 1})

	b.Metrics.RecordSend(100, false)
	if got := testutil.ToFloat64(b.Metrics.BytesSent); got != 100 {
		t.Errorf("BytesSent = %v, want 100", got)
	}

	count, err := testutil.GatherAndCount(b.Server.GetRegistry())
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	// push-model Metrics families + the two pull collectors' families +
	// the Go/process runtime collectors registered by NewMetricsServer.
	if count == 0 {
		t.Errorf("expected a non-empty registry after attaching collectors")
	}
}
