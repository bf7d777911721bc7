package congestion

import (
	"testing"
	"time"
)

func TestNewSeedsInitialWindow(t *testing.T) {
	c := New(nil)
	if got := c.Window(); got != int(initialCwnd) {
		t.Errorf("Window = %d, want %d", got, int(initialCwnd))
	}
}

func TestNewWithParamsOverridesDefaults(t *testing.T) {
	c := NewWithParams(Params{InitCwnd: 40, MaxCwnd: 50, Beta: 0.5}, nil)
	if got := c.Window(); got != 40 {
		t.Errorf("Window = %d, want 40 (from InitCwnd override)", got)
	}
	c.cwnd = c.maxCwnd + 10
	c.OnAck(1)
	if c.Window() > 50 {
		t.Errorf("Window = %d, want capped at overridden MaxCwnd 50", c.Window())
	}
}

func TestSlowStartGrowsLinearly(t *testing.T) {
	c := New(nil)
	before := c.Window()
	c.OnAck(3)
	after := c.Window()
	if after != before+3 {
		t.Errorf("slow start: window after ack = %d, want %d", after, before+3)
	}
}

func TestCongestionAvoidanceGrowsSlowerThanSlowStart(t *testing.T) {
	c := New(nil)
	// push past ssthresh to enter congestion avoidance
	c.cwnd = initialSsthresh
	before := c.Window()
	c.OnAck(1)
	after := c.Window()
	if after-before > 1 {
		t.Errorf("CUBIC growth from a single ack grew window by %d, want <=1", after-before)
	}
}

func TestOnLossAppliesMultiplicativeDecrease(t *testing.T) {
	c := New(nil)
	c.cwnd = 100
	c.OnLoss()
	if c.cwnd != 100*defaultCubicBeta {
		t.Errorf("cwnd after loss = %v, want %v", c.cwnd, 100*defaultCubicBeta)
	}
	if c.ssthresh != c.cwnd {
		t.Errorf("ssthresh after loss = %v, want %v (== cwnd)", c.ssthresh, c.cwnd)
	}
}

func TestOnLossFloorsAtMinCwnd(t *testing.T) {
	c := New(nil)
	c.cwnd = minCwnd
	c.OnLoss()
	if c.cwnd < minCwnd {
		t.Errorf("cwnd after loss = %v, want >= %v", c.cwnd, minCwnd)
	}
}

func TestLossEventDedupWithinOneRTT(t *testing.T) {
	rtt := 500 * time.Millisecond
	c := New(func() time.Duration { return rtt })
	c.cwnd = 100
	c.OnLoss()
	decreasedOnce := c.cwnd

	// a second loss landing inside the same RTT window must not
	// decrease the window again.
	c.OnLoss()
	if c.cwnd != decreasedOnce {
		t.Errorf("second loss within one RTT changed cwnd: %v -> %v", decreasedOnce, c.cwnd)
	}
}

func TestWindowNeverExceedsCap(t *testing.T) {
	c := New(nil)
	c.cwnd = c.maxCwnd - 1
	c.OnAck(1000)
	if c.cwnd > c.maxCwnd {
		t.Errorf("cwnd = %v, want <= %v", c.cwnd, c.maxCwnd)
	}
}

func TestRecoveryModeTracksBoundary(t *testing.T) {
	c := New(nil)
	if c.InRecovery() {
		t.Fatalf("fresh controller should not be in recovery")
	}
	c.EnterRecovery(42)
	if !c.InRecovery() {
		t.Errorf("expected InRecovery true after EnterRecovery")
	}
	c.ExitRecovery()
	if c.InRecovery() {
		t.Errorf("expected InRecovery false after ExitRecovery")
	}
}
