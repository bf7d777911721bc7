package rtt

import (
	"testing"
	"time"
)

func TestNewSeedsInitialEstimate(t *testing.T) {
	e := New()
	if got := e.SmoothedRTT(); got != initEstRTT {
		t.Errorf("SmoothedRTT = %v, want %v", got, initEstRTT)
	}
	rto := e.RTO()
	want := initEstRTT + 4*initDevRTT
	if rto != want {
		t.Errorf("RTO = %v, want %v", rto, want)
	}
}

func TestNewWithBoundsOverridesClamp(t *testing.T) {
	e := NewWithBounds(10*time.Millisecond, 200*time.Millisecond)
	for i := 0; i < 50; i++ {
		e.Update(0)
	}
	if got := e.RTO(); got != 10*time.Millisecond {
		t.Errorf("RTO = %v, want overridden floor 10ms", got)
	}
	for i := 0; i < 50; i++ {
		e.Update(time.Second)
	}
	if got := e.RTO(); got != 200*time.Millisecond {
		t.Errorf("RTO = %v, want overridden ceiling 200ms", got)
	}
}

func TestRTOClampedToFloor(t *testing.T) {
	e := New()
	for i := 0; i < 50; i++ {
		e.Update(0)
	}
	if got := e.RTO(); got != rtoFloor {
		t.Errorf("RTO = %v, want floor %v", got, rtoFloor)
	}
}

func TestRTOClampedToCeiling(t *testing.T) {
	e := New()
	for i := 0; i < 50; i++ {
		e.Update(10 * rtoCeil)
	}
	if got := e.RTO(); got != rtoCeil {
		t.Errorf("RTO = %v, want ceiling %v", got, rtoCeil)
	}
}

func TestUpdateNegativeSampleIgnored(t *testing.T) {
	e := New()
	before := e.RTO()
	e.Update(-1)
	if got := e.RTO(); got != before {
		t.Errorf("negative sample changed RTO: before %v, after %v", before, got)
	}
}

func TestOnTimeoutDoublesBackoffUntilUpdate(t *testing.T) {
	e := New()
	base := e.RTO()

	e.OnTimeout()
	afterOne := e.RTO()
	if afterOne != base*2 {
		t.Errorf("RTO after one timeout = %v, want %v", afterOne, base*2)
	}

	e.OnTimeout()
	afterTwo := e.RTO()
	wantTwo := base * 4
	if wantTwo > rtoCeil {
		wantTwo = rtoCeil
	}
	if afterTwo != wantTwo {
		t.Errorf("RTO after two timeouts = %v, want %v", afterTwo, wantTwo)
	}

	e.Update(base)
	afterSample := e.RTO()
	if afterSample >= afterTwo {
		t.Errorf("RTO after genuine sample did not reset backoff: %v >= %v", afterSample, afterTwo)
	}
}

func TestOnTimeoutBackoffCapped(t *testing.T) {
	e := New()
	base := e.RTO()
	for i := 0; i < 20; i++ {
		e.OnTimeout()
	}
	want := time.Duration(float64(base) * maxBackoff)
	if want > rtoCeil {
		want = rtoCeil
	}
	if got := e.RTO(); got != want {
		t.Errorf("RTO with saturated backoff = %v, want %v", got, want)
	}
}
