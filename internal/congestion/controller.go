// Package congestion implements the slow-start/CUBIC window controller
// that governs how many unacknowledged frames the sender may keep in
// flight. The regime and constants are carried over from the reference
// implementation this protocol was distilled from.
package congestion

import (
	"math"
	"sync"
	"time"
)

const (
	initialCwnd     = 5.0
	initialSsthresh = 15.0
	minCwnd         = 2.0

	defaultMaxCwnd   = 200.0
	defaultCubicC    = 0.4
	defaultCubicBeta = 0.7
)

// Params overrides the CUBIC constants and window cap a Controller
// uses. The zero value of each field means "use the reference
// implementation's default".
type Params struct {
	C        float64
	Beta     float64
	MaxCwnd  float64
	InitCwnd float64
}

// Controller tracks the congestion window and slow-start threshold for
// one transfer. It is safe for concurrent use, though the sender
// engine serializes access to it under its own mutex as required by
// the concurrency model.
type Controller struct {
	mu sync.Mutex

	cubicC    float64
	cubicBeta float64
	maxCwnd   float64

	cwnd      float64
	ssthresh  float64
	wMax      float64
	epochUp   time.Time // when the current CUBIC epoch began
	lastLoss  time.Time
	hasLoss   bool
	smoothRTT func() time.Duration

	recovering  bool
	recoverySeq uint16
}

// New returns a Controller seeded at the reference implementation's
// initial window and threshold. smoothRTT supplies the current
// smoothed RTT estimate, used to dedup loss events that land within
// one RTT of the last applied decrease; it may be nil, in which case
// loss-event dedup is skipped.
func New(smoothRTT func() time.Duration) *Controller {
	return NewWithParams(Params{}, smoothRTT)
}

// NewWithParams is like New but lets a caller override the CUBIC
// constants and starting/maximum window from configuration.
func NewWithParams(p Params, smoothRTT func() time.Duration) *Controller {
	c := &Controller{
		cubicC:    defaultCubicC,
		cubicBeta: defaultCubicBeta,
		maxCwnd:   defaultMaxCwnd,
		cwnd:      initialCwnd,
		ssthresh:  initialSsthresh,
		smoothRTT: smoothRTT,
	}
	if p.C > 0 {
		c.cubicC = p.C
	}
	if p.Beta > 0 {
		c.cubicBeta = p.Beta
	}
	if p.MaxCwnd > 0 {
		c.maxCwnd = p.MaxCwnd
	}
	if p.InitCwnd > 0 {
		c.cwnd = p.InitCwnd
	}
	c.wMax = c.cwnd
	return c
}

// OnAck folds ackedCount newly-cumulative-acknowledged frames into the
// window: linear growth during slow start, CUBIC growth during
// congestion avoidance.
func (c *Controller) OnAck(ackedCount int) {
	if ackedCount <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cwnd < c.ssthresh {
		c.cwnd += float64(ackedCount)
	} else {
		if c.epochUp.IsZero() {
			c.epochUp = time.Now()
		}
		t := time.Since(c.epochUp).Seconds()
		k := math.Cbrt(c.wMax * (1 - c.cubicBeta) / c.cubicC)
		target := c.cubicC*math.Pow(t-k, 3) + c.wMax
		increment := (target - c.cwnd) / c.cwnd
		if increment < 0 {
			increment = 0
		}
		c.cwnd += increment * float64(ackedCount)
	}

	if c.cwnd > c.maxCwnd {
		c.cwnd = c.maxCwnd
	}
}

// OnLoss applies a multiplicative decrease for a SACK-detected loss.
// Repeated calls within one smoothed RTT of the last applied decrease
// are no-ops, so a single loss event spanning several gaps in the same
// SACK bitmap only shrinks the window once. It reports whether this
// call actually applied a decrease, for callers that count distinct
// loss events rather than triggers.
func (c *Controller) OnLoss() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyDecreaseLocked()
}

// OnTimeout applies the same multiplicative decrease as OnLoss, for a
// retransmission-timeout-detected loss. It shares the same loss-event
// dedup window as OnLoss.
func (c *Controller) OnTimeout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyDecreaseLocked()
}

func (c *Controller) applyDecreaseLocked() bool {
	if c.hasLoss && c.smoothRTT != nil {
		if time.Since(c.lastLoss) < c.smoothRTT() {
			return false
		}
	}

	if c.cwnd < minCwnd {
		c.wMax = minCwnd
	} else {
		c.wMax = c.cwnd
	}
	c.cwnd *= c.cubicBeta
	if c.cwnd < minCwnd {
		c.cwnd = minCwnd
	}
	c.ssthresh = c.cwnd
	c.lastLoss = time.Now()
	c.hasLoss = true
	c.epochUp = time.Time{}
	return true
}

// Window returns the current congestion window, floored to an integer
// count of frames.
func (c *Controller) Window() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.cwnd)
}

// EnterRecovery marks the sender as having entered recovery for the
// loss event at boundary seq (the highest outstanding sequence number
// at the time the first SACK gap of this event was observed). While
// recovering, further SACK-detected losses are reported to InRecovery
// instead of triggering another OnLoss call.
func (c *Controller) EnterRecovery(seq uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovering = true
	c.recoverySeq = seq
}

// InRecovery reports whether the sender is in recovery for boundary
// seq, i.e. sendBase has not yet crossed the sequence number recorded
// by EnterRecovery. Callers exit recovery by calling ExitRecovery once
// sendBase advances past recoverySeq.
func (c *Controller) InRecovery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recovering
}

// RecoverySeq returns the sequence boundary recorded by the most
// recent EnterRecovery call, for callers deciding when to call
// ExitRecovery.
func (c *Controller) RecoverySeq() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoverySeq
}

// ExitRecovery clears recovery mode once sendBase has crossed the
// boundary recorded by EnterRecovery.
func (c *Controller) ExitRecovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovering = false
}
