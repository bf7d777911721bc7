// Package sender implements the sending side of the protocol: it
// slices a whole file into fixed-size frames, keeps a sliding window
// of them in flight, and drives loss recovery from cumulative acks,
// selective acks, and retransmission timeouts.
package sender

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/rft/internal/congestion"
	"github.com/kestrelnet/rft/internal/frame"
	"github.com/kestrelnet/rft/internal/metrics"
	"github.com/kestrelnet/rft/internal/rtt"
	"github.com/kestrelnet/rft/internal/timer"
	"github.com/kestrelnet/rft/internal/transport"
)

// DefaultDataSize is the per-frame payload size the reference
// implementation this protocol was distilled from used.
const DefaultDataSize = 200

// Engine runs the send side of one transfer.
type Engine struct {
	// Logger receives progress and diagnostic messages. If nil, a
	// discard logger is used.
	Logger logrus.FieldLogger

	// DataSize is the payload size each DATA frame carries, aside
	// from the last, which may be shorter. Defaults to DefaultDataSize.
	DataSize int

	// LoopIdle bounds how long each iteration of the main loop blocks
	// waiting for an ACK before re-checking timeouts and window
	// admission. Defaults to 10ms.
	LoopIdle time.Duration

	// TimerDriven selects a per-sequence-number scheduled callback
	// (internal/timer) instead of the main loop's own RTO sweep to
	// detect retransmission timeouts.
	TimerDriven bool

	// RTTFloor/RTTCeil override the RTT estimator's RTO bounds; zero
	// keeps the estimator's own defaults.
	RTTFloor time.Duration
	RTTCeil  time.Duration

	// Cubic overrides the congestion controller's CUBIC constants;
	// the zero value keeps the controller's own defaults.
	Cubic congestion.Params

	// Metrics, if set, receives per-frame and per-transfer counters.
	// Nil disables instrumentation entirely.
	Metrics *metrics.Metrics

	mu            sync.Mutex
	packets       [][]byte
	acked         []bool
	sacked        []bool
	sentAt        []time.Time
	retransmitted []bool
	sendBase      uint16
	nextSeq       uint16
	total         uint16

	rttEst *rtt.Estimator
	cc     *congestion.Controller
	sched  *timer.Scheduler
	chRef  transport.Channel
	logRef logrus.FieldLogger
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

func (e *Engine) dataSize() int {
	if e.DataSize > 0 {
		return e.DataSize
	}
	return DefaultDataSize
}

func (e *Engine) loopIdle() time.Duration {
	if e.LoopIdle > 0 {
		return e.LoopIdle
	}
	return 10 * time.Millisecond
}

// Window reports the current congestion window, in frames. It is safe
// to call from another goroutine while Send is running, for a
// metrics collector polling engine state on a scrape.
func (e *Engine) Window() int {
	if e.cc == nil {
		return 0
	}
	return e.cc.Window()
}

// SmoothedRTT reports the current smoothed RTT estimate.
func (e *Engine) SmoothedRTT() time.Duration {
	if e.rttEst == nil {
		return 0
	}
	return e.rttEst.SmoothedRTT()
}

// RTO reports the current retransmission timeout.
func (e *Engine) RTO() time.Duration {
	if e.rttEst == nil {
		return 0
	}
	return e.rttEst.RTO()
}

// Progress reports how many frames have been cumulatively acked and
// the transfer's total frame count.
func (e *Engine) Progress() (sendBase, total uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendBase, e.total
}

// InRecovery reports whether the sender is currently in a loss
// recovery episode.
func (e *Engine) InRecovery() bool {
	if e.cc == nil {
		return false
	}
	return e.cc.InRecovery()
}

// Send blocks until every frame of data has been cumulatively
// acknowledged, or done is closed. It slices data into frames, then
// runs the three-phase loop: ack ingestion, SACK-driven fast
// retransmit, and window admission, plus RTO-driven timeout
// retransmission checked each iteration.
func (e *Engine) Send(done <-chan struct{}, ch transport.Channel, data []byte) error {
	log := e.logger()

	e.rttEst = rtt.NewWithBounds(e.RTTFloor, e.RTTCeil)
	e.cc = congestion.NewWithParams(e.Cubic, e.rttEst.SmoothedRTT)
	e.chRef = ch
	e.logRef = log
	if e.TimerDriven {
		e.sched = timer.NewScheduler()
		defer e.sched.Close()
	}

	e.slice(data)
	log.WithField("total", e.total).Info("sender: transfer starting")

	if e.Metrics != nil {
		e.Metrics.RecordTransferStart()
	}

	if e.total == 0 {
		if e.Metrics != nil {
			e.Metrics.RecordTransferEnd("success")
		}
		return nil
	}

	for {
		select {
		case <-done:
			if e.Metrics != nil {
				e.Metrics.RecordTransferEnd("cancelled")
			}
			return fmt.Errorf("sender: cancelled")
		default:
		}

		e.mu.Lock()
		complete := e.sendBase >= e.total
		e.mu.Unlock()
		if complete {
			log.Info("sender: transfer complete")
			if e.Metrics != nil {
				e.Metrics.RecordTransferEnd("success")
			}
			return nil
		}

		deadline := time.Now().Add(e.loopIdle())
		raw, ok := ch.Receive(deadline)
		if ok {
			if a, isAck := decodeAck(raw); isAck {
				e.onAck(ch, a, log)
			}
		}

		if !e.TimerDriven {
			e.checkTimeouts(ch, log)
		}
		e.admitWindow(ch)
	}
}

func decodeAck(raw []byte) (*frame.Ack, bool) {
	decoded, err := frame.Decode(raw)
	if err != nil {
		return nil, false
	}
	a, ok := decoded.(*frame.Ack)
	return a, ok
}

func (e *Engine) slice(data []byte) {
	size := e.dataSize()
	total := (len(data) + size - 1) / size
	if total == 0 {
		total = 0
	}
	e.packets = make([][]byte, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		e.packets[i] = data[start:end]
	}
	e.total = uint16(total)
	e.acked = make([]bool, total)
	e.sacked = make([]bool, total)
	e.sentAt = make([]time.Time, total)
	e.retransmitted = make([]bool, total)
}

// onAck runs phase A (cumulative ack ingestion, with RTT sampling
// under Karn's rule) and phase B (SACK bitmap ingestion, fast
// retransmit of the gaps it reveals).
func (e *Engine) onAck(ch transport.Channel, a *frame.Ack, log logrus.FieldLogger) {
	e.mu.Lock()

	// Reject the whole frame before any state mutation if its base
	// names a sequence this sender never issued — a corrupted Base
	// that happens to pass the header checksum, or a stray ack from
	// another session, must not be allowed to fast-forward sendBase
	// past frames that are still genuinely in flight or unsent.
	if a.Base > e.nextSeq || a.Base > e.total {
		e.mu.Unlock()
		log.WithField("base", a.Base).Debug("sender: discarding ack with out-of-range base")
		return
	}

	ackedCount := 0
	for e.sendBase < e.total && e.sendBase < a.Base {
		i := e.sendBase
		if !e.acked[i] {
			e.acked[i] = true
			if !e.retransmitted[i] && !e.sentAt[i].IsZero() {
				sample := time.Since(e.sentAt[i])
				e.rttEst.Update(sample)
				if e.Metrics != nil {
					e.Metrics.RecordAckLatency(sample.Seconds())
				}
			}
			if e.sched != nil {
				e.sched.Cancel(i)
			}
			ackedCount++
		}
		e.sendBase++
	}

	// SACK bitmap: bit i names sequence a.Base+i, bounded by whatever
	// has actually been sent so far, not merely by total — a bit
	// naming a sequence in [nextSeq, total) can only be corruption.
	sackLimit := e.total
	if e.nextSeq < sackLimit {
		sackLimit = e.nextSeq
	}
	highestGap := int(-1)
	for i := uint16(0); i < frame.BitmapWidth; i++ {
		seq := a.Base + i
		if seq >= sackLimit {
			break
		}
		if a.Bitmap&(1<<i) != 0 {
			if !e.sacked[seq] {
				e.sacked[seq] = true
				// spec's sender-side table has a single acknowledged
				// flag; a SACK'd frame is acknowledged exactly as a
				// cumulatively-acked one is, so it stops counting as
				// in flight and stops being timeout-eligible.
				e.acked[seq] = true
				if !e.retransmitted[seq] && !e.sentAt[seq].IsZero() {
					sample := time.Since(e.sentAt[seq])
					e.rttEst.Update(sample)
					if e.Metrics != nil {
						e.Metrics.RecordAckLatency(sample.Seconds())
					}
				}
				if e.sched != nil {
					e.sched.Cancel(seq)
				}
			}
			if int(seq) > highestGap {
				highestGap = int(seq)
			}
		}
	}

	var toRetransmit []uint16
	if highestGap >= 0 {
		for seq := a.Base; int(seq) < highestGap; seq++ {
			if seq >= e.total || e.acked[seq] || e.retransmitted[seq] {
				continue
			}
			e.retransmitted[seq] = true
			toRetransmit = append(toRetransmit, seq)
		}
	}

	recoveryBoundary := e.nextSeq - 1
	sendBaseSnapshot := e.sendBase
	e.mu.Unlock()

	if ackedCount > 0 {
		e.cc.OnAck(ackedCount)
	}
	if len(toRetransmit) > 0 {
		// inside a recovery episode, further SACK gaps are retransmitted
		// but do not shrink the window again.
		if !e.cc.InRecovery() && e.cc.OnLoss() {
			e.cc.EnterRecovery(recoveryBoundary)
			if e.Metrics != nil {
				e.Metrics.RecordLossEvent()
			}
		}
		for _, seq := range toRetransmit {
			e.retransmit(ch, seq, log)
		}
	}
	if e.cc.InRecovery() && sendBaseSnapshot > e.cc.RecoverySeq() {
		e.cc.ExitRecovery()
	}
	e.reportStats()
}

// reportStats snapshots the congestion window, RTT, and RTO into
// Metrics, if set. Called after every window state change so scrapes
// see a near-live picture without polling the engine directly.
func (e *Engine) reportStats() {
	if e.Metrics == nil {
		return
	}
	e.Metrics.UpdateCongestionStats(e.cc.Window(), e.cc.InRecovery())
	e.Metrics.UpdateRTTStats(e.rttEst.SmoothedRTT().Seconds(), e.rttEst.RTO().Seconds())
}

// checkTimeouts scans the in-flight window for packets whose RTO has
// elapsed and retransmits them.
func (e *Engine) checkTimeouts(ch transport.Channel, log logrus.FieldLogger) {
	rto := e.rttEst.RTO()
	now := time.Now()

	e.mu.Lock()
	var due []uint16
	for seq := e.sendBase; seq < e.nextSeq; seq++ {
		if e.acked[seq] {
			continue
		}
		if e.sentAt[seq].IsZero() {
			continue
		}
		if now.Sub(e.sentAt[seq]) >= rto {
			due = append(due, seq)
		}
	}
	e.mu.Unlock()

	if len(due) == 0 {
		return
	}

	e.rttEst.OnTimeout()
	decreased := e.cc.OnTimeout()
	if decreased && e.Metrics != nil {
		e.Metrics.RecordLossEvent()
	}
	for _, seq := range due {
		e.mu.Lock()
		e.retransmitted[seq] = true
		e.mu.Unlock()
		e.retransmit(ch, seq, log)
	}
	e.reportStats()
}

// admitWindow sends newly-eligible frames until the in-flight count
// reaches the congestion window. In flight means sent but not yet
// acknowledged — spec's |{i : sendBase<=i<nextSeq, !acked[i]}| — not
// simply nextSeq-sendBase, since a SACK'd sequence ahead of sendBase
// is already acknowledged and must not consume window budget.
func (e *Engine) admitWindow(ch transport.Channel) {
	window := e.cc.Window()

	e.mu.Lock()
	defer e.mu.Unlock()

	inFlight := 0
	for seq := e.sendBase; seq < e.nextSeq; seq++ {
		if !e.acked[seq] {
			inFlight++
		}
	}

	for e.nextSeq < e.total && inFlight < window {
		seq := e.nextSeq
		payload := e.packets[seq]
		ch.Send(frame.EncodeData(seq, e.total, payload))
		if e.Metrics != nil {
			e.Metrics.RecordSend(len(payload), false)
		}
		e.sentAt[seq] = time.Now()
		e.nextSeq++
		inFlight++
		if e.sched != nil {
			e.sched.ScheduleCallback(e.rttEst.RTO(), seq, e.onTimerFire)
		}
	}
}

// onTimerFire is the internal/timer callback path: it retransmits seq
// unless the timeout has gone stale, meaning a more recent send or
// SACK already superseded whatever this particular timer was
// answering for.
func (e *Engine) onTimerFire(seq uint16) {
	e.mu.Lock()
	if seq >= e.total || e.acked[seq] {
		e.mu.Unlock()
		return
	}
	stale := e.retransmitted[seq] && timer.IsStale(e.sentAt[seq], e.rttEst.RTO())
	e.mu.Unlock()
	if stale {
		return
	}

	e.mu.Lock()
	e.retransmitted[seq] = true
	e.mu.Unlock()

	e.rttEst.OnTimeout()
	if e.cc.OnTimeout() && e.Metrics != nil {
		e.Metrics.RecordLossEvent()
	}
	e.retransmit(e.chRef, seq, e.logRef)
	e.reportStats()
}

func (e *Engine) retransmit(ch transport.Channel, seq uint16, log logrus.FieldLogger) {
	e.mu.Lock()
	if seq >= e.total || e.acked[seq] {
		e.mu.Unlock()
		return
	}
	payload := e.packets[seq]
	total := e.total
	e.sentAt[seq] = time.Now()
	e.mu.Unlock()

	log.WithField("seq", seq).Debug("sender: retransmitting")
	ch.Send(frame.EncodeData(seq, total, payload))
	if e.Metrics != nil {
		e.Metrics.RecordSend(len(payload), true)
	}
	if e.sched != nil {
		e.sched.ScheduleCallback(e.rttEst.RTO(), seq, e.onTimerFire)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
