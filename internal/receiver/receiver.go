// Package receiver implements the reassembly side of the protocol: it
// takes frames arriving out of order, possibly duplicated, off a
// transport.Channel and turns them back into the original whole file.
package receiver

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/kestrelnet/rft/internal/dedup"
	"github.com/kestrelnet/rft/internal/frame"
	"github.com/kestrelnet/rft/internal/metrics"
	"github.com/kestrelnet/rft/internal/transport"
)

// Engine runs the receive side of one transfer.
type Engine struct {
	// Logger receives progress and diagnostic messages. If nil, a
	// discard logger is used.
	Logger logrus.FieldLogger

	// AckIdle is how long the engine waits for a new frame before
	// re-sending its current ACK, guarding against a lost ACK
	// stalling the sender indefinitely. Defaults to 200ms.
	AckIdle time.Duration

	// Metrics, if set, receives per-frame and per-transfer counters.
	// Nil disables instrumentation entirely.
	Metrics *metrics.Metrics

	guard *dedup.Guard
}

// Count reports how many distinct sequence numbers the duplicate-frame
// guard has marked seen so far. Safe to call from another goroutine
// while Receive is running, for a metrics collector polling engine
// state on a scrape; returns 0 before the guard is created.
func (e *Engine) Count() uint64 {
	if e.guard == nil {
		return 0
	}
	return e.guard.Count()
}

// Duplicates reports how many confirmed duplicate frames the guard has
// dropped so far.
func (e *Engine) Duplicates() uint64 {
	if e.guard == nil {
		return 0
	}
	return e.guard.Duplicates()
}

// Result is what Receive returns once a transfer completes.
type Result struct {
	Data   []byte
	Digest [32]byte
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

func (e *Engine) ackIdle() time.Duration {
	if e.AckIdle > 0 {
		return e.AckIdle
	}
	return 200 * time.Millisecond
}

// Receive blocks until a whole file has been reassembled from ch, or
// done is closed. done is checked between frames; the wait for the
// first DATA frame has no deadline, so until that frame arrives only
// closing ch ends it. It implements the receiver engine's seven steps:
// learn the transfer size from the first valid DATA frame, buffer
// frames out of order, advance the cumulative-ack cursor while
// consecutive sequence numbers are present, emit a selective ack after
// every accepted frame (or on idle timeout, as a keepalive), and
// return the whole reassembled file once every sequence number has
// arrived.
func (e *Engine) Receive(done <-chan struct{}, ch transport.Channel) (*Result, error) {
	log := e.logger()
	if e.Metrics != nil {
		e.Metrics.RecordTransferStart()
	}

	table, total, err := e.awaitFirstFrame(done, ch)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.RecordTransferEnd("failed")
		}
		return nil, err
	}
	log.WithField("total", total).Info("receiver: transfer size known")
	guard := dedup.NewGuard(int(total))
	e.guard = guard
	for seq, got := range table.received {
		if got {
			guard.Mark(uint16(seq))
		}
	}

	recvExpected := uint16(0)
	// advance past any frames the first read already satisfied.
	for recvExpected < total && table.received[recvExpected] {
		recvExpected++
	}
	e.sendAck(ch, recvExpected, table, total)

	for recvExpected < total {
		select {
		case <-done:
			if e.Metrics != nil {
				e.Metrics.RecordTransferEnd("cancelled")
			}
			return nil, fmt.Errorf("receiver: cancelled")
		default:
		}

		deadline := time.Now().Add(e.ackIdle())
		raw, ok := ch.Receive(deadline)
		if !ok {
			// idle timeout: our last ACK may have been lost, so
			// resend it as a keepalive.
			e.sendAck(ch, recvExpected, table, total)
			continue
		}

		decoded, err := frame.Decode(raw)
		if err != nil {
			continue
		}
		d, ok := decoded.(*frame.Data)
		if !ok {
			continue
		}
		if d.Seq >= total || d.Total != total {
			continue // out of range, or disagrees with the established total: corruption
		}
		if table.received[d.Seq] {
			guard.MarkDuplicate()
			continue // definite duplicate, already reassembled
		}
		table.received[d.Seq] = true
		table.payload[d.Seq] = d.Payload
		guard.Mark(d.Seq)
		if e.Metrics != nil {
			e.Metrics.RecordReceive(len(d.Payload))
		}

		for recvExpected < total && table.received[recvExpected] {
			recvExpected++
		}
		e.sendAck(ch, recvExpected, table, total)
	}

	log.Info("receiver: transfer complete, reassembling")
	out := make([]byte, 0, table.totalBytesHint())
	for i := uint16(0); i < total; i++ {
		out = append(out, table.payload[i]...)
	}

	if e.Metrics != nil {
		e.Metrics.RecordTransferEnd("success")
	}
	return &Result{Data: out, Digest: blake2b.Sum256(out)}, nil
}

// reorderTable holds every DATA frame received so far, indexed by
// sequence number, sized once the transfer's total frame count is
// known from the first valid frame.
type reorderTable struct {
	received []bool
	payload  [][]byte
}

func newReorderTable(total uint16) *reorderTable {
	return &reorderTable{
		received: make([]bool, total),
		payload:  make([][]byte, total),
	}
}

func (t *reorderTable) totalBytesHint() int {
	n := 0
	for _, p := range t.payload {
		n += len(p)
	}
	return n
}

// awaitFirstFrame blocks until a valid DATA frame arrives, which is
// how the receiver learns the transfer's total frame count — nothing
// out of band tells it in advance.
func (e *Engine) awaitFirstFrame(done <-chan struct{}, ch transport.Channel) (*reorderTable, uint16, error) {
	for {
		select {
		case <-done:
			return nil, 0, fmt.Errorf("receiver: cancelled before first frame")
		default:
		}

		raw, ok := ch.Receive(time.Time{})
		if !ok {
			return nil, 0, fmt.Errorf("receiver: channel closed before first frame")
		}
		decoded, err := frame.Decode(raw)
		if err != nil {
			continue
		}
		d, ok := decoded.(*frame.Data)
		if !ok {
			continue
		}
		if d.Total == 0 || d.Seq >= d.Total {
			continue
		}
		table := newReorderTable(d.Total)
		table.received[d.Seq] = true
		table.payload[d.Seq] = d.Payload
		return table, d.Total, nil
	}
}

// sendAck builds and sends the current selective ack: base is the
// cumulative cursor, and bit i of the bitmap is set iff sequence
// base+i has already been buffered, clamped to sequence numbers below
// total.
func (e *Engine) sendAck(ch transport.Channel, base uint16, table *reorderTable, total uint16) {
	var bitmap uint64
	for i := uint16(0); i < frame.BitmapWidth; i++ {
		seq := base + i
		if seq >= total {
			break
		}
		if table.received[seq] {
			bitmap |= 1 << i
		}
	}
	ch.Send(frame.EncodeAck(base, bitmap))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
