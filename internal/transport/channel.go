// Package transport defines the datagram channel contract the sender
// and receiver engines run over, plus a real UDP implementation and a
// deterministic in-memory implementation used to drive loss/reorder
// scenarios in tests.
package transport

import "time"

// Channel is the minimal contract the sender and receiver engines
// need from whatever carries frames between them: send a whole frame,
// and block for up to a deadline waiting for the next one. Both ends
// of a transfer see frames already reassembled to datagram boundaries
// — Channel never fragments or coalesces what it is given.
type Channel interface {
	// Send transmits one frame. It does not block waiting for
	// delivery; a Channel over an unreliable medium may silently drop
	// what it sends.
	Send(frame []byte) error

	// Receive blocks until a frame arrives or deadline elapses,
	// returning the frame and true, or nil and false on timeout. A
	// zero deadline means block indefinitely.
	Receive(deadline time.Time) ([]byte, bool)

	// Close releases any resources held by the channel. Receive
	// unblocks and returns false after Close.
	Close() error
}
