// Package timer implements a small per-sequence-number retransmission
// scheduler, the Go equivalent of the scheduled-timeout facility the
// reference implementation this protocol was distilled from drove
// retransmission from. It is an alternative to the sender engine's
// main-loop RTO sweep, selected by configuration rather than always
// run alongside it.
package timer

import (
	"sync"
	"time"
)

// Scheduler runs one callback per sequence number after a delay,
// replacing any callback already scheduled for that sequence number
// when it is rescheduled (a fresh send or SACK reset supersedes a
// stale timeout).
type Scheduler struct {
	mu     sync.Mutex
	timers map[uint16]*time.Timer
	closed bool
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[uint16]*time.Timer)}
}

// ScheduleCallback arranges for fn to run after delay unless the
// schedule for seq is replaced or cancelled first. Only one pending
// callback exists per sequence number at a time.
func (s *Scheduler) ScheduleCallback(delay time.Duration, seq uint16, fn func(seq uint16)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[seq]; ok {
		existing.Stop()
	}
	s.timers[seq] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[seq] != nil {
			delete(s.timers, seq)
		}
		s.mu.Unlock()
		fn(seq)
	})
}

// Cancel stops any pending callback for seq, e.g. once it has been
// cumulatively acknowledged.
func (s *Scheduler) Cancel(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[seq]; ok {
		t.Stop()
		delete(s.timers, seq)
	}
}

// Close stops every pending callback and prevents new ones from being
// scheduled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for seq, t := range s.timers {
		t.Stop()
		delete(s.timers, seq)
	}
}

// IsStale reports whether a timeout callback that fired for a packet
// last sent at lastSent, against a retransmission timeout of rto,
// arrived for a send that has effectively already been superseded —
// i.e. the packet was sent again more recently than 0.9*rto ago, so
// this particular timer is answering an out-of-date question.
func IsStale(lastSent time.Time, rto time.Duration) bool {
	return time.Since(lastSent) < time.Duration(0.9*float64(rto))
}
