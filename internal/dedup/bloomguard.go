// Package dedup tracks, per transfer, how many distinct sequence
// numbers have been seen and how many arrivals were confirmed
// duplicates (the sender retransmitted something the receiver already
// has, or the link itself duplicated a datagram) — counters the
// receiver engine exposes through metrics.DedupCollector. The
// receiver's own reorder table is already an O(1) exact check, so
// Guard is not a gate in front of it; MaybeSeen is a correct,
// independently useful probabilistic membership probe (no false
// negatives), but callers with an O(1) exact structure of their own
// should keep using that as the source of truth and use Guard purely
// for the seen/duplicate counts.
package dedup

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// falsePositiveRate governs the filter's size for a given expected
// item count; 1-in-10,000 keeps the filter small while rarely sending
// a genuinely new frame through the slow exact-table path unnecessarily.
const falsePositiveRate = 0.0001

// Guard is a per-transfer duplicate-sequence-number filter. It never
// produces a false negative (a frame it has actually marked is always
// reported seen), so it is safe to use ahead of an exact check but
// never as a replacement for one — a false positive only costs an
// extra table lookup, never a dropped frame.
type Guard struct {
	mu         sync.Mutex
	bloom      *bloom.BloomFilter
	seen       uint64
	duplicates uint64
}

// NewGuard returns a Guard sized for expectedFrames distinct sequence
// numbers, the total frame count of the transfer it is guarding.
func NewGuard(expectedFrames int) *Guard {
	if expectedFrames < 1 {
		expectedFrames = 1
	}
	return &Guard{
		bloom: bloom.NewWithEstimates(uint(expectedFrames), falsePositiveRate),
	}
}

// MaybeSeen reports whether seq has probably already been marked. A
// false result is certain; a true result must still be confirmed
// against the caller's own exact state.
func (g *Guard) MaybeSeen(seq uint16) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bloom.Test(seqKey(seq))
}

// Mark records seq as seen.
func (g *Guard) Mark(seq uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bloom.Add(seqKey(seq))
	g.seen++
}

// Count returns how many times Mark has been called. Mark does not
// dedup, so this equals the number of distinct sequence numbers only
// when callers mark each one once.
func (g *Guard) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen
}

// MarkDuplicate records that a caller confirmed a frame the guard
// flagged as MaybeSeen was in fact a retransmission or link-level
// duplicate, not a false positive.
func (g *Guard) MarkDuplicate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.duplicates++
}

// Duplicates returns how many confirmed duplicate frames MarkDuplicate
// has recorded.
func (g *Guard) Duplicates() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.duplicates
}

func seqKey(seq uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], seq)
	return b[:]
}
