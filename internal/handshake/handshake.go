// Package handshake implements the small role-announcement exchange
// the command-line binaries run before handing their channel to the
// sender or receiver engine. The core protocol has no notion of
// roles or sessions — spec's channel contract assumes both ends
// already know which one they are — so this is glue for cmd/, not
// part of the wire format the engines speak.
package handshake

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelnet/rft/internal/transport"
)

// helloKind marks a handshake frame. It is disjoint from
// frame.KindData (0x00) and frame.KindAck (0x01), so a handshake frame
// arriving late is never mistaken for a DATA or ACK frame by the
// engines it precedes.
const helloKind = 0xFE

// helloSize is kind(1) + role(1) + session id (16 bytes, RFC 4122).
const helloSize = 18

// Role identifies which side of a transfer a handshake participant
// plays.
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
)

// Session is the result of a completed handshake: both ends now agree
// on a session id, useful for correlating log lines and metrics
// across a transfer's sender and receiver.
type Session struct {
	ID        uuid.UUID
	LocalRole Role
	PeerRole  Role
}

// Announce sends this side's role and session id, then waits for the
// peer's own announcement, retrying its own announcement on every
// interval until the peer's arrives or deadline elapses. The session
// id in the returned Session is the id the peer announced, so each
// side records the other's id rather than a shared one.
func Announce(ch transport.Channel, role Role, sessionID uuid.UUID, interval time.Duration, deadline time.Time) (*Session, error) {
	mine := encode(role, sessionID)

	for {
		if err := ch.Send(mine); err != nil {
			return nil, fmt.Errorf("handshake: send: %w", err)
		}

		readDeadline := time.Now().Add(interval)
		if !deadline.IsZero() && readDeadline.After(deadline) {
			readDeadline = deadline
		}
		raw, ok := ch.Receive(readDeadline)
		if ok {
			if peerRole, peerID, ok := decode(raw); ok {
				return &Session{ID: peerID, LocalRole: role, PeerRole: peerRole}, nil
			}
			continue
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, fmt.Errorf("handshake: timed out waiting for peer")
		}
	}
}

func encode(role Role, id uuid.UUID) []byte {
	buf := make([]byte, helloSize)
	buf[0] = helloKind
	buf[1] = byte(role)
	copy(buf[2:], id[:])
	return buf
}

func decode(raw []byte) (Role, uuid.UUID, bool) {
	if len(raw) != helloSize || raw[0] != helloKind {
		return 0, uuid.UUID{}, false
	}
	var id uuid.UUID
	copy(id[:], raw[2:])
	return Role(raw[1]), id, true
}
