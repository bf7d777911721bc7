package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/singleflight"
)

// MaxFrameSize bounds the UDP read buffer. It comfortably covers the
// largest ACK or DATA frame the protocol ever produces.
const MaxFrameSize = 2048

// listenGroup dedups concurrent ListenUDP calls for the same local
// address, so a caller that retries a slow or timed-out setup from
// another goroutine can't open two sockets bound to the same port.
var listenGroup singleflight.Group

// UDPChannel is a Channel backed by a connected net.UDPConn — one
// remote peer per channel, exactly as the sender/receiver engines
// expect. The peer address is fixed when the channel is opened
// (DialUDP's remote, or ListenUDP's first sender); roles are then
// exchanged over it by internal/handshake.
type UDPChannel struct {
	conn    *net.UDPConn
	pending [][]byte
}

// DialUDP opens a UDPChannel to remote, binding an ephemeral local
// port. Used by the sending side.
func DialUDP(remote *net.UDPAddr) (*UDPChannel, error) {
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp: %w", err)
	}
	return &UDPChannel{conn: conn}, nil
}

// ListenUDP opens a UDPChannel bound to local, then connects it to the
// first peer that sends it a datagram. Used by the receiving side,
// which does not know its sender's address ahead of time. Concurrent
// calls for the same local address share one underlying setup.
func ListenUDP(local *net.UDPAddr) (*UDPChannel, error) {
	v, err, _ := listenGroup.Do(local.String(), func() (interface{}, error) {
		return listenUDP(local)
	})
	if err != nil {
		return nil, err
	}
	return v.(*UDPChannel), nil
}

func listenUDP(local *net.UDPAddr) (*UDPChannel, error) {
	pc, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}

	buf := make([]byte, MaxFrameSize)
	n, peer, err := pc.ReadFromUDP(buf)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: await first datagram: %w", err)
	}

	// the listening socket must release local before a connected
	// socket can bind the same address.
	pc.Close()
	conn, err := net.DialUDP("udp", local, peer)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to peer: %w", err)
	}

	// the first datagram was already consumed off the wire above;
	// hand it to the first caller of Receive instead of losing it.
	ch := &UDPChannel{conn: conn, pending: [][]byte{buf[:n]}}
	return ch, nil
}

// pending holds a frame ListenUDP already read off the wire before the
// caller had a channel to read it with.
func (c *UDPChannel) popPending() ([]byte, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, true
}

func (c *UDPChannel) Send(frame []byte) error {
	_, err := c.conn.Write(frame)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (c *UDPChannel) Receive(deadline time.Time) ([]byte, bool) {
	if f, ok := c.popPending(); ok {
		return f, true
	}

	if deadline.IsZero() {
		c.conn.SetReadDeadline(time.Time{})
	} else {
		c.conn.SetReadDeadline(deadline)
	}

	buf := make([]byte, MaxFrameSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func (c *UDPChannel) Close() error {
	return c.conn.Close()
}
