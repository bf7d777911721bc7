package receiver

import (
	"testing"
	"time"

	"github.com/kestrelnet/rft/internal/frame"
	"github.com/kestrelnet/rft/internal/transport"
)

func newLinkedPair() (client, server *transport.SimChannel) {
	fwd := transport.NewSimLink(0, 0, 0, 0, 100)
	back := transport.NewSimLink(0, 0, 0, 0, 200)
	return transport.NewSimChannelPair(fwd, back)
}

func TestReceiveReassemblesInOrderFrames(t *testing.T) {
	sender, recv := newLinkedPair()
	defer sender.Close()
	defer recv.Close()

	total := uint16(3)
	go func() {
		sender.Send(frame.EncodeData(0, total, []byte("aaa")))
		sender.Send(frame.EncodeData(1, total, []byte("bbb")))
		sender.Send(frame.EncodeData(2, total, []byte("ccc")))
	}()

	e := &Engine{AckIdle: 30 * time.Millisecond}
	done := make(chan struct{})
	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := e.Receive(done, recv)
		resultCh <- r
		errCh <- err
	}()

	select {
	case r := <-resultCh:
		if err := <-errCh; err != nil {
			t.Fatalf("Receive error: %v", err)
		}
		if string(r.Data) != "aaabbbccc" {
			t.Errorf("Data = %q, want %q", r.Data, "aaabbbccc")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not complete")
	}
}

func TestReceiveHandlesOutOfOrderAndDuplicates(t *testing.T) {
	sender, recv := newLinkedPair()
	defer sender.Close()
	defer recv.Close()

	total := uint16(3)
	go func() {
		sender.Send(frame.EncodeData(2, total, []byte("ccc")))
		sender.Send(frame.EncodeData(2, total, []byte("ccc"))) // duplicate
		sender.Send(frame.EncodeData(0, total, []byte("aaa")))
		sender.Send(frame.EncodeData(1, total, []byte("bbb")))
	}()

	e := &Engine{AckIdle: 30 * time.Millisecond}
	done := make(chan struct{})
	resultCh := make(chan *Result, 1)
	go func() {
		r, _ := e.Receive(done, recv)
		resultCh <- r
	}()

	select {
	case r := <-resultCh:
		if string(r.Data) != "aaabbbccc" {
			t.Errorf("Data = %q, want %q", r.Data, "aaabbbccc")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not complete")
	}
}

func TestReceiveEmitsAckAfterEachFrame(t *testing.T) {
	sender, recv := newLinkedPair()
	defer sender.Close()
	defer recv.Close()

	total := uint16(2)
	e := &Engine{AckIdle: 30 * time.Millisecond}
	done := make(chan struct{})
	go e.Receive(done, recv)
	sender.Send(frame.EncodeData(0, total, []byte("aa")))

	raw, ok := sender.Receive(time.Now().Add(time.Second))
	if !ok {
		t.Fatalf("expected an ack in response to the first data frame")
	}
	decoded, err := frame.Decode(raw)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	ack, ok := decoded.(*frame.Ack)
	if !ok {
		t.Fatalf("expected an Ack frame, got %T", decoded)
	}
	if ack.Base != 1 {
		t.Errorf("ack.Base = %d, want 1", ack.Base)
	}

	sender.Send(frame.EncodeData(1, total, []byte("bb")))
	// keepalive re-acks of base 1 may arrive first; wait for the ack
	// answering the second frame.
	secondDeadline := time.Now().Add(time.Second)
	gotSecond := false
	for !gotSecond {
		raw, ok := sender.Receive(secondDeadline)
		if !ok {
			break
		}
		if decoded, err := frame.Decode(raw); err == nil {
			if a, isAck := decoded.(*frame.Ack); isAck && a.Base == 2 {
				gotSecond = true
			}
		}
	}
	if !gotSecond {
		t.Errorf("expected an ack with base 2 in response to the second data frame")
	}
	close(done)
}

func TestReceiveDropsMismatchedTotalFrames(t *testing.T) {
	sender, recv := newLinkedPair()
	defer sender.Close()
	defer recv.Close()

	total := uint16(2)
	// passes its own checksum fine, but disagrees with the total the
	// first frame already established — must be treated as corrupt.
	mismatched := frame.EncodeData(1, total+1, []byte("x"))

	go func() {
		sender.Send(frame.EncodeData(0, total, []byte("a")))
		sender.Send(mismatched)
		sender.Send(frame.EncodeData(1, total, []byte("b")))
	}()

	e := &Engine{AckIdle: 30 * time.Millisecond}
	done := make(chan struct{})
	resultCh := make(chan *Result, 1)
	go func() {
		r, _ := e.Receive(done, recv)
		resultCh <- r
	}()

	select {
	case r := <-resultCh:
		if string(r.Data) != "ab" {
			t.Errorf("Data = %q, want %q (mismatched-total frame should have been discarded)", r.Data, "ab")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not complete")
	}
}

func TestReceiveDropsCorruptFrames(t *testing.T) {
	sender, recv := newLinkedPair()
	defer sender.Close()
	defer recv.Close()

	total := uint16(1)
	good := frame.EncodeData(0, total, []byte("z"))
	corrupt := append([]byte(nil), good...)
	corrupt[1] ^= 0xFF // corrupt the sequence field without fixing the xor byte

	go func() {
		sender.Send(corrupt)
		sender.Send(good)
	}()

	e := &Engine{AckIdle: 30 * time.Millisecond}
	done := make(chan struct{})
	resultCh := make(chan *Result, 1)
	go func() {
		r, _ := e.Receive(done, recv)
		resultCh <- r
	}()

	select {
	case r := <-resultCh:
		if string(r.Data) != "z" {
			t.Errorf("Data = %q, want %q", r.Data, "z")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not complete despite a valid frame arriving")
	}
}
