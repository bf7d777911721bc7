package handshake

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelnet/rft/internal/transport"
)

func TestAnnounceCompletesBothSides(t *testing.T) {
	fwd := transport.NewSimLink(0, 0, 0, 0, 1)
	back := transport.NewSimLink(0, 0, 0, 0, 2)
	a, b := transport.NewSimChannelPair(fwd, back)
	defer a.Close()
	defer b.Close()

	senderID := uuid.New()
	receiverID := uuid.New()

	senderSessCh := make(chan *Session, 1)
	receiverSessCh := make(chan *Session, 1)

	go func() {
		s, err := Announce(a, RoleSender, senderID, 20*time.Millisecond, time.Now().Add(2*time.Second))
		if err != nil {
			t.Errorf("sender Announce: %v", err)
		}
		senderSessCh <- s
	}()
	go func() {
		s, err := Announce(b, RoleReceiver, receiverID, 20*time.Millisecond, time.Now().Add(2*time.Second))
		if err != nil {
			t.Errorf("receiver Announce: %v", err)
		}
		receiverSessCh <- s
	}()

	senderSess := <-senderSessCh
	receiverSess := <-receiverSessCh

	if senderSess.PeerRole != RoleReceiver {
		t.Errorf("sender saw peer role %v, want RoleReceiver", senderSess.PeerRole)
	}
	if receiverSess.PeerRole != RoleSender {
		t.Errorf("receiver saw peer role %v, want RoleSender", receiverSess.PeerRole)
	}
	if senderSess.ID != receiverID {
		t.Errorf("sender's recorded peer id = %v, want %v", senderSess.ID, receiverID)
	}
}

func TestAnnounceTimesOutWithoutPeer(t *testing.T) {
	fwd := transport.NewSimLink(0, 0, 0, 0, 3)
	back := transport.NewSimLink(0, 0, 0, 0, 4)
	a, _ := transport.NewSimChannelPair(fwd, back)
	defer a.Close()

	_, err := Announce(a, RoleSender, uuid.New(), 10*time.Millisecond, time.Now().Add(50*time.Millisecond))
	if err == nil {
		t.Fatalf("expected a timeout error with no peer announcing")
	}
}
