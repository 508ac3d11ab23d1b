package signal

import (
	"encoding/json"
	"sync"
	"testing"
)

// sentEvent records one delivery through the fake sender.
type sentEvent struct {
	connID  string
	event   string
	payload any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeSender) SendToConn(connID, event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{connID: connID, event: event, payload: payload})
	return true
}

func (f *fakeSender) to(connID string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.connID == connID {
			out = append(out, e)
		}
	}
	return out
}

func TestStartCallToRegisteredTarget(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)

	relay.Register("alice", "conn-a")
	relay.Register("bob", "conn-b")

	relay.StartCall("alice", "bob", "video", "conn-a")

	got := sender.to("conn-b")
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 event to bob, got %d", len(got))
	}
	if got[0].event != EventIncomingCall {
		t.Fatalf("expected %s, got %s", EventIncomingCall, got[0].event)
	}
	call := got[0].payload.(IncomingCall)
	if call.From != "alice" || call.CallType != "video" {
		t.Errorf("unexpected incoming call payload: %+v", call)
	}
	if len(sender.to("conn-a")) != 0 {
		t.Fatal("caller must not receive anything on a successful offer")
	}
}

func TestStartCallToUnregisteredTarget(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)

	relay.Register("alice", "conn-a")

	relay.StartCall("alice", "bob", "audio", "conn-a")

	got := sender.to("conn-a")
	if len(got) != 1 {
		t.Fatalf("expected 1 event to the caller, got %d", len(got))
	}
	if got[0].event != EventUserUnavailable {
		t.Fatalf("expected %s, got %s", EventUserUnavailable, got[0].event)
	}
	if got[0].payload.(Unavailable).UserID != "bob" {
		t.Errorf("unexpected unavailable payload: %+v", got[0].payload)
	}
}

func TestCallLifecycleRelays(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)
	relay.Register("alice", "conn-a")

	relay.CallAccepted("alice")
	relay.CallRejected("alice")
	relay.CallEnded("alice")

	got := sender.to("conn-a")
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	want := []string{EventCallAccepted, EventCallRejected, EventCallEnded}
	for i, e := range got {
		if e.event != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.event)
		}
	}
}

func TestRelayToUnregisteredSilentlyDrops(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)

	relay.CallAccepted("ghost")
	relay.ICECandidate("ghost", json.RawMessage(`{}`))
	relay.SessionDescription("ghost", json.RawMessage(`{}`))

	if len(sender.sent) != 0 {
		t.Fatalf("expected silent drops, got %d events", len(sender.sent))
	}
}

func TestICEAndSDPRelayVerbatim(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)
	relay.Register("bob", "conn-b")

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 UDP 123 10.0.0.1 5000 typ host"}`)
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)

	relay.ICECandidate("bob", candidate)
	relay.SessionDescription("bob", sdp)

	got := sender.to("conn-b")
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if string(got[0].payload.(ICECandidate).Candidate) != string(candidate) {
		t.Errorf("candidate not relayed verbatim")
	}
	if string(got[1].payload.(SessionDescription).SDP) != string(sdp) {
		t.Errorf("sdp not relayed verbatim")
	}
}

func TestUnregisterConnRemovesRegistration(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)
	relay.Register("alice", "conn-a")

	relay.UnregisterConn("conn-a")

	if relay.Registered("alice") {
		t.Fatal("expected alice to be unregistered after disconnect")
	}
	relay.CallEnded("alice")
	if len(sender.sent) != 0 {
		t.Fatal("expected no delivery after unregister")
	}
}

func TestReRegisterReplacesConnection(t *testing.T) {
	sender := &fakeSender{}
	relay := NewRelay(sender)

	relay.Register("alice", "conn-1")
	relay.Register("alice", "conn-2")

	relay.CallAccepted("alice")

	if len(sender.to("conn-1")) != 0 {
		t.Fatal("stale connection must not receive events")
	}
	if len(sender.to("conn-2")) != 1 {
		t.Fatal("live connection should receive the event")
	}
}
