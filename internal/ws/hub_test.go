package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// newHubTestServer starts an httptest.Server that upgrades to WebSocket
// and registers the connection in the hub under the userId query param.
func newHubTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept error: %v", err)
			return
		}

		client := &Client{
			conn:   conn,
			id:     generateConnID(),
			userID: r.URL.Query().Get("userId"),
		}
		hub.Register(client)
		defer hub.Unregister(client)

		// Keep reading to hold the connection open.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

// waitForEvent reads envelopes until one with the given type arrives.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == event {
			return env
		}
	}
	t.Fatalf("timed out waiting for %s", event)
	return Envelope{}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != n {
		t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
	}
}

func TestHubRegisterBroadcastsOnlineSnapshot(t *testing.T) {
	hub := NewHub()
	ts := newHubTestServer(t, hub)
	defer ts.Close()

	conn := dialWS(t, ts.URL+"?userId=alice")
	defer conn.Close(websocket.StatusNormalClosure, "")

	env := waitForEvent(t, conn, EventOnlineUsers)
	var online []string
	if err := json.Unmarshal(env.Payload, &online); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(online) != 1 || online[0] != "alice" {
		t.Fatalf("expected [alice], got %v", online)
	}
}

func TestHubUnregisterBroadcastsShrunkSnapshot(t *testing.T) {
	hub := NewHub()
	ts := newHubTestServer(t, hub)
	defer ts.Close()

	connA := dialWS(t, ts.URL+"?userId=alice")
	defer connA.Close(websocket.StatusNormalClosure, "")
	connB := dialWS(t, ts.URL+"?userId=bob")
	waitForClients(t, hub, 2)

	connB.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 1)

	// alice eventually sees a snapshot without bob.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env := waitForEvent(t, connA, EventOnlineUsers)
		var online []string
		json.Unmarshal(env.Payload, &online)
		if len(online) == 1 && online[0] == "alice" {
			return
		}
	}
	t.Fatal("never saw a snapshot without bob")
}

func TestHubNotifyUserIsTargeted(t *testing.T) {
	hub := NewHub()
	ts := newHubTestServer(t, hub)
	defer ts.Close()

	connA := dialWS(t, ts.URL+"?userId=alice")
	defer connA.Close(websocket.StatusNormalClosure, "")
	connB := dialWS(t, ts.URL+"?userId=bob")
	defer connB.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 2)

	if !hub.NotifyUser("bob", "unreadCountsUpdated", map[string]int{"alice": 2}) {
		t.Fatal("expected bob to be reachable")
	}

	env := waitForEvent(t, connB, "unreadCountsUpdated")
	var counts map[string]int
	if err := json.Unmarshal(env.Payload, &counts); err != nil {
		t.Fatalf("unmarshal counts: %v", err)
	}
	if counts["alice"] != 2 {
		t.Fatalf("expected alice:2, got %v", counts)
	}

	// alice must not receive the targeted event; a broadcast right after
	// acts as a fence on her ordered connection stream.
	hub.BroadcastAll("fence", struct{}{})
	env = waitForEvent(t, connA, "fence")
	if env.Type != "fence" {
		t.Fatalf("expected fence, got %s", env.Type)
	}
}

func TestHubNotifyUnknownUser(t *testing.T) {
	hub := NewHub()
	if hub.NotifyUser("ghost", "unreadCountsUpdated", nil) {
		t.Fatal("expected NotifyUser to report unreachable")
	}
	if hub.Reachable("ghost") {
		t.Fatal("expected ghost to be unreachable")
	}
}

func TestHubAnonymousConnectionReceivesGlobals(t *testing.T) {
	hub := NewHub()
	ts := newHubTestServer(t, hub)
	defer ts.Close()

	conn := dialWS(t, ts.URL) // no userId
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 1)

	// The anonymous connection still gets the snapshot broadcast, which
	// must be empty: it was never registered in presence.
	env := waitForEvent(t, conn, EventOnlineUsers)
	var online []string
	json.Unmarshal(env.Payload, &online)
	if len(online) != 0 {
		t.Fatalf("expected empty snapshot, got %v", online)
	}

	hub.BroadcastAll("newMessage", map[string]string{"id": "m1"})
	env = waitForEvent(t, conn, "newMessage")
	if env.Type != "newMessage" {
		t.Fatalf("expected newMessage, got %s", env.Type)
	}
}

func TestHubSendToConnUnknown(t *testing.T) {
	hub := NewHub()
	if hub.SendToConn("nope", "webrtc-call-ended", struct{}{}) {
		t.Fatal("expected SendToConn to fail for unknown connection")
	}
}
