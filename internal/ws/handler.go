package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/isksamiul2/chatty-backend/internal/signal"
	"nhooyr.io/websocket"
)

// Delivery is the subset of the delivery service the transport invokes.
// The dependency is one-way: delivery never calls back into this
// package except through its Notifier primitives.
type Delivery interface {
	Reconcile(ctx context.Context, userID string) error
	MarkSeen(ctx context.Context, senderID, receiverID string) (int, error)
}

// Handler upgrades HTTP requests to WebSockets and runs each client's
// event loop. The user identity arrives as the userId handshake query
// parameter; without it the connection stays anonymous.
type Handler struct {
	hub      *Hub
	delivery Delivery
	relay    *signal.Relay
}

// NewHandler creates a WebSocket Handler.
func NewHandler(hub *Hub, delivery Delivery, relay *signal.Relay) *Handler {
	return &Handler{
		hub:      hub,
		delivery: delivery,
		relay:    relay,
	}
}

// markSeenPayload is the client request to mark a conversation read.
type markSeenPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// registerPayload registers the user for call signaling.
type registerPayload struct {
	UserID string `json:"userId"`
}

// startCallPayload offers a call to another user.
type startCallPayload struct {
	To       string `json:"to"`
	From     string `json:"from"`
	CallType string `json:"callType"`
}

// targetPayload addresses a bare call-lifecycle relay.
type targetPayload struct {
	To string `json:"to"`
}

// icePayload carries an ICE candidate to relay.
type icePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

// sdpPayload carries a session description to relay.
type sdpPayload struct {
	To  string          `json:"to"`
	SDP json.RawMessage `json:"sdp"`
}

// ServeHTTP upgrades the connection and runs the read loop. Connect order
// matters: presence registration and the online broadcast happen before
// delivery reconciliation, so the reconciliation's targeted sends can see
// the new connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn:   conn,
		id:     generateConnID(),
		userID: r.URL.Query().Get("userId"),
	}
	log.Printf("ws: connection %s established (user %q)", client.id, client.userID)

	connCtx := h.hub.Register(client)
	if connCtx.Err() != nil {
		// Rejected by the connection manager; the socket is already
		// closed and nothing was registered.
		return
	}
	defer h.disconnect(client)

	if client.userID != "" {
		if err := h.delivery.Reconcile(r.Context(), client.userID); err != nil {
			log.Printf("ws: reconcile for %s: %v", client.userID, err)
		}
	}

	h.readLoop(r.Context(), connCtx, client)
}

// disconnect tears down both registries for a closed connection.
func (h *Handler) disconnect(client *Client) {
	h.hub.Unregister(client)
	h.relay.UnregisterConn(client.id)
	log.Printf("ws: connection %s closed (user %q)", client.id, client.userID)
}

// readLoop reads events from the client until the connection closes or
// the connection manager cancels connCtx.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		h.hub.ConnMgr().TouchActivity(client)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.dispatch(ctx, client, env)
	}
}

// dispatch routes one client event. Malformed payloads are dropped; the
// read loop keeps going.
func (h *Handler) dispatch(ctx context.Context, client *Client, env Envelope) {
	switch env.Type {
	case "markMessagesAsSeen":
		var p markSeenPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.SenderID == "" || p.ReceiverID == "" {
			return
		}
		if _, err := h.delivery.MarkSeen(ctx, p.SenderID, p.ReceiverID); err != nil {
			log.Printf("ws: mark seen from %s to %s: %v", p.SenderID, p.ReceiverID, err)
		}

	case "webrtc-register":
		var p registerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			return
		}
		h.relay.Register(p.UserID, client.id)

	case "webrtc-start-call":
		var p startCallPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.StartCall(p.From, p.To, p.CallType, client.id)

	case "webrtc-call-accepted":
		var p targetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.CallAccepted(p.To)

	case "webrtc-call-rejected":
		var p targetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.CallRejected(p.To)

	case "webrtc-call-ended":
		var p targetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.CallEnded(p.To)

	case "webrtc-ice-candidate":
		var p icePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.ICECandidate(p.To, p.Candidate)

	case "webrtc-session-description":
		var p sdpPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.relay.SessionDescription(p.To, p.SDP)
	}
}

func generateConnID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
