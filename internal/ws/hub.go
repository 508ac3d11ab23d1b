package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/isksamiul2/chatty-backend/internal/presence"
	"nhooyr.io/websocket"
)

// EventOnlineUsers is broadcast after every presence change and carries
// the full online-user snapshot.
const EventOnlineUsers = "getOnlineUsers"

// Client represents one connected WebSocket transport. userID is empty
// for anonymous connections, which receive global broadcasts but are
// never registered in presence.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
}

// Envelope is the JSON structure sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// encodeEvent wraps a payload in an Envelope and marshals it.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Payload: data})
}

// Hub owns the connected-client set and the presence registry, and
// implements the fan-out policy: delivery-state events go to everyone,
// presence snapshots go to everyone, and targeted events go to the one
// connection a user identity maps to.
type Hub struct {
	conns    *ConnManager
	presence *presence.Registry

	mu       sync.Mutex
	byConnID map[string]*Client
}

// NewHub creates a Hub with the given connection manager options.
func NewHub(opts ...ConnManagerOption) *Hub {
	return &Hub{
		conns:    NewConnManager(opts...),
		presence: presence.NewRegistry(),
		byConnID: make(map[string]*Client),
	}
}

// ConnMgr returns the connection manager for this hub.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// Register adds a client, records its presence when it carries a user
// identity, and broadcasts the updated online snapshot. The returned
// context is cancelled when the client is removed. A client the
// connection manager rejected (at capacity, or after shutdown) gets an
// already-cancelled context back and is never registered: letting it
// into presence would evict the user's live connection.
func (h *Hub) Register(c *Client) context.Context {
	ctx := h.conns.Add(c)
	if ctx.Err() != nil {
		return ctx
	}

	h.mu.Lock()
	h.byConnID[c.id] = c
	h.mu.Unlock()

	if c.userID != "" {
		h.presence.Register(c.userID, c.id)
	}
	h.BroadcastOnline()
	return ctx
}

// Unregister removes a client, drops its presence entry when it is
// still the live one for its user, and broadcasts the updated snapshot.
func (h *Hub) Unregister(c *Client) {
	h.conns.Remove(c)

	h.mu.Lock()
	delete(h.byConnID, c.id)
	h.mu.Unlock()

	h.presence.Unregister(c.id)
	h.BroadcastOnline()
}

// BroadcastOnline broadcasts the current online-user snapshot to every
// connected transport, anonymous ones included.
func (h *Hub) BroadcastOnline() {
	h.BroadcastAll(EventOnlineUsers, h.presence.Snapshot())
}

// OnlineUsers returns the sorted set of currently registered user IDs.
func (h *Hub) OnlineUsers() []string {
	return h.presence.Snapshot()
}

// BroadcastAll sends an event to every connected transport.
func (h *Hub) BroadcastAll(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s broadcast: %v", event, err)
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.byConnID))
	for _, c := range h.byConnID {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.conns.Send(c, data)
	}
}

// NotifyUser sends an event to the one connection mapped to userID.
// Returns false when the user is not reachable.
func (h *Hub) NotifyUser(userID, event string, payload any) bool {
	connID, ok := h.presence.Lookup(userID)
	if !ok {
		return false
	}
	return h.SendToConn(connID, event, payload)
}

// Reachable reports whether userID has a live presence entry.
func (h *Hub) Reachable(userID string) bool {
	_, ok := h.presence.Lookup(userID)
	return ok
}

// SendToConn sends an event to one specific connection. Returns false
// when the connection is gone or its send buffer is full.
func (h *Hub) SendToConn(connID, event string, payload any) bool {
	h.mu.Lock()
	c, ok := h.byConnID[connID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s event: %v", event, err)
		return false
	}
	return h.conns.Send(c, data)
}

// ClientCount returns the number of connected transports.
func (h *Hub) ClientCount() int {
	return h.conns.Count()
}
