// Package signal relays WebRTC call-setup traffic between two users. It
// keeps its own registry, disjoint from chat presence: a user can be
// chat-present without being call-registered. Relays are best-effort and
// one hop; nothing is queued or retried.
package signal

import (
	"encoding/json"
	"log"

	"github.com/isksamiul2/chatty-backend/internal/presence"
)

// Server to client signaling event names.
const (
	EventIncomingCall       = "webrtc-incoming-call"
	EventUserUnavailable    = "webrtc-user-unavailable"
	EventCallAccepted       = "webrtc-call-accepted"
	EventCallRejected       = "webrtc-call-rejected"
	EventCallEnded          = "webrtc-call-ended"
	EventICECandidate       = "webrtc-ice-candidate"
	EventSessionDescription = "webrtc-session-description"
)

// ConnSender delivers an event to one specific connection. Signaling is
// addressed by connection, not by chat presence, so unrelated parties
// never see another pair's call traffic.
type ConnSender interface {
	SendToConn(connID, event string, payload any) bool
}

// IncomingCall notifies the callee that a call is being offered.
type IncomingCall struct {
	From     string `json:"from"`
	CallType string `json:"callType"`
}

// Unavailable tells the caller the callee is not call-registered.
type Unavailable struct {
	UserID string `json:"userId"`
}

// ICECandidate carries one ICE candidate verbatim.
type ICECandidate struct {
	Candidate json.RawMessage `json:"candidate"`
}

// SessionDescription carries an SDP offer or answer verbatim.
type SessionDescription struct {
	SDP json.RawMessage `json:"sdp"`
}

// Relay forwards call-lifecycle and SDP/ICE messages between exactly two
// registered parties.
type Relay struct {
	reg    *presence.Registry
	sender ConnSender
}

// NewRelay creates a relay emitting through sender.
func NewRelay(sender ConnSender) *Relay {
	return &Relay{
		reg:    presence.NewRegistry(),
		sender: sender,
	}
}

// Register upserts the call registration for userID on connID.
func (r *Relay) Register(userID, connID string) {
	r.reg.Register(userID, connID)
	log.Printf("signal: user %s registered on connection %s", userID, connID)
}

// StartCall offers a call from one user to another. When the callee is
// registered it receives an incoming-call notification; otherwise the
// caller's own connection is told the target is unavailable. Being
// unreachable is a steady-state outcome here, not an error.
func (r *Relay) StartCall(from, to, callType, callerConnID string) {
	if connID, ok := r.reg.Lookup(to); ok {
		r.sender.SendToConn(connID, EventIncomingCall, IncomingCall{From: from, CallType: callType})
		log.Printf("signal: call from %s to %s (%s)", from, to, callType)
		return
	}
	r.sender.SendToConn(callerConnID, EventUserUnavailable, Unavailable{UserID: to})
}

// CallAccepted relays acceptance to the caller; dropped if unregistered.
func (r *Relay) CallAccepted(to string) {
	r.relay(to, EventCallAccepted, struct{}{})
}

// CallRejected relays rejection to the caller; dropped if unregistered.
func (r *Relay) CallRejected(to string) {
	r.relay(to, EventCallRejected, struct{}{})
}

// CallEnded relays hang-up to the peer; dropped if unregistered.
func (r *Relay) CallEnded(to string) {
	r.relay(to, EventCallEnded, struct{}{})
}

// ICECandidate relays one ICE candidate to the peer verbatim.
func (r *Relay) ICECandidate(to string, candidate json.RawMessage) {
	r.relay(to, EventICECandidate, ICECandidate{Candidate: candidate})
}

// SessionDescription relays an SDP payload to the peer verbatim.
func (r *Relay) SessionDescription(to string, sdp json.RawMessage) {
	r.relay(to, EventSessionDescription, SessionDescription{SDP: sdp})
}

// UnregisterConn removes whichever user is registered on connID. Called
// on transport disconnect.
func (r *Relay) UnregisterConn(connID string) {
	r.reg.Unregister(connID)
}

// Registered reports whether userID currently has a call registration.
func (r *Relay) Registered(userID string) bool {
	_, ok := r.reg.Lookup(userID)
	return ok
}

func (r *Relay) relay(to, event string, payload any) {
	connID, ok := r.reg.Lookup(to)
	if !ok {
		return
	}
	r.sender.SendToConn(connID, event, payload)
}
