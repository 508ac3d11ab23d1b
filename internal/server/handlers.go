package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/isksamiul2/chatty-backend/internal/delivery"
	"github.com/isksamiul2/chatty-backend/internal/message"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.ConnMgr().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"activeConnections": stats.Active,
		"onlineUsers":       s.hub.OnlineUsers(),
		"rejected":          stats.Rejected,
		"droppedMessages":   stats.DroppedMessages,
		"idleReaped":        stats.IdleReaped,
	})
}

// handleListUsers serves the sidebar: everyone except the caller.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	me, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	users, err := s.directory.ListOthers(r.Context(), me)
	if err != nil {
		log.Printf("server: list users: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUnreadCounts(w http.ResponseWriter, r *http.Request) {
	me, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	counts, err := s.delivery.ComputeUnread(r.Context(), me)
	if err != nil {
		log.Printf("server: unread counts for %s: %v", me, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleGetMessages returns the conversation with the user in the path
// and marks their messages to the caller as seen.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	me, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	other := r.PathValue("id")

	msgs, err := s.delivery.Conversation(r.Context(), me, other)
	if err != nil {
		log.Printf("server: conversation %s/%s: %v", me, other, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	me, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}

	var in delivery.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receiver := r.PathValue("id")

	msg, err := s.delivery.Send(r.Context(), me, receiver, in)
	if err != nil {
		log.Printf("server: send %s to %s: %v", me, receiver, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.identify(r); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		Status message.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.delivery.SetStatus(r.Context(), r.PathValue("messageId"), body.Status)
	switch {
	case errors.Is(err, delivery.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	case errors.Is(err, message.ErrNotFound):
		writeError(w, http.StatusNotFound, "message not found")
		return
	case err != nil:
		log.Printf("server: update status: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
