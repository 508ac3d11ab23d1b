// Package server wires the sync core behind its HTTP and WebSocket
// surface.
package server

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/isksamiul2/chatty-backend/internal/delivery"
	"github.com/isksamiul2/chatty-backend/internal/media"
	"github.com/isksamiul2/chatty-backend/internal/message"
	"github.com/isksamiul2/chatty-backend/internal/ratelimit"
	"github.com/isksamiul2/chatty-backend/internal/signal"
	"github.com/isksamiul2/chatty-backend/internal/user"
	"github.com/isksamiul2/chatty-backend/internal/ws"
)

// Server is the HTTP server fronting the sync core.
type Server struct {
	addr       string
	mux        *http.ServeMux
	authSecret string

	store     message.Store
	uploader  media.Uploader
	directory user.Directory
	limiter   *ratelimit.IPLimiter
	connOpts  []ws.ConnManagerOption

	hub      *ws.Hub
	delivery *delivery.Service
	relay    *signal.Relay
}

// Option configures a Server.
type Option func(*Server)

// WithRedis stores messages in Redis instead of memory.
func WithRedis(client redis.Cmdable) Option {
	return func(s *Server) {
		s.store = message.NewRedisStore(client)
	}
}

// WithAuthSecret enables JWT bearer-token identity extraction using the
// given HMAC secret. Without it, the X-User-ID header is trusted.
func WithAuthSecret(secret string) Option {
	return func(s *Server) {
		s.authSecret = secret
	}
}

// WithUsers seeds the user directory.
func WithUsers(users []user.User) Option {
	return func(s *Server) {
		s.directory = user.NewMemoryDirectory(users)
	}
}

// WithUploader sets the media upload backend.
func WithUploader(u media.Uploader) Option {
	return func(s *Server) {
		s.uploader = u
	}
}

// WithSendRateLimit limits message sends per client IP.
func WithSendRateLimit(max int, window time.Duration) Option {
	return func(s *Server) {
		s.limiter = ratelimit.NewIPLimiter(max, window)
	}
}

// WithConnOptions passes options to the WebSocket connection manager.
func WithConnOptions(opts ...ws.ConnManagerOption) Option {
	return func(s *Server) {
		s.connOpts = opts
	}
}

// New creates a Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		mux:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = message.NewMemoryStore()
	}
	if s.uploader == nil {
		s.uploader = media.NewMemoryUploader()
	}
	if s.directory == nil {
		s.directory = user.NewMemoryDirectory(nil)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewIPLimiter(30, time.Minute)
	}

	s.hub = ws.NewHub(s.connOpts...)
	s.delivery = delivery.NewService(s.store, s.hub, s.uploader)
	s.relay = signal.NewRelay(s.hub)

	s.routes()
	return s
}

// Hub returns the WebSocket hub, mainly for tests.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Shutdown closes every live WebSocket connection.
func (s *Server) Shutdown() {
	s.hub.ConnMgr().Shutdown()
}

func (s *Server) routes() {
	s.mux.Handle("GET /ws", ws.NewHandler(s.hub, s.delivery, s.relay))

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/messages/users", s.handleListUsers)
	s.mux.HandleFunc("GET /api/messages/unread-counts", s.handleUnreadCounts)
	s.mux.HandleFunc("GET /api/messages/{id}", s.handleGetMessages)
	s.mux.HandleFunc("POST /api/messages/send/{id}", s.handleSendMessage)
	s.mux.HandleFunc("PATCH /api/messages/status/{messageId}", s.handleUpdateStatus)
}
