package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errNoIdentity = errors.New("missing user identity")

// identify extracts the calling user's identity from the request.
// When an auth secret is configured, a Bearer token signed with it is
// required and the subject claim is the user ID. Otherwise the
// X-User-ID header is trusted; session issuance lives outside this
// service either way.
func (s *Server) identify(r *http.Request) (string, error) {
	if s.authSecret != "" {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return "", errNoIdentity
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return []byte(s.authSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return "", fmt.Errorf("invalid token: %w", err)
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return "", errNoIdentity
		}
		return sub, nil
	}

	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, nil
	}
	return "", errNoIdentity
}

// clientIP returns the remote IP without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
