package auth

import (
	"context"
	"sync"

	"github.com/satriahrh/konsulta/domain/repositories"
)

// SessionToken holds the clinician's current bearer token for one
// consultation. Every authenticated request refreshes it, so outbound calls
// always carry the latest token.
type SessionToken struct {
	mu    sync.RWMutex
	token string
}

var _ repositories.TokenSource = (*SessionToken)(nil)

// NewSessionToken creates a session token holder
func NewSessionToken(token string) *SessionToken {
	return &SessionToken{token: token}
}

// Set replaces the current token
func (s *SessionToken) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token implements repositories.TokenSource
func (s *SessionToken) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrMissingToken
	}
	return s.token, nil
}
