// Package session issues and validates login tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/user"
)

// Service manages login sessions with a read-through token cache.
type Service struct {
	store storage.Store
	users *user.Service
	log   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*types.Session
}

func NewService(store storage.Store, users *user.Service, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		users:    users,
		log:      log.With("service", "session"),
		sessions: make(map[string]*types.Session),
	}
}

// Login verifies credentials and returns a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if !s.users.VerifyPassword(username, password) {
		return "", errs.Authentication("invalid username or password")
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	sess := &types.Session{AuthToken: token, Username: username, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	s.log.Debug("session created", "username", username)
	return token, nil
}

// AuthenticatedUser resolves a token to its user, rejecting expired sessions.
func (s *Service) AuthenticatedUser(ctx context.Context, token string) (*types.User, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		var err error
		sess, err = s.store.GetSession(ctx, token)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, errs.Authentication("invalid session token")
			}
			return nil, err
		}
		s.mu.Lock()
		s.sessions[token] = sess
		s.mu.Unlock()
	}

	if time.Since(sess.CreatedAt) > types.SessionTTL {
		if err := s.Logout(ctx, token); err != nil {
			return nil, err
		}
		return nil, errs.Authentication("session expired")
	}

	u, err := s.users.Get(sess.Username)
	if err != nil {
		return nil, errs.Authentication("session user no longer exists")
	}
	return u, nil
}

// Logout invalidates a token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// CleanupExpired drops sessions past their TTL from storage and the cache.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-types.SessionTTL)
	n, err := s.store.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.log.Debug("expired sessions removed", "count", n)
	}
	return n, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
