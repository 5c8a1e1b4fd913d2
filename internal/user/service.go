// Package user manages accounts: creation, password verification and the
// in-memory cache the rest of the engine reads from.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

// DefaultAdminPassword is the bootstrap password of the built-in admin. It is
// expected to be changed right after first start.
const DefaultAdminPassword = "admin"

// Service manages users with an in-memory cache backed by storage.
type Service struct {
	store storage.Store
	log   *slog.Logger

	mu    sync.RWMutex
	users map[string]*types.User
}

func NewService(store storage.Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With("service", "user"),
		users: make(map[string]*types.User),
	}
}

// Start loads the cache and makes sure the admin account exists.
func (s *Service) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}
	if !s.Has(types.AdminUsername) {
		if _, err := s.Create(ctx, types.AdminUsername, DefaultAdminPassword); err != nil {
			return fmt.Errorf("ensure admin user: %w", err)
		}
	}
	s.log.Debug("user service started", "user_count", len(s.users))
	return nil
}

func (s *Service) reload(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*types.User, len(users))
	for _, u := range users {
		s.users[u.Username] = u
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, username string) (*types.User, error) {
	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.users[username] = u
	s.mu.Unlock()
	return u, nil
}

// Get returns the cached user.
func (s *Service) Get(username string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, errs.NotFound("user %q", username)
	}
	return u, nil
}

// Has reports whether the user exists.
func (s *Service) Has(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// List returns all users sorted by username.
func (s *Service) List() []*types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Create adds a user with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, username, password string) (*types.User, error) {
	if s.Has(username) {
		return nil, errs.Validation("user %q already exists", username)
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &types.User{Username: username, PasswordHash: string(hash), CreatedAt: time.Now().UTC()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Debug("user created", "username", username)
	return s.refresh(ctx, username)
}

// VerifyPassword reports whether password matches the stored hash.
func (s *Service) VerifyPassword(username, password string) bool {
	u, err := s.Get(username)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ChangePassword swaps the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if _, err := s.Get(username); err != nil {
		return err
	}
	if !s.VerifyPassword(username, oldPassword) {
		return errs.Validation("invalid current password")
	}
	return s.SetPassword(ctx, username, newPassword)
}

// SetPassword replaces the password without verifying the old one. Reserved
// for administrative resets and import.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	_, err = s.refresh(ctx, username)
	return err
}

// Delete removes a user. The admin account and users with authored content
// cannot be removed.
func (s *Service) Delete(ctx context.Context, username string) error {
	if username == types.AdminUsername {
		return errs.Validation("cannot delete admin user")
	}
	if !s.Has(username) {
		return errs.NotFound("user %q", username)
	}
	authored, err := s.store.CountAuthored(ctx, username)
	if err != nil {
		return err
	}
	if authored > 0 {
		return errs.Validation("user %q has authored content and cannot be deleted", username)
	}
	if err := s.store.DeleteUser(ctx, username); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.users, username)
	s.mu.Unlock()
	s.log.Debug("user deleted", "username", username)
	return nil
}

// ValidateUsername requires a slug-shaped username.
func ValidateUsername(username string) error {
	if !types.ValidSlug(username) {
		return errs.Validation("username must be a valid slug (lowercase alphanumeric with hyphens)")
	}
	return nil
}

// ValidatePassword requires at least 2 characters and no whitespace.
func ValidatePassword(password string) error {
	if len(password) < 2 {
		return errs.Validation("password must be at least 2 characters long")
	}
	if strings.IndexFunc(password, unicode.IsSpace) >= 0 {
		return errs.Validation("password cannot contain whitespace")
	}
	return nil
}
