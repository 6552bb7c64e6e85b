package ims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aadithya-v/ims/store"
)

const (
	credentialsBucket = "credentials"
	credentialsKey    = "user"
)

// Credentials are the re-usable credentials submitted with server requests.
type Credentials struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

// User is an authenticated identity.
type User struct {
	Username    string      `json:"username"`
	Credentials Credentials `json:"credentials"`
}

func (u *User) String() string {
	return u.Username
}

// IsExpired returns true if the credentials have expired at now.
// Expiration itself counts as expired.
func (u *User) IsExpired(now time.Time) bool {
	return !now.Before(u.Credentials.Expiration)
}

func (u *User) validate() error {
	switch {
	case u.Username == "":
		return fmt.Errorf("%w: username", ErrMissingArgument)
	case u.Credentials.Token == "":
		return fmt.Errorf("%w: credentials token", ErrMissingArgument)
	case u.Credentials.Expiration.IsZero():
		return fmt.Errorf("%w: credentials expiration", ErrMissingArgument)
	}
	return nil
}

// Session holds the current authenticated user and keeps the durable
// copy in step with it.
// Session is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	kv       store.Store
	now      func() time.Time
	logger   *zap.Logger
	user     *User
	observer func()
}

// newSession loads the persisted user from kv.
// A missing or malformed record yields a session with no user.
func newSession(ctx context.Context, kv store.Store, now func() time.Time, logger *zap.Logger) (*Session, error) {
	s := &Session{kv: kv, now: now, logger: logger}

	data, err := kv.Get(ctx, credentialsBucket, credentialsKey)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("no stored credentials found")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ims: failed to load credentials: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		logger.Warn("ignoring unreadable stored credentials", zap.Error(err))
		return s, nil
	}
	if err := user.validate(); err != nil {
		logger.Warn("ignoring invalid stored credentials", zap.Error(err))
		return s, nil
	}

	logger.Debug("loaded stored credentials", zap.String("username", user.Username))
	s.user = &user
	return s, nil
}

// User returns the current user, or nil. The user may have expired
// credentials; use IsLive to check.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// SetUser replaces the current user. A nil user clears the session.
//
// The durable copy is written first, then the in-memory user is
// swapped, then the observer is notified. If the write fails nothing
// changes and the error is returned.
func (s *Session) SetUser(ctx context.Context, user *User) error {
	if user != nil {
		if err := user.validate(); err != nil {
			return err
		}
		user = &User{Username: user.Username, Credentials: user.Credentials}
	}

	s.mu.Lock()
	if err := s.persist(ctx, user); err != nil {
		s.mu.Unlock()
		return err
	}
	s.user = user
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer()
	}
	return nil
}

// clearToken clears the session only if it still holds token.
// It reports whether the session was cleared.
func (s *Session) clearToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	if s.user == nil || s.user.Credentials.Token != token {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.persist(ctx, nil); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.user = nil
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer()
	}
	return true, nil
}

// persist writes user to durable storage. Must hold s.mu.
func (s *Session) persist(ctx context.Context, user *User) error {
	if user == nil {
		if err := s.kv.Delete(ctx, credentialsBucket, credentialsKey); err != nil {
			return fmt.Errorf("ims: failed to remove credentials: %w", err)
		}
		return nil
	}

	stored := *user
	stored.Credentials.Expiration = stored.Credentials.Expiration.UTC()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("ims: failed to encode credentials: %w", err)
	}
	if err := s.kv.Put(ctx, credentialsBucket, credentialsKey, data); err != nil {
		return fmt.Errorf("ims: failed to save credentials: %w", err)
	}
	return nil
}

// IsLive returns true if there is a user whose credentials have not expired.
func (s *Session) IsLive() bool {
	_, ok := s.liveToken()
	return ok
}

// liveToken returns the bearer token if the session is live.
func (s *Session) liveToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil || s.user.IsExpired(s.now()) {
		return "", false
	}
	return s.user.Credentials.Token, true
}

// OnChange registers fn to be called once after every session change.
// Only one observer is kept; nil removes it.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}
