// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"codeberg.org/oliverandrich/authnotify/internal/config"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

// ErrNoSession is returned when the context carries no session.
var ErrNoSession = errors.New("no session in context")

const keyLength = 32

type contextKey struct{}

// payload is what gets encoded into the cookie.
type payload struct {
	Values    map[string]any
	ExpiresAt time.Time
}

// Session is the key-value state of one client, loaded from and saved to a signed cookie.
type Session struct {
	values    map[string]any
	expiresAt time.Time
	modified  bool
	mu        sync.Mutex
}

func newSession(values map[string]any, expiresAt time.Time) *Session {
	if values == nil {
		values = make(map[string]any)
	}
	return &Session{values: values, expiresAt: expiresAt}
}

// Put stores value under key, replacing any previous value.
func (s *Session) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.modified = true
}

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.values[key]
}

// Flush discards every key.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.values)
	s.modified = true
}

// Len returns the number of stored keys.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.values)
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.modified
}

// ExpiresAt returns the expiry of the session.
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

func (s *Session) snapshot() payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	return payload{Values: maps.Clone(s.values), ExpiresAt: s.expiresAt}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}

// Manager encodes sessions into signed (and optionally encrypted) cookies.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
}

// NewManager creates a session manager. An empty hash key generates a random
// one, which invalidates all sessions on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("session hash key not configured, generating a random one")
		hashKey = securecookie.GenerateRandomKey(keyLength)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", name, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid session %s key: must be %d bytes, got %d", name, keyLength, len(key))
	}
	return key, nil
}

// New returns an empty, unsaved session.
func (m *Manager) New() *Session {
	return newSession(nil, time.Now().Add(time.Duration(m.maxAge)*time.Second))
}

// Load reads the session cookie of r. Missing, tampered and expired cookies
// yield a fresh empty session.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return m.New()
	}

	var p payload
	if err := m.codec.Decode(m.cookieName, cookie.Value, &p); err != nil {
		slog.Debug("discarding invalid session cookie", "error", err)
		return m.New()
	}
	if time.Now().After(p.ExpiresAt) {
		return m.New()
	}

	return newSession(p.Values, p.ExpiresAt)
}

// Cookie encodes s into a cookie. An empty session produces a clearing cookie.
func (m *Manager) Cookie(s *Session) (*http.Cookie, error) {
	p := s.snapshot()
	if len(p.Values) == 0 {
		return m.Clear(), nil
	}

	encoded, err := m.codec.Encode(m.cookieName, p)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}

	return &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns a cookie that removes the session from the client.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Put stores a value in the session carried by ctx.
func (m *Manager) Put(ctx context.Context, key string, value any) error {
	s, ok := FromContext(ctx)
	if !ok {
		return ErrNoSession
	}
	s.Put(key, value)
	return nil
}

// Flush clears the session carried by ctx.
func (m *Manager) Flush(ctx context.Context) error {
	s, ok := FromContext(ctx)
	if !ok {
		return ErrNoSession
	}
	s.Flush()
	return nil
}

// GetString returns the string stored under key, or "".
func (m *Manager) GetString(ctx context.Context, key string) string {
	s, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	v, _ := s.Get(key).(string)
	return v
}

// GetInt64 returns the integer stored under key, or 0.
func (m *Manager) GetInt64(ctx context.Context, key string) int64 {
	s, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	switch v := s.Get(key).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// LoadAndSave loads the session into the request context and writes it back
// before the response is committed if a handler modified it.
func (m *Manager) LoadAndSave() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := m.Load(c.Request())
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))

			c.Response().Before(func() {
				if !s.Modified() {
					return
				}
				cookie, err := m.Cookie(s)
				if err != nil {
					slog.Error("failed to save session", "error", err)
					return
				}
				http.SetCookie(c.Response(), cookie)
			})

			return next(c)
		}
	}
}
