// Package session keeps per-visitor state between requests.
// A session is identified by a cookie and its values are stored as JSON documents
// in a pluggable Store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Store when the session does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Store persists session values keyed by session id.
type Store interface {
	Load(ctx context.Context, id string) (map[string]json.RawMessage, error)
	Save(ctx context.Context, id string, values map[string]json.RawMessage, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// Session is the state of a single visitor. It is not safe for concurrent use;
// one request owns it at a time.
type Session struct {
	id       string
	values   map[string]json.RawMessage
	modified bool
	isNew    bool
}

func newSession(id string, values map[string]json.RawMessage, isNew bool) *Session {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Session{id: id, values: values, isNew: isNew}
}

// ID returns the session identifier carried in the cookie.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was started by the current request.
func (s *Session) IsNew() bool { return s.isNew }

// Modified reports whether values changed since the session was loaded or last saved.
func (s *Session) Modified() bool { return s.modified }

// Get decodes the value stored under key into dst. It reports false when the key is absent.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("session: failed to decode value %q: %w", key, err)
	}
	return true, nil
}

// Set encodes v under key and marks the session modified.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: failed to encode value %q: %w", key, err)
	}
	s.values[key] = raw
	s.modified = true
	return nil
}

// Delete removes key from the session.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}
