package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SessionStorageKey is the well-known key the session record lives under.
const SessionStorageKey = "opsconsole.session"

// PersistedSessionVersion is the current on-disk record format.
const PersistedSessionVersion = 1

// PersistedSession is the serialized form of a Session.
// Role is duplicated next to the identity so a tampered or stale record is detectable.
type PersistedSession struct {
	Version       int        `json:"version"`
	ID            string     `json:"id"`
	Identity      Identity   `json:"identity"`
	Role          Role       `json:"role"`
	AuthMethod    AuthMethod `json:"auth_method"`
	EstablishedAt time.Time  `json:"established_at"`
}

// ErrMalformedSession is returned by DecodeSession for any record that cannot be trusted.
var ErrMalformedSession = errors.New("malformed session record")

// EncodeSession serializes s into its persisted form.
func EncodeSession(s Session) ([]byte, error) {
	rec := PersistedSession{
		Version:       PersistedSessionVersion,
		ID:            s.ID,
		Identity:      s.Identity,
		Role:          s.Identity.Role,
		AuthMethod:    s.AuthMethod,
		EstablishedAt: s.EstablishedAt.UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

// DecodeSession parses a persisted record, rejecting anything incomplete or inconsistent.
func DecodeSession(data []byte) (Session, error) {
	var rec PersistedSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrMalformedSession, err)
	}
	switch {
	case rec.Version != PersistedSessionVersion:
		return Session{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedSession, rec.Version)
	case rec.Role != rec.Identity.Role:
		return Session{}, fmt.Errorf("%w: role mismatch", ErrMalformedSession)
	case !rec.AuthMethod.Valid():
		return Session{}, fmt.Errorf("%w: unknown auth method %q", ErrMalformedSession, rec.AuthMethod)
	}
	if err := rec.Identity.Validate(); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrMalformedSession, err)
	}
	return Session{
		ID:            rec.ID,
		Identity:      rec.Identity,
		AuthMethod:    rec.AuthMethod,
		EstablishedAt: rec.EstablishedAt,
	}, nil
}
