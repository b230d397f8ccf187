// Package auth implements the shared-credential login and the opaque
// session tokens backing it.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"spendinglog/internal/cache"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "session_token"

	tokenBytes  = 32
	maxSessions = 1024
)

// Session records who logged in and when.
type Session struct {
	Username  string
	CreatedAt time.Time
}

// Authenticator validates the shared credential pair and manages sessions.
// Tokens are opaque random strings held in memory; restarting the process
// logs everyone out.
type Authenticator struct {
	username string
	password string
	sessions *cache.TTLCache[string, Session]
}

func NewAuthenticator(username, password string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
		sessions: cache.New[string, Session](maxSessions, ttl),
	}
}

// Login checks the credentials and, on success, creates a session and
// returns its token. The comparison is constant-time.
func (a *Authenticator) Login(username, password string) (string, bool) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", false
	}

	token, err := newToken()
	if err != nil {
		return "", false
	}

	a.sessions.Set(token, Session{Username: username, CreatedAt: time.Now()})
	return token, true
}

// Verify reports whether token belongs to a live session and slides its
// expiry forward.
func (a *Authenticator) Verify(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	s, ok := a.sessions.Get(token)
	if !ok {
		return Session{}, false
	}
	a.sessions.Renew(token)
	return s, true
}

// Logout invalidates the session token.
func (a *Authenticator) Logout(token string) {
	if token != "" {
		a.sessions.Delete(token)
	}
}

// ActiveSessions returns the number of live sessions, expired ones included
// until the next sweep.
func (a *Authenticator) ActiveSessions() int {
	return a.sessions.Size()
}

// SweepExpired drops expired sessions and returns how many were removed.
func (a *Authenticator) SweepExpired() int {
	return a.sessions.CleanExpired()
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
