// Package auth manages the Yahoo OAuth2 authorization session used by the
// harvester. Token exchange is delegated to golang.org/x/oauth2; this package
// owns the persisted token file and the Session value handed to callers.
package auth

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// expiryMargin treats a token as expired slightly before it really is, so a
// request is never sent with a token that lapses in flight.
const expiryMargin = 60 * time.Second

// Session is an authorized token. It is never mutated; refreshing produces
// a new Session.
type Session struct {
	token *oauth2.Token
}

// NewSession wraps tok. A nil token yields an invalid session.
func NewSession(tok *oauth2.Token) *Session {
	if tok == nil {
		tok = &oauth2.Token{}
	}
	cp := *tok
	return &Session{token: &cp}
}

// Valid reports whether the session holds an access token that has not
// expired.
func (s *Session) Valid() bool {
	return s.ValidAt(time.Now())
}

// ValidAt reports validity at the given instant.
func (s *Session) ValidAt(now time.Time) bool {
	if s == nil || s.token == nil || s.token.AccessToken == "" {
		return false
	}
	if s.token.Expiry.IsZero() {
		return true
	}
	return now.Add(expiryMargin).Before(s.token.Expiry)
}

// Expiry returns when the access token lapses; zero means unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.token == nil {
		return time.Time{}
	}
	return s.token.Expiry
}

// Token returns a copy of the underlying token.
func (s *Session) Token() *oauth2.Token {
	if s == nil || s.token == nil {
		return &oauth2.Token{}
	}
	cp := *s.token
	return &cp
}

// Authorize sets the Authorization header on req.
func (s *Session) Authorize(req *http.Request) {
	if s == nil || s.token == nil || s.token.AccessToken == "" {
		return
	}
	s.token.SetAuthHeader(req)
}
