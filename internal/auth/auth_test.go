package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server
	calls    atomic.Int32
	status   int
	lastForm url.Values
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		ts.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"fresh-access","token_type":"bearer","expires_in":3600,"refresh_token":"fresh-refresh","xoauth_yahoo_guid":"GUID1"}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   ts.URL + "/request_auth",
		TokenURL:  ts.URL + "/get_token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

func writeTokenFile(t *testing.T, f TokenFile) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth", "oauth2.json")
	require.NoError(t, f.Save(path))
	return path
}

func TestTokenFileRoundTrip(t *testing.T) {
	issued := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	path := writeTokenFile(t, TokenFile{
		AccessToken:    "a",
		RefreshToken:   "r",
		TokenType:      "bearer",
		TokenTime:      float64(issued.Unix()),
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	})

	f, err := LoadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "key", f.ConsumerKey)

	tok := f.Token()
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.WithinDuration(t, issued.Add(time.Hour), tok.Expiry, time.Millisecond)
}

func TestLoadTokenFileMissing(t *testing.T) {
	_, err := LoadTokenFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestSessionValidity(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, NewSession(nil).ValidAt(now))
	assert.True(t, NewSession(&oauth2.Token{AccessToken: "a"}).ValidAt(now))
	assert.True(t, NewSession(&oauth2.Token{AccessToken: "a", Expiry: now.Add(10 * time.Minute)}).ValidAt(now))
	assert.False(t, NewSession(&oauth2.Token{AccessToken: "a", Expiry: now.Add(30 * time.Second)}).ValidAt(now))

	var nilSession *Session
	assert.False(t, nilSession.Valid())
}

func TestSessionAuthorize(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	NewSession(&oauth2.Token{AccessToken: "abc", TokenType: "bearer"}).Authorize(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	NewSession(nil).Authorize(req)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewYahooCredentials(t *testing.T) {
	path := writeTokenFile(t, TokenFile{ConsumerKey: "file-key", ConsumerSecret: "file-secret"})

	y, err := NewYahoo("", "", path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", y.clientID)
	assert.Equal(t, "file-secret", y.clientSecret)

	y, err = NewYahoo("env-key", "", path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", y.clientID)
	assert.Equal(t, "file-secret", y.clientSecret)

	_, err = NewYahoo("", "", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuthenticateRefreshesAndPersists(t *testing.T) {
	ts := newTokenServer(t)
	path := writeTokenFile(t, TokenFile{
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		TokenType:    "bearer",
		TokenTime:    1,
	})

	y, err := NewYahoo("key", "secret", path, WithEndpoint(ts.endpoint()), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	sess, err := y.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Valid())
	assert.Equal(t, "fresh-access", sess.Token().AccessToken)
	assert.EqualValues(t, 1, ts.calls.Load())
	assert.Equal(t, "refresh_token", ts.lastForm.Get("grant_type"))
	assert.Equal(t, "old-refresh", ts.lastForm.Get("refresh_token"))

	saved, err := LoadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "fresh-refresh", saved.RefreshToken)
	assert.Equal(t, "key", saved.ConsumerKey)
	assert.Equal(t, "secret", saved.ConsumerSecret)
	assert.Equal(t, "GUID1", saved.GUID)
	assert.Equal(t, 3600, saved.ExpiresIn)
}

func TestAuthenticateWithoutRefreshToken(t *testing.T) {
	path := writeTokenFile(t, TokenFile{AccessToken: "a"})
	y, err := NewYahoo("key", "secret", path)
	require.NoError(t, err)

	_, err = y.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestAuthenticateRejected(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	path := writeTokenFile(t, TokenFile{RefreshToken: "revoked"})

	y, err := NewYahoo("key", "secret", path, WithEndpoint(ts.endpoint()), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = y.Authenticate(context.Background())
	require.Error(t, err)

	saved, err := LoadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "revoked", saved.RefreshToken)
}

func TestRefreshUsesSessionToken(t *testing.T) {
	ts := newTokenServer(t)
	path := writeTokenFile(t, TokenFile{RefreshToken: "file-refresh"})

	y, err := NewYahoo("key", "secret", path, WithEndpoint(ts.endpoint()), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	old := NewSession(&oauth2.Token{AccessToken: "old", RefreshToken: "session-refresh"})
	sess, err := y.Refresh(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, "session-refresh", ts.lastForm.Get("refresh_token"))
	assert.Equal(t, "fresh-access", sess.Token().AccessToken)
	assert.Equal(t, "old", old.Token().AccessToken)
}

func TestOpenReusesValidToken(t *testing.T) {
	ts := newTokenServer(t)
	issued := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	path := writeTokenFile(t, TokenFile{
		AccessToken:  "stored",
		RefreshToken: "r",
		TokenType:    "bearer",
		TokenTime:    float64(issued.Unix()),
	})

	y, err := NewYahoo("key", "secret", path,
		WithEndpoint(ts.endpoint()),
		WithHTTPClient(ts.Client()),
		WithClock(func() time.Time { return issued.Add(5 * time.Minute) }),
	)
	require.NoError(t, err)

	sess, err := y.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", sess.Token().AccessToken)
	assert.EqualValues(t, 0, ts.calls.Load())
}

func TestOpenRefreshesExpiredToken(t *testing.T) {
	ts := newTokenServer(t)
	path := writeTokenFile(t, TokenFile{AccessToken: "stored", RefreshToken: "r", TokenTime: 1})

	y, err := NewYahoo("key", "secret", path, WithEndpoint(ts.endpoint()), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	sess, err := y.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", sess.Token().AccessToken)
	assert.EqualValues(t, 1, ts.calls.Load())
}

func TestExchangeWritesTokenFile(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "auth", "oauth2.json")

	y, err := NewYahoo("key", "secret", path, WithEndpoint(ts.endpoint()), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = y.Exchange(context.Background(), "VERIFIER")
	require.NoError(t, err)
	assert.Equal(t, "authorization_code", ts.lastForm.Get("grant_type"))
	assert.Equal(t, "VERIFIER", ts.lastForm.Get("code"))
	assert.Equal(t, OutOfBandRedirect, ts.lastForm.Get("redirect_uri"))

	saved, err := LoadTokenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-refresh", saved.RefreshToken)
	assert.Equal(t, "key", saved.ConsumerKey)
}

func TestAuthCodeURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth2.json")
	y, err := NewYahoo("key", "secret", path)
	require.NoError(t, err)

	raw, err := y.AuthCodeURL()
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "api.login.yahoo.com", u.Host)
	assert.Equal(t, "key", u.Query().Get("client_id"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "oob", u.Query().Get("redirect_uri"))
	assert.Len(t, u.Query().Get("state"), 32)
}
