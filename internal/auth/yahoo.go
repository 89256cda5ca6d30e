package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrMissingCredentials means no consumer key/secret was found in the
	// environment or in the token file.
	ErrMissingCredentials = errors.New("yahoo consumer key and secret are required (YAHOO_CLIENT_ID, YAHOO_CLIENT_SECRET)")
	// ErrNoRefreshToken means the token file has never been authorized.
	ErrNoRefreshToken = errors.New("token file has no refresh token; run the auth command first")
)

// YahooEndpoint is Yahoo's OAuth2 endpoint. Yahoo expects the client
// credentials in a basic auth header.
var YahooEndpoint = oauth2.Endpoint{
	AuthURL:   "https://api.login.yahoo.com/oauth2/request_auth",
	TokenURL:  "https://api.login.yahoo.com/oauth2/get_token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// OutOfBandRedirect makes Yahoo display the verifier code instead of
// redirecting, for the copy/paste flow of the auth command.
const OutOfBandRedirect = "oob"

// Yahoo obtains and refreshes sessions against Yahoo's OAuth2 endpoint and
// keeps the token file at path up to date.
type Yahoo struct {
	clientID     string
	clientSecret string
	path         string
	endpoint     oauth2.Endpoint
	httpClient   *http.Client
	now          func() time.Time
	logger       *slog.Logger
}

// Option customizes a Yahoo authenticator.
type Option func(*Yahoo)

// WithEndpoint overrides the OAuth2 endpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(y *Yahoo) { y.endpoint = ep }
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(y *Yahoo) { y.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(y *Yahoo) { y.logger = l }
}

// NewYahoo creates an authenticator persisting tokens at tokenPath. Empty
// credentials are filled from the token file when it has them.
func NewYahoo(clientID, clientSecret, tokenPath string, opts ...Option) (*Yahoo, error) {
	y := &Yahoo{
		clientID:     clientID,
		clientSecret: clientSecret,
		path:         tokenPath,
		endpoint:     YahooEndpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(y)
	}

	if y.clientID == "" || y.clientSecret == "" {
		if f, err := LoadTokenFile(tokenPath); err == nil {
			if y.clientID == "" {
				y.clientID = f.ConsumerKey
			}
			if y.clientSecret == "" {
				y.clientSecret = f.ConsumerSecret
			}
		}
	}
	if y.clientID == "" || y.clientSecret == "" {
		return nil, ErrMissingCredentials
	}
	return y, nil
}

func (y *Yahoo) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     y.clientID,
		ClientSecret: y.clientSecret,
		Endpoint:     y.endpoint,
		RedirectURL:  OutOfBandRedirect,
	}
}

func (y *Yahoo) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, y.httpClient)
}

// Open returns the session stored in the token file if it is still valid,
// and authenticates otherwise.
func (y *Yahoo) Open(ctx context.Context) (*Session, error) {
	f, err := LoadTokenFile(y.path)
	if err != nil {
		return nil, err
	}
	sess := NewSession(f.Token())
	if sess.ValidAt(y.now()) {
		y.logger.Debug("Reusing stored token", "expires", sess.Expiry())
		return sess, nil
	}
	return y.Authenticate(ctx)
}

// Authenticate performs a full re-authentication: the token file is read
// again from disk and its refresh token exchanged for a new access token.
// The returned session replaces whatever the caller held before.
func (y *Yahoo) Authenticate(ctx context.Context) (*Session, error) {
	f, err := LoadTokenFile(y.path)
	if err != nil {
		return nil, err
	}
	if f.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return y.refresh(ctx, f, f.RefreshToken)
}

// Refresh exchanges the refresh token carried by sess for a new session.
func (y *Yahoo) Refresh(ctx context.Context, sess *Session) (*Session, error) {
	refreshToken := sess.Token().RefreshToken
	base, err := LoadTokenFile(y.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		base = &TokenFile{}
	}
	if refreshToken == "" {
		refreshToken = base.RefreshToken
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return y.refresh(ctx, base, refreshToken)
}

func (y *Yahoo) refresh(ctx context.Context, base *TokenFile, refreshToken string) (*Session, error) {
	src := y.config().TokenSource(y.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if err := y.persist(base, tok); err != nil {
		return nil, err
	}
	y.logger.Info("Refreshed access token", "expires", tok.Expiry)
	return NewSession(tok), nil
}

// AuthCodeURL returns the URL the user opens to grant access.
func (y *Yahoo) AuthCodeURL() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return y.config().AuthCodeURL(hex.EncodeToString(nonce)), nil
}

// Exchange trades the verifier code shown by Yahoo for a token and writes
// the token file, including the consumer credentials.
func (y *Yahoo) Exchange(ctx context.Context, code string) (*Session, error) {
	tok, err := y.config().Exchange(y.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange verifier: %w", err)
	}
	base := &TokenFile{}
	if existing, err := LoadTokenFile(y.path); err == nil {
		base = existing
	}
	if err := y.persist(base, tok); err != nil {
		return nil, err
	}
	return NewSession(tok), nil
}

func (y *Yahoo) persist(base *TokenFile, tok *oauth2.Token) error {
	next := base.withToken(tok, y.now())
	next.ConsumerKey = y.clientID
	next.ConsumerSecret = y.clientSecret
	if err := next.Save(y.path); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}
