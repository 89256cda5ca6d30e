// Package yahoo provides the HTTP client for the Yahoo Fantasy Sports player
// endpoint used by the harvester.
//
// Responses are treated as opaque bytes; classification of the status code is
// left to the caller. Pacing is handled via a token bucket limiter with one
// token per configured delay.
package yahoo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/yahoo-harvest/internal/auth"
)

// playerPath is the league-scoped player lookup. Arguments: sport, league ID,
// sport, player ID.
const playerPath = "/fantasy/v2/league/%s.l.%s/players;player_keys=%s.p.%d"

// Client is the HTTP client for the Yahoo fantasy API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sport      string
	leagueID   string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithDelay spaces consecutive requests at least d apart. Zero disables
// pacing.
func WithDelay(d time.Duration) Option {
	return func(cl *Client) {
		if d <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a Yahoo fantasy client for one league.
func NewClient(baseURL, sport, leagueID string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		sport:      sport,
		leagueID:   leagueID,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlayerURL returns the lookup URL for a candidate player ID.
func (c *Client) PlayerURL(id int) string {
	return c.baseURL + fmt.Sprintf(playerPath, c.sport, c.leagueID, c.sport, id)
}

// GetPlayer performs one paced GET for a candidate player ID. Every HTTP
// status is returned as a Response; only transport failures are errors.
func (c *Client) GetPlayer(ctx context.Context, sess *auth.Session, id int) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PlayerURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	sess.Authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request player %d: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debug("Yahoo response", "id", id, "status", resp.StatusCode, "bytes", len(body))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Truncate returns a shortened body for log lines.
func Truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
