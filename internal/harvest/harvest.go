// Package harvest walks a range of candidate player IDs against the Yahoo
// fantasy API and stores every payload the API returns successfully.
//
// IDs are visited one at a time in increasing order. An expired session
// (401) triggers a full re-authentication and the same request is sent
// again, up to a fixed number of attempts per ID.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/albapepper/yahoo-harvest/internal/auth"
	"github.com/albapepper/yahoo-harvest/internal/provider/yahoo"
)

const (
	defaultMaxReauth  = 3
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	progressEvery     = 100
)

// ErrReauthExhausted is returned when an ID still answers 401 after every
// allowed re-authentication. The run stops: the credential is unusable for
// the remaining IDs as well.
var ErrReauthExhausted = errors.New("re-authentication exhausted")

// Fetcher issues one request for a candidate ID.
type Fetcher interface {
	GetPlayer(ctx context.Context, sess *auth.Session, id int) (*yahoo.Response, error)
}

// Authenticator produces replacement sessions.
type Authenticator interface {
	// Authenticate performs a full re-authentication.
	Authenticate(ctx context.Context) (*auth.Session, error)
	// Refresh renews sess ahead of expiry.
	Refresh(ctx context.Context, sess *auth.Session) (*auth.Session, error)
}

// Store persists successful payloads.
type Store interface {
	Write(id int, body []byte) error
	Exists(id int) bool
}

// Options controls a harvest run.
type Options struct {
	// Start and End bound the scan as [Start, End).
	Start int
	End   int
	// MaxReauth caps re-authentications per ID. <= 0 uses the default.
	MaxReauth int
	// TransientRetries is how many times a 429/5xx is retried.
	TransientRetries int
	// Backoff is the first wait between retries; it doubles up to
	// MaxBackoff. Zero retries immediately.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// ProactiveRefresh checks the session before every request and
	// refreshes it when expired.
	ProactiveRefresh bool
	// SkipExisting leaves IDs that already have a stored payload alone.
	SkipExisting bool
	// Delay is slept after every processed ID, whatever its outcome.
	Delay time.Duration
}

// Harvester runs the scan loop.
type Harvester struct {
	fetcher Fetcher
	auth    Authenticator
	store   Store
	opts    Options
	logger  *slog.Logger
}

// New creates a Harvester.
func New(fetcher Fetcher, authenticator Authenticator, store Store, opts Options, logger *slog.Logger) *Harvester {
	if opts.MaxReauth <= 0 {
		opts.MaxReauth = defaultMaxReauth
	}
	if opts.TransientRetries < 0 {
		opts.TransientRetries = 0
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Start < 1 {
		opts.Start = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		fetcher: fetcher,
		auth:    authenticator,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Run scans every ID in [Start, End) with sess as the starting session. It
// returns the counts, the session in use at the end (possibly replaced),
// and an error only when the run could not finish.
func (h *Harvester) Run(ctx context.Context, sess *auth.Session) (Result, *auth.Session, error) {
	var result Result

	h.logger.Info("Harvest starting", "start", h.opts.Start, "end", h.opts.End)
	for id := h.opts.Start; id < h.opts.End; id++ {
		if err := ctx.Err(); err != nil {
			return result, sess, err
		}

		if h.opts.SkipExisting && h.store.Exists(id) {
			result.Skipped++
			continue
		}

		if h.opts.ProactiveRefresh && !sess.Valid() {
			next, err := h.auth.Refresh(ctx, sess)
			if err != nil {
				return result, sess, fmt.Errorf("refresh session before player %d: %w", id, err)
			}
			sess = next
			result.Refreshes++
		}

		next, err := h.harvestOne(ctx, sess, id, &result)
		sess = next
		if err != nil {
			return result, sess, err
		}

		if n := id - h.opts.Start + 1; n%progressEvery == 0 {
			h.logger.Info("Harvest progress", "processed", n, "last_id", id, "written", result.Written)
		}

		if err := sleep(ctx, h.opts.Delay); err != nil {
			return result, sess, err
		}
	}

	h.logger.Info("Harvest complete", "summary", result.Summary())
	return result, sess, nil
}

// harvestOne fetches a single ID until it resolves to stored, missing or
// failed. It returns the session to use for the next ID.
func (h *Harvester) harvestOne(ctx context.Context, sess *auth.Session, id int, result *Result) (*auth.Session, error) {
	bo := h.newBackoff()
	reauths, transient := 0, 0

	for {
		resp, err := h.fetcher.GetPlayer(ctx, sess, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sess, ctxErr
			}
			result.Failed++
			result.AddErrorf("player %d: %v", id, err)
			h.logger.Error("Fetch failed", "id", id, "error", err)
			return sess, nil
		}

		switch Classify(resp.StatusCode) {
		case OutcomeFound:
			if err := h.store.Write(id, resp.Body); err != nil {
				result.Failed++
				result.AddErrorf("store player %d: %v", id, err)
				h.logger.Error("Write failed", "id", id, "error", err)
				return sess, nil
			}
			result.Written++
			h.logger.Info("Wrote player", "id", id, "bytes", len(resp.Body))
			return sess, nil

		case OutcomeUnauthorized:
			next, err := h.reauthenticate(ctx, id, &reauths, bo, result)
			if err != nil {
				return sess, err
			}
			sess = next

		case OutcomeTransient:
			if transient >= h.opts.TransientRetries {
				result.Failed++
				result.AddErrorf("player %d: status %d after %d retries", id, resp.StatusCode, transient)
				h.logger.Warn("Giving up on player", "id", id, "status", resp.StatusCode,
					"retries", transient, "body", yahoo.Truncate(resp.Body, 200))
				return sess, nil
			}
			transient++
			h.logger.Warn("Transient status, retrying", "id", id, "status", resp.StatusCode, "attempt", transient)
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return sess, err
			}

		default:
			result.Missing++
			h.logger.Info("No player", "id", id, "status", resp.StatusCode, "body", yahoo.Truncate(resp.Body, 200))
			return sess, nil
		}
	}
}

// reauthenticate obtains a fresh session, consuming attempts from the
// per-ID budget. Every failed attempt is followed by a backoff wait.
func (h *Harvester) reauthenticate(ctx context.Context, id int, attempts *int, bo backoff.BackOff, result *Result) (*auth.Session, error) {
	var lastErr error
	for *attempts < h.opts.MaxReauth {
		if *attempts > 0 {
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
		}
		*attempts++
		result.Reauths++

		h.logger.Info("Session expired, re-authenticating", "id", id, "attempt", *attempts, "max", h.opts.MaxReauth)
		next, err := h.auth.Authenticate(ctx)
		if err == nil {
			return next, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		h.logger.Warn("Re-authentication failed", "id", id, "attempt", *attempts, "error", err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w for player %d after %d attempts: %w", ErrReauthExhausted, id, *attempts, lastErr)
	}
	return nil, fmt.Errorf("%w for player %d after %d attempts", ErrReauthExhausted, id, *attempts)
}

func (h *Harvester) newBackoff() backoff.BackOff {
	if h.opts.Backoff == 0 {
		return &backoff.ZeroBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.opts.Backoff
	bo.MaxInterval = h.opts.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Outcome is the classification of an API response.
type Outcome int

const (
	// OutcomeFound means the payload should be stored.
	OutcomeFound Outcome = iota
	// OutcomeUnauthorized means the session expired.
	OutcomeUnauthorized
	// OutcomeTransient covers throttling and server errors worth retrying.
	OutcomeTransient
	// OutcomeMissing covers every other status: no player at that ID.
	OutcomeMissing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeTransient:
		return "transient"
	default:
		return "missing"
	}
}

// Classify maps an HTTP status to an Outcome.
func Classify(status int) Outcome {
	switch {
	case status == http.StatusOK:
		return OutcomeFound
	case status == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case status == http.StatusTooManyRequests, status >= 500 && status <= 599:
		return OutcomeTransient
	default:
		return OutcomeMissing
	}
}
