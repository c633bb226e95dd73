// Package notify posts signed job events to caller-supplied callback URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/voicetyped/chunkscribe/pkg/events"
	"github.com/voicetyped/chunkscribe/pkg/urlvalidation"
)

const maxBreakers = 10000

// Config holds delivery settings.
type Config struct {
	Secret          string
	MaxAttempts     int
	Timeout         time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	BreakerFailures uint32
	BreakerReset    time.Duration
}

// Attempt records one delivery try.
type Attempt struct {
	JobID        string
	EventID      string
	EventType    string
	URL          string
	Number       int
	ResponseCode int
	Status       string
	Error        string
	Duration     time.Duration
}

// Recorder persists delivery attempts.
type Recorder interface {
	RecordCallback(ctx context.Context, a Attempt) error
}

// Notifier delivers event envelopes to callback URLs.
type Notifier struct {
	httpClient   *http.Client
	config       Config
	recorder     Recorder
	validateOpts []urlvalidation.Option
	now          func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewNotifier creates a notifier. recorder may be nil. An empty secret is
// replaced by a random one, so receivers cannot verify signatures until a
// secret is configured.
func NewNotifier(cfg Config, recorder Recorder, validateOpts ...urlvalidation.Option) *Notifier {
	if cfg.Secret == "" {
		secret, err := GenerateSecret()
		if err == nil {
			cfg.Secret = secret
		}
		slog.Warn("no callback secret configured, signing with a random one")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	return &Notifier{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:       cfg,
		recorder:     recorder,
		validateOpts: validateOpts,
		now:          time.Now,
		breakers:     make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

func (n *Notifier) breakerFor(host string) *gobreaker.CircuitBreaker[int] {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cb, ok := n.breakers[host]; ok {
		return cb
	}

	// Evict an arbitrary entry at capacity.
	if len(n.breakers) >= maxBreakers {
		for k := range n.breakers {
			delete(n.breakers, k)
			break
		}
	}

	threshold := n.config.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     n.config.BreakerReset,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("callback circuit state changed",
				slog.String("host", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	n.breakers[host] = cb
	return cb
}

// BreakerState returns the breaker state for host, "closed" when none exists.
func (n *Notifier) BreakerState(host string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cb, ok := n.breakers[host]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

// Deliver posts env to target, retrying with exponential backoff. It
// returns the last error once attempts are exhausted.
func (n *Notifier) Deliver(ctx context.Context, target string, env events.Envelope) error {
	if err := urlvalidation.ValidateCallbackURL(ctx, target, n.validateOpts...); err != nil {
		return fmt.Errorf("callback URL rejected: %w", err)
	}
	u, _ := url.Parse(target)
	cb := n.breakerFor(u.Host)

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.config.BackoffInitial
	eb.MaxInterval = n.config.BackoffMax

	attempt := 0
	_, err = backoff.Retry(ctx, func() (int, error) {
		attempt++
		status, err := cb.Execute(func() (int, error) {
			return n.post(ctx, target, env, body, attempt)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return status, backoff.Permanent(fmt.Errorf("callback circuit open for %s: %w", u.Host, err))
		case err != nil && status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests:
			return status, backoff.Permanent(err)
		}
		return status, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(n.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func (n *Notifier) post(ctx context.Context, target string, env events.Envelope, body []byte, attempt int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	now := n.now()
	req.Header.Set(TimestampHeader, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(SignatureHeader, Sign(n.config.Secret, now, body))
	req.Header.Set("X-Chunkscribe-Event", string(env.Type))
	req.Header.Set("X-Chunkscribe-Delivery", env.ID)

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	a := Attempt{
		JobID:     env.JobID,
		EventID:   env.ID,
		EventType: string(env.Type),
		URL:       target,
		Number:    attempt,
		Duration:  time.Since(start),
	}

	if err != nil {
		a.Status, a.Error = "failed", err.Error()
		n.record(ctx, a)
		return 0, err
	}
	defer resp.Body.Close()
	// Drain for connection reuse.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	a.ResponseCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		a.Status = "success"
		n.record(ctx, a)
		return resp.StatusCode, nil
	}

	a.Status, a.Error = "failed", fmt.Sprintf("HTTP %d", resp.StatusCode)
	n.record(ctx, a)
	return resp.StatusCode, errors.New(a.Error)
}

func (n *Notifier) record(ctx context.Context, a Attempt) {
	if n.recorder == nil {
		return
	}
	if err := n.recorder.RecordCallback(ctx, a); err != nil {
		slog.ErrorContext(ctx, "record callback attempt failed", slog.String("error", err.Error()))
	}
}
