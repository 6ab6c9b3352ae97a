package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skorper/harmony/internal/domain"
)

const (
	// MinPollInterval is the shortest delay allowed between two status fetches.
	MinPollInterval = time.Second

	DefaultPollInterval = time.Second
	DefaultTimeout      = 10 * time.Minute
	DefaultMaxFailures  = 3
)

// Config controls the polling loop.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	MaxFailures  int
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		MaxFailures:  DefaultMaxFailures,
	}
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Waiter polls a job status resource until the job is terminal.
type Waiter struct {
	fetcher      domain.StatusFetcher
	pollInterval time.Duration
	timeout      time.Duration
	maxFailures  int
	clock        Clock
}

// Option customizes a Waiter.
type Option func(*Waiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// New creates a waiter. Zero config values fall back to defaults and the
// poll interval is never shorter than MinPollInterval.
func New(fetcher domain.StatusFetcher, cfg Config, opts ...Option) *Waiter {
	w := &Waiter{
		fetcher:      fetcher,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		clock:        realClock{},
	}
	if w.pollInterval < MinPollInterval {
		w.pollInterval = MinPollInterval
	}
	if w.timeout <= 0 {
		w.timeout = DefaultTimeout
	}
	if w.maxFailures <= 0 {
		w.maxFailures = DefaultMaxFailures
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PollInterval returns the effective delay between fetches.
func (w *Waiter) PollInterval() time.Duration {
	return w.pollInterval
}

// Wait blocks until the submitted job reaches a terminal status.
//
// Failed and canceled jobs are returned as results, not errors. Errors are
// *domain.PollTimeoutError, *domain.StatusFetchError, domain.ErrNotAsync or
// the context error when cancelled.
func (w *Waiter) Wait(ctx context.Context, sub *domain.Submission) (*domain.JobResult, error) {
	if sub == nil || sub.Status.IsTerminal() {
		return nil, domain.ErrNotAsync
	}
	if sub.StatusURL == "" {
		return nil, fmt.Errorf("job %s: %w: no status URL", sub.JobID, domain.ErrNotAsync)
	}

	started := w.clock.Now()
	deadline := started.Add(w.timeout)
	lastStatus := sub.Status
	failures := 0
	polls := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		polls++
		fctx, cancel := context.WithTimeout(ctx, deadline.Sub(w.clock.Now()))
		state, err := w.fetch(fctx, sub.StatusURL)
		expired := fctx.Err() != nil
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if expired {
				return nil, &domain.PollTimeoutError{
					JobID:      sub.JobID,
					LastStatus: lastStatus,
					Elapsed:    w.clock.Now().Sub(started),
					Polls:      polls,
				}
			}
			failures++
			log.Debug().Err(err).Str("job", sub.JobID).Int("failures", failures).Msg("status fetch failed")
			if failures >= w.maxFailures {
				return nil, &domain.StatusFetchError{URL: sub.StatusURL, Failures: failures, Err: err}
			}
		} else {
			failures = 0
			lastStatus = state.Status
			if state.Status.IsTerminal() {
				return &domain.JobResult{
					JobID:    firstNonEmpty(state.JobID, sub.JobID),
					Status:   state.Status,
					Message:  state.Message,
					Progress: state.Progress,
					Links:    state.DataLinks(),
					Polls:    polls,
					Elapsed:  w.clock.Now().Sub(started),
				}, nil
			}
		}

		now := w.clock.Now()
		if !now.Before(deadline) {
			return nil, &domain.PollTimeoutError{
				JobID:      sub.JobID,
				LastStatus: lastStatus,
				Elapsed:    now.Sub(started),
				Polls:      polls,
			}
		}

		sleep := w.pollInterval
		if left := deadline.Sub(now); left < sleep {
			sleep = left
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.clock.After(sleep):
		}
	}
}

func (w *Waiter) fetch(ctx context.Context, url string) (*domain.JobState, error) {
	state, err := w.fetcher.FetchStatus(ctx, url)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrMalformedStatus
	}
	if !state.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedStatus, state.Status)
	}
	return state, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
