package runner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skorper/harmony/internal/client"
	"github.com/skorper/harmony/internal/domain"
	"github.com/skorper/harmony/internal/scenario"
	"github.com/skorper/harmony/internal/waiter"
)

// Config controls a load run.
type Config struct {
	RunID      string
	Users      int
	SpawnRate  float64
	Iterations int
	WaitMin    time.Duration
	WaitMax    time.Duration
	Poll       waiter.Config
	Env        scenario.Env
}

// Summary counts what a run did.
type Summary struct {
	RunID      string
	Executions int64
	Failures   int64
	Jobs       map[domain.JobStatus]int64
	JobErrors  int64
	Elapsed    time.Duration
}

// Runner drives simulated users through the scenario table.
type Runner struct {
	cfg       Config
	scenarios []scenario.Scenario
	client    *client.Client
	recorder  domain.Recorder
	waiterOpt []waiter.Option
	seed      uint64

	executions atomic.Int64
	failures   atomic.Int64
	jobErrors  atomic.Int64
	mu         sync.Mutex
	jobs       map[domain.JobStatus]int64
}

// New creates a runner. Each user clones base so users never share connections.
func New(cfg Config, scenarios []scenario.Scenario, base *client.Client, recorder domain.Recorder, opts ...waiter.Option) *Runner {
	if cfg.Users < 1 {
		cfg.Users = 1
	}
	if cfg.SpawnRate <= 0 {
		cfg.SpawnRate = 1
	}
	if cfg.WaitMax < cfg.WaitMin {
		cfg.WaitMax = cfg.WaitMin
	}
	return &Runner{
		cfg:       cfg,
		scenarios: scenarios,
		client:    base,
		recorder:  recorder,
		waiterOpt: opts,
		seed:      uint64(time.Now().UnixNano()),
		jobs:      make(map[domain.JobStatus]int64),
	}
}

// Run spawns users and blocks until ctx is cancelled or every user finished
// its iterations.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	log.Info().Str("run", r.cfg.RunID).Int("users", r.cfg.Users).Int("scenarios", len(r.scenarios)).Msg("run started")

	var wg sync.WaitGroup
	spawnEvery := time.Duration(float64(time.Second) / r.cfg.SpawnRate)

spawn:
	for i := 0; i < r.cfg.Users; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				break spawn
			case <-time.After(spawnEvery):
			}
		}
		u, err := r.newUser(i)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.run(ctx)
		}()
	}
	wg.Wait()

	summary := r.summary(time.Since(started))
	log.Info().
		Str("run", r.cfg.RunID).
		Int64("executions", summary.Executions).
		Int64("failures", summary.Failures).
		Dur("elapsed", summary.Elapsed).
		Msg("run finished")
	return summary, nil
}

func (r *Runner) summary(elapsed time.Duration) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make(map[domain.JobStatus]int64, len(r.jobs))
	for k, v := range r.jobs {
		jobs[k] = v
	}
	return &Summary{
		RunID:      r.cfg.RunID,
		Executions: r.executions.Load(),
		Failures:   r.failures.Load(),
		Jobs:       jobs,
		JobErrors:  r.jobErrors.Load(),
		Elapsed:    elapsed,
	}
}

func (r *Runner) newUser(id int) (*user, error) {
	picker, err := scenario.NewPicker(r.scenarios, rand.New(rand.NewPCG(r.seed, uint64(id))))
	if err != nil {
		return nil, err
	}
	c := r.client.Clone()
	return &user{
		id:     id,
		runner: r,
		client: c,
		waiter: waiter.New(c, r.cfg.Poll, r.waiterOpt...),
		picker: picker,
		rng:    rand.New(rand.NewPCG(uint64(id), r.seed)),
	}, nil
}

// user is one simulated user. It owns its client, waiter and RNG.
type user struct {
	id     int
	runner *Runner
	client *client.Client
	waiter *waiter.Waiter
	picker *scenario.Picker
	rng    *rand.Rand
}

func (u *user) run(ctx context.Context) {
	log.Debug().Int("user", u.id).Msg("user started")
	for i := 0; u.runner.cfg.Iterations == 0 || i < u.runner.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		u.execute(ctx, u.picker.Pick())
		if !u.think(ctx) {
			break
		}
	}
	log.Debug().Int("user", u.id).Msg("user stopped")
}

func (u *user) execute(ctx context.Context, sc scenario.Scenario) {
	r := u.runner
	r.executions.Add(1)

	req, err := sc.Request(r.cfg.Env)
	if err != nil {
		r.failures.Add(1)
		log.Error().Err(err).Int("user", u.id).Str("scenario", sc.Name).Msg("build request")
		return
	}

	resp, err := u.client.Do(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			r.failures.Add(1)
			log.Warn().Err(err).Int("user", u.id).Str("scenario", sc.Name).Msg("request failed")
		}
		return
	}
	if !sc.Async {
		return
	}

	u.await(ctx, sc, resp)
}

func (u *user) await(ctx context.Context, sc scenario.Scenario, resp *client.Response) {
	r := u.runner
	started := time.Now()
	out := domain.JobOutcome{RunID: r.cfg.RunID, Scenario: sc.Name}

	var res *domain.JobResult
	sub, err := u.client.ParseSubmission(resp)
	switch {
	case err == nil:
		out.JobID = sub.JobID
		res, err = u.waiter.Wait(ctx, sub)
	case errors.Is(err, domain.ErrNotAsync):
		if done := finishedJob(resp); done != nil {
			res, err = done, nil
		}
	}
	if res != nil {
		out.JobID = res.JobID
		out.Status = res.Status
		out.Polls = res.Polls
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Int("user", u.id).Str("job", out.JobID).Msg("wait abandoned")
		return
	}

	out.Elapsed = time.Since(started)
	out.Finished = time.Now()
	if err != nil {
		out.Error = err.Error()
		var pte *domain.PollTimeoutError
		if errors.As(err, &pte) {
			out.Polls = pte.Polls
		}
		r.jobErrors.Add(1)
		log.Warn().Err(err).Int("user", u.id).Str("scenario", sc.Name).Str("job", out.JobID).Msg("job wait failed")
	} else {
		r.mu.Lock()
		r.jobs[out.Status]++
		r.mu.Unlock()
		log.Info().Int("user", u.id).Str("scenario", sc.Name).Str("job", out.JobID).
			Str("status", string(out.Status)).Int("polls", out.Polls).Msg("job finished")
	}

	if r.recorder != nil {
		if rerr := r.recorder.RecordJob(context.WithoutCancel(ctx), out); rerr != nil {
			log.Warn().Err(rerr).Str("job", out.JobID).Msg("record job")
		}
	}
}

// finishedJob returns the result of a job that was already terminal when
// its submission response was read, or nil when resp is not a job.
func finishedJob(resp *client.Response) *domain.JobResult {
	if resp == nil {
		return nil
	}
	state, err := client.DecodeState(resp.Body)
	if err != nil || state.JobID == "" || !state.Status.IsTerminal() {
		return nil
	}
	return &domain.JobResult{
		JobID:    state.JobID,
		Status:   state.Status,
		Message:  state.Message,
		Progress: state.Progress,
		Links:    state.DataLinks(),
	}
}

// think waits a random time in the configured range. It returns false when
// ctx is cancelled.
func (u *user) think(ctx context.Context) bool {
	cfg := u.runner.cfg
	d := cfg.WaitMin
	if span := cfg.WaitMax - cfg.WaitMin; span > 0 {
		d += time.Duration(u.rng.Int64N(int64(span)))
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
