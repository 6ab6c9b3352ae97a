package http

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skorper/harmony/internal/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

const (
	msgProcessing = "The job is being processed"
	msgSucceeded  = "The job has completed successfully"
	msgFailed     = "The stub was configured to fail this collection"
	msgCanceled   = "Canceled by user."
)

type stubJob struct {
	state   domain.JobState
	fail    bool
	output  string
	polls   int
	created time.Time
	updated time.Time
}

// jobStore keeps stub jobs in memory. Reading a job through poll moves it one
// state forward every stepPolls reads.
type jobStore struct {
	mu        sync.Mutex
	jobs      map[string]*stubJob
	order     []string
	stepPolls int
	now       func() time.Time
}

func newJobStore(stepPolls int) *jobStore {
	if stepPolls < 1 {
		stepPolls = 1
	}
	return &jobStore{
		jobs:      make(map[string]*stubJob),
		stepPolls: stepPolls,
		now:       time.Now,
	}
}

// create registers an accepted job. output is the file name reported in the
// data link once the job succeeds.
func (s *jobStore) create(request, output string, fail bool) domain.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &stubJob{
		state: domain.JobState{
			JobID:   uuid.NewString(),
			Status:  domain.StatusAccepted,
			Message: msgProcessing,
			Request: request,
		},
		fail:    fail,
		output:  output,
		created: now,
		updated: now,
	}
	s.jobs[job.state.JobID] = job
	s.order = append(s.order, job.state.JobID)
	return job.state
}

// poll reads a job and advances it.
func (s *jobStore) poll(id string) (*stubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job.polls++
	if !job.state.Status.IsTerminal() && job.polls%s.stepPolls == 0 {
		s.advance(job)
	}
	return job.snapshot(), nil
}

func (s *jobStore) advance(job *stubJob) {
	switch job.state.Status {
	case domain.StatusAccepted:
		job.state.Status = domain.StatusRunning
		job.state.Progress = 50
	case domain.StatusRunning:
		if job.fail {
			job.state.Status = domain.StatusFailed
			job.state.Message = msgFailed
		} else {
			job.state.Status = domain.StatusSuccessful
			job.state.Message = msgSucceeded
			job.state.Progress = 100
		}
	}
	job.updated = s.now()
}

func (s *jobStore) cancel(id string) (*stubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.state.Status.IsTerminal() {
		return nil, ErrJobFinished
	}
	job.state.Status = domain.StatusCanceled
	job.state.Message = msgCanceled
	job.updated = s.now()
	return job.snapshot(), nil
}

// list returns every job, oldest first.
func (s *jobStore) list() []*stubJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*stubJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].snapshot())
	}
	return out
}

func (j *stubJob) snapshot() *stubJob {
	cp := *j
	cp.state.Links = nil
	return &cp
}
