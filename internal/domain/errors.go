package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotAsync        = errors.New("response is not an accepted asynchronous job")
	ErrMalformedStatus = errors.New("malformed job status payload")
)

// PollTimeoutError is returned when a job is still running after the wait budget.
type PollTimeoutError struct {
	JobID      string
	LastStatus JobStatus
	Elapsed    time.Duration
	Polls      int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("job %s still %s after %s (%d polls)",
		e.JobID, e.LastStatus, e.Elapsed.Truncate(time.Millisecond), e.Polls)
}

// StatusFetchError is returned when the status endpoint failed too many times in a row.
type StatusFetchError struct {
	URL      string
	Failures int
	Err      error
}

func (e *StatusFetchError) Error() string {
	return fmt.Sprintf("fetch status %s: %d consecutive failures: %v", e.URL, e.Failures, e.Err)
}

func (e *StatusFetchError) Unwrap() error {
	return e.Err
}
