package domain

import "context"

// StatusFetcher is the driven port used to observe a job.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, statusURL string) (*JobState, error)
}

// Recorder is the driven port for request and job accounting.
type Recorder interface {
	RecordRequest(ctx context.Context, rec RequestRecord) error
	RecordJob(ctx context.Context, out JobOutcome) error
}
