package domain

import "time"

// RequestRecord is one named HTTP request kept for reporting.
type RequestRecord struct {
	RunID      string
	Name       string
	Method     string
	URL        string
	StatusCode int
	Elapsed    time.Duration
	Length     int64
	Error      string
	Timestamp  time.Time
}

// Failed returns true if the request errored or returned a 4xx/5xx status.
func (r RequestRecord) Failed() bool {
	return r.Error != "" || r.StatusCode >= 400
}

// JobOutcome is the result of one asynchronous scenario.
type JobOutcome struct {
	RunID    string
	Scenario string
	JobID    string
	Status   JobStatus
	Polls    int
	Elapsed  time.Duration
	Error    string
	Finished time.Time
}
