package domain

import (
	"strings"
	"time"
)

// JobStatus is the state of an asynchronous job as reported by the API.
type JobStatus string

const (
	StatusAccepted   JobStatus = "accepted"
	StatusRunning    JobStatus = "running"
	StatusSuccessful JobStatus = "successful"
	StatusFailed     JobStatus = "failed"
	StatusCanceled   JobStatus = "canceled"
)

// IsTerminal returns true if no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Valid returns true if s is part of the API vocabulary.
func (s JobStatus) Valid() bool {
	return s == StatusAccepted || s == StatusRunning || s.IsTerminal()
}

// JobLink is a link attached to a job status payload.
type JobLink struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// JobState is one decoded job status payload.
type JobState struct {
	JobID    string    `json:"jobID"`
	Status   JobStatus `json:"status"`
	Message  string    `json:"message,omitempty"`
	Progress int       `json:"progress"`
	Links    []JobLink `json:"links,omitempty"`
	Request  string    `json:"request,omitempty"`
}

// Link returns the href of the first link with the given rel.
func (s *JobState) Link(rel string) string {
	for _, l := range s.Links {
		if strings.EqualFold(l.Rel, rel) {
			return l.Href
		}
	}
	return ""
}

// DataLinks returns the result links of the job.
func (s *JobState) DataLinks() []JobLink {
	var links []JobLink
	for _, l := range s.Links {
		if l.Rel == "data" {
			links = append(links, l)
		}
	}
	return links
}

// Submission is the accepted response of an asynchronous request.
type Submission struct {
	JobID     string
	StatusURL string
	Status    JobStatus
}

// JobResult is the terminal outcome of waiting for a job.
type JobResult struct {
	JobID    string
	Status   JobStatus
	Message  string
	Progress int
	Links    []JobLink
	Polls    int
	Elapsed  time.Duration
}

// Succeeded returns true if the job completed successfully.
func (r *JobResult) Succeeded() bool {
	return r.Status == StatusSuccessful
}
