package inference

import (
	"context"
	"errors"
	"strings"
)

// JobStatus is the normalized lifecycle of a provider job. Provider payloads
// use their own vocabulary; adapters translate it at the boundary so the rest
// of the system only ever sees these four values.
type JobStatus string

const (
	StatusStarting   JobStatus = "starting"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// JobState is a point-in-time view of a provider job.
type JobState struct {
	Status JobStatus
	// OutputURL is the provider-hosted result, set when Status is succeeded.
	OutputURL string
	// Err carries the provider's failure detail when Status is failed.
	Err string
}

// SubmitRequest describes a new image transformation job.
type SubmitRequest struct {
	Prompt   string
	ImageURL string
}

var (
	ErrJobNotFound = errors.New("inference_job_not_found")
	ErrSubmit      = errors.New("inference_submit_failed")
)

// Client is the port to the external image model provider.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (jobID string, err error)
	CheckStatus(ctx context.Context, jobID string) (JobState, error)
	Cancel(ctx context.Context, jobID string) error
}

// NormalizeStatus maps a raw provider status string onto the fixed set of
// job statuses. Unknown in-flight variants collapse to processing.
func NormalizeStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting", "queued", "pending":
		return StatusStarting
	case "succeeded", "success", "completed":
		return StatusSucceeded
	case "failed", "error", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusProcessing
	}
}
