package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a download job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal returns true if the state is final.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// FailureKind classifies a failed download attempt.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureTransientNetwork FailureKind = "transient_network"
	FailurePermanentSource  FailureKind = "permanent_source"
	FailureStallTimeout     FailureKind = "stall_timeout"
	FailureExternalTool     FailureKind = "external_tool_missing"
)

// Transient returns true if a failure of this kind may be retried.
func (k FailureKind) Transient() bool {
	return k == FailureTransientNetwork || k == FailureStallTimeout
}

// Job represents one requested download, tracked through its own lifecycle.
// Mutable fields are only ever touched by the worker slot currently
// executing the job.
type Job struct {
	ID        string
	SourceURL string
	Options   Options
	State     JobState
	Attempts  int
	Progress  float64 // 0.0-1.0, non-decreasing within an attempt
	Speed     string
	ETA       string
	LastError FailureKind
	ErrorText string
	CreatedAt time.Time
}

// NewJob builds a queued job for the given URL with a stable, URL-derived ID.
func NewJob(sourceURL string, opts Options) *Job {
	return &Job{
		ID:        JobID(sourceURL),
		SourceURL: sourceURL,
		Options:   opts,
		State:     StateQueued,
		CreatedAt: time.Now(),
	}
}

// JobID derives a stable identifier from a source URL. The same URL always
// maps to the same ID, across batches and across runs, so the archive can
// use it for set membership.
func JobID(sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:8])
}

// OutcomeKind is the classified result of one execution attempt.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeFailure    OutcomeKind = "failure"
	OutcomeTerminated OutcomeKind = "terminated"
)

// Outcome describes how one attempt of a job ended. Failure and Detail are
// set only when Kind == OutcomeFailure.
type Outcome struct {
	Kind    OutcomeKind
	Failure FailureKind
	Detail  string
}

// Success is the outcome of a confirmed completed transfer.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Failed builds a failure outcome of the given kind.
func Failed(kind FailureKind, detail string) Outcome {
	return Outcome{Kind: OutcomeFailure, Failure: kind, Detail: detail}
}

// Terminated is the outcome of a caller-requested cancellation. It does not
// count against the retry budget.
func Terminated() Outcome {
	return Outcome{Kind: OutcomeTerminated}
}
