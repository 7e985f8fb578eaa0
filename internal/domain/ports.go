package domain

import "context"

// Archive is the driven port for the persistent completion ledger. It is
// consulted before a job is scheduled and appended to after a confirmed
// success. Records are never revised or deleted by this core.
type Archive interface {
	Has(ctx context.Context, id string) (bool, error)
	Record(ctx context.Context, id string) error
}

// EventKind discriminates parsed downloader output lines.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventSkipped   EventKind = "skipped" // downloader reports item already present
	EventError     EventKind = "error"
)

// ProgressEvent is one parsed line of downloader output.
type ProgressEvent struct {
	Kind       EventKind
	Fraction   float64 // valid for EventProgress
	Speed      string
	ETA        string
	TotalBytes uint64 // 0 when the line carries no size
	Line       string
}

// Runner is the driven port for executing one attempt of a job via the
// external downloader process. Parsed progress events are forwarded to emit
// in the order the process produced them.
type Runner interface {
	CheckTools() error
	Run(ctx context.Context, job *Job, emit func(ProgressEvent)) Outcome
}

// Classifier maps the error output of a failed attempt to a failure kind.
// The boundary between transient and permanent depends on the external
// tool's own error text, so implementations are pattern tables the
// configuration can extend.
type Classifier interface {
	Classify(output string) FailureKind
}
