package domain

// BatchState is derived from the constituent job states; it is never
// mutated independently.
type BatchState string

const (
	BatchRunning        BatchState = "running"
	BatchSucceeded      BatchState = "succeeded"
	BatchFailed         BatchState = "failed"
	BatchPartialFailure BatchState = "partial_failure"
	BatchCancelled      BatchState = "cancelled"
)

// JobSnapshot is the published, torn-read-free view of one job.
type JobSnapshot struct {
	ID         string      `json:"id"`
	SourceURL  string      `json:"source_url"`
	State      JobState    `json:"state"`
	Attempts   int         `json:"attempts"`
	Progress   float64     `json:"progress"`
	Speed      string      `json:"speed,omitempty"`
	ETA        string      `json:"eta,omitempty"`
	TotalBytes uint64      `json:"total_bytes,omitempty"`
	LastError  FailureKind `json:"last_error,omitempty"`
	ErrorText  string      `json:"error_text,omitempty"`
}

// BatchSnapshot is the published view of a whole batch. Jobs preserve
// submission order.
type BatchSnapshot struct {
	Handle   string           `json:"handle"`
	State    BatchState       `json:"state"`
	Progress float64          `json:"progress"`
	Counts   map[JobState]int `json:"counts"`
	Jobs     []JobSnapshot    `json:"jobs"`
}

// DeriveBatchState computes the aggregate state as a pure function of the
// job snapshots and whether cancellation was requested.
func DeriveBatchState(jobs []JobSnapshot, cancelRequested bool) BatchState {
	if len(jobs) == 0 {
		return BatchSucceeded
	}

	var succeeded, failed, cancelled int
	for _, j := range jobs {
		switch j.State {
		case StateSucceeded:
			succeeded++
		case StateFailed:
			failed++
		case StateCancelled:
			cancelled++
		default:
			return BatchRunning
		}
	}

	switch {
	case cancelRequested && cancelled > 0:
		return BatchCancelled
	case succeeded == len(jobs):
		return BatchSucceeded
	case failed == len(jobs):
		return BatchFailed
	default:
		return BatchPartialFailure
	}
}

// CountByState tallies jobs per state for the snapshot.
func CountByState(jobs []JobSnapshot) map[JobState]int {
	counts := make(map[JobState]int)
	for _, j := range jobs {
		counts[j.State]++
	}
	return counts
}

// OverallProgress averages per-job fractions, treating terminal successes
// as complete.
func OverallProgress(jobs []JobSnapshot) float64 {
	if len(jobs) == 0 {
		return 0
	}
	var sum float64
	for _, j := range jobs {
		if j.State == StateSucceeded {
			sum += 1.0
			continue
		}
		sum += j.Progress
	}
	return sum / float64(len(jobs))
}
