// Package progress merges per-job progress events into a coherent batch
// view and publishes it on a bounded cadence.
package progress

import (
	"sync"
	"time"

	"github.com/vgrab/vgrab/internal/domain"
)

// DefaultPublishInterval is the minimum spacing between published snapshots.
const DefaultPublishInterval = 500 * time.Millisecond

// Aggregator is the single writer of externally observable progress. Worker
// slots report state transitions and parsed output events here; observers
// only ever see whole snapshots, never live job structs.
type Aggregator struct {
	mu       sync.Mutex
	handle   string
	order    []string
	jobs     map[string]*domain.JobSnapshot
	cancel   bool
	dirty    bool
	stopped  bool
	subs     []chan domain.BatchSnapshot
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New seeds an aggregator with the batch's jobs in submission order.
func New(handle string, jobs []*domain.Job, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	a := &Aggregator{
		handle:   handle,
		jobs:     make(map[string]*domain.JobSnapshot, len(jobs)),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, j := range jobs {
		a.order = append(a.order, j.ID)
		a.jobs[j.ID] = &domain.JobSnapshot{
			ID:        j.ID,
			SourceURL: j.SourceURL,
			State:     j.State,
		}
	}
	return a
}

// Start begins the publication loop.
func (a *Aggregator) Start() {
	go a.publishLoop()
}

// Stop publishes a final snapshot and closes all subscriptions.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()
	close(a.stopCh)
	<-a.doneCh
}

// Subscribe returns a channel receiving coalesced batch snapshots. The
// channel has capacity one and always holds the latest snapshot; slow
// consumers miss intermediate states, never final ones. It is closed when
// the aggregator stops.
func (a *Aggregator) Subscribe() <-chan domain.BatchSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan domain.BatchSnapshot, 1)
	if a.stopped {
		ch <- a.snapshotLocked()
		close(ch)
		return ch
	}
	a.subs = append(a.subs, ch)
	return ch
}

// OnEvent applies one parsed downloader output line to the job's published
// fields. Fractions are monotonic within an attempt: a lower value than the
// current one is dropped.
func (a *Aggregator) OnEvent(jobID string, ev domain.ProgressEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	js, ok := a.jobs[jobID]
	if !ok {
		return
	}
	switch ev.Kind {
	case domain.EventProgress:
		if ev.Fraction > js.Progress {
			js.Progress = ev.Fraction
		}
		if ev.Speed != "" {
			js.Speed = ev.Speed
		}
		if ev.ETA != "" {
			js.ETA = ev.ETA
		}
		if ev.TotalBytes > 0 {
			js.TotalBytes = ev.TotalBytes
		}
	case domain.EventCompleted, domain.EventSkipped:
		js.Progress = 1.0
		js.Speed = ""
		js.ETA = ""
	}
	a.dirty = true
}

// SetState records a job state transition. A transition back to queued is a
// retry: the attempt counter advances and the fraction resets to zero.
func (a *Aggregator) SetState(jobID string, state domain.JobState, attempts int, lastError domain.FailureKind, errText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	js, ok := a.jobs[jobID]
	if !ok {
		return
	}
	js.State = state
	js.Attempts = attempts
	js.LastError = lastError
	js.ErrorText = errText
	if state == domain.StateQueued {
		js.Progress = 0
		js.Speed = ""
		js.ETA = ""
	}
	if state == domain.StateSucceeded {
		js.Progress = 1.0
		js.Speed = ""
		js.ETA = ""
	}
	a.dirty = true
}

// SetCancelRequested marks the batch as cancelling; the derived aggregate
// state honors it once all jobs are terminal.
func (a *Aggregator) SetCancelRequested() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel = true
	a.dirty = true
}

// Snapshot builds the current batch-wide view.
func (a *Aggregator) Snapshot() domain.BatchSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() domain.BatchSnapshot {
	jobs := make([]domain.JobSnapshot, 0, len(a.order))
	for _, id := range a.order {
		jobs = append(jobs, *a.jobs[id])
	}
	return domain.BatchSnapshot{
		Handle:   a.handle,
		State:    domain.DeriveBatchState(jobs, a.cancel),
		Progress: domain.OverallProgress(jobs),
		Counts:   domain.CountByState(jobs),
		Jobs:     jobs,
	}
}

func (a *Aggregator) publishLoop() {
	defer close(a.doneCh)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			a.publish(true)
			a.closeSubs()
			return
		case <-ticker.C:
			a.publish(false)
		}
	}
}

func (a *Aggregator) publish(force bool) {
	a.mu.Lock()
	if !a.dirty && !force {
		a.mu.Unlock()
		return
	}
	a.dirty = false
	snap := a.snapshotLocked()
	subs := a.subs
	a.mu.Unlock()

	for _, ch := range subs {
		// Latest-wins: displace a stale snapshot instead of blocking.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (a *Aggregator) closeSubs() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
