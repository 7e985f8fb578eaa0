// Package batch owns batch submission, the worker pool, and cancellation.
package batch

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vgrab/vgrab/internal/domain"
	"github.com/vgrab/vgrab/internal/progress"
	"github.com/vgrab/vgrab/internal/queue"
	"github.com/vgrab/vgrab/internal/retry"
)

var (
	ErrNoURLs        = errors.New("no URLs to download")
	ErrBatchNotFound = errors.New("batch not found")
)

// Controller is the top-level facade: it builds jobs from submitted URLs,
// runs the worker pool, and exposes cancellation and progress snapshots
// per batch handle.
type Controller struct {
	runner          domain.Runner
	archive         domain.Archive
	policy          retry.Policy
	concurrency     int
	publishInterval time.Duration

	mu      sync.Mutex
	batches map[string]*run
}

// run is one submitted batch while it is live.
type run struct {
	handle string
	jobs   []*domain.Job
	queue  *queue.Queue
	agg    *progress.Aggregator
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	outstanding int
	cancelled   bool
}

// New creates a controller. concurrency is the fixed number of worker
// slots per batch.
func New(runner domain.Runner, archive domain.Archive, policy retry.Policy, concurrency int, publishInterval time.Duration) *Controller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Controller{
		runner:          runner,
		archive:         archive,
		policy:          policy,
		concurrency:     concurrency,
		publishInterval: publishInterval,
		batches:         make(map[string]*run),
	}
}

// Submit deduplicates the URLs, builds one job per distinct URL with the
// shared option snapshot, and starts the worker pool. It fails without
// creating a batch when the external downloader is missing: that condition
// is batch-fatal, not per-job.
func (c *Controller) Submit(urls []string, opts domain.Options) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoURLs
	}
	if err := c.runner.CheckTools(); err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	var jobs []*domain.Job
	for _, u := range urls {
		job := domain.NewJob(u, opts)
		if seen[job.ID] {
			continue
		}
		seen[job.ID] = true
		jobs = append(jobs, job)
	}

	handle := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		handle: handle,
		jobs:   jobs,
		queue:  queue.New(),
		agg:    progress.New(handle, jobs, c.publishInterval),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	for _, job := range jobs {
		if _, err := url.ParseRequestURI(job.SourceURL); err != nil {
			job.State = domain.StateFailed
			job.LastError = domain.FailurePermanentSource
			job.ErrorText = "invalid URL"
			r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
			continue
		}
		r.mu.Lock()
		r.outstanding++
		r.mu.Unlock()
		r.queue.Push(job)
	}

	c.mu.Lock()
	c.batches[handle] = r
	c.mu.Unlock()

	r.agg.Start()

	r.mu.Lock()
	if r.outstanding == 0 {
		r.queue.Close()
	}
	r.mu.Unlock()

	var slots sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		slots.Add(1)
		go func() {
			defer slots.Done()
			c.slot(ctx, r)
		}()
	}
	go func() {
		slots.Wait()
		// A retry racing a cancellation can land in the queue after the
		// drain; sweep it so no job is left non-terminal.
		for _, job := range r.queue.Drain() {
			job.State = domain.StateCancelled
			r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
		}
		r.agg.Stop()
		cancel()
		close(r.done)
	}()

	log.Printf("batch %s: submitted %d job(s), %d slot(s)", handle, len(jobs), c.concurrency)
	return handle, nil
}

// Cancel requests termination of the batch and returns immediately.
// Pending jobs are marked cancelled without spawning their processes;
// in-flight processes receive the termination signal sequence. Completion
// is observable via Snapshot.
func (c *Controller) Cancel(handle string) error {
	r, err := c.run(handle)
	if err != nil {
		return err
	}

	r.mu.Lock()
	already := r.cancelled
	r.cancelled = true
	r.mu.Unlock()
	if already {
		return nil
	}

	log.Printf("batch %s: cancellation requested", handle)
	r.agg.SetCancelRequested()

	for _, job := range r.queue.Drain() {
		job.State = domain.StateCancelled
		r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
		r.finish()
	}
	r.cancel()
	return nil
}

// Snapshot returns the published view of the batch.
func (c *Controller) Snapshot(handle string) (domain.BatchSnapshot, error) {
	r, err := c.run(handle)
	if err != nil {
		return domain.BatchSnapshot{}, err
	}
	return r.agg.Snapshot(), nil
}

// Subscribe returns a channel of coalesced snapshots for the batch, closed
// when the batch finishes.
func (c *Controller) Subscribe(handle string) (<-chan domain.BatchSnapshot, error) {
	r, err := c.run(handle)
	if err != nil {
		return nil, err
	}
	return r.agg.Subscribe(), nil
}

// Wait blocks until every job in the batch reached a terminal state.
func (c *Controller) Wait(handle string) error {
	r, err := c.run(handle)
	if err != nil {
		return err
	}
	<-r.done
	return nil
}

func (c *Controller) run(handle string) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.batches[handle]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return r, nil
}

// finish marks one job as terminal; once none are outstanding the queue
// closes and the slots drain out.
func (r *run) finish() {
	r.mu.Lock()
	r.outstanding--
	closeNow := r.outstanding == 0
	r.mu.Unlock()
	if closeNow {
		r.queue.Close()
	}
}
