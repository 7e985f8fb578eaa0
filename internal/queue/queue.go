// Package queue provides the FIFO job queue shared by the worker slots.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vgrab/vgrab/internal/domain"
)

// ErrClosed is returned by Pop once the queue is closed and no further jobs
// will be produced.
var ErrClosed = errors.New("queue closed")

type item struct {
	job     *domain.Job
	readyAt time.Time
}

// Queue is a thread-safe FIFO of pending jobs. Retried jobs re-enter at the
// back with a readiness delay, so a backing-off job never blocks a slot from
// servicing fresh work.
type Queue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	wake   chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{wake: make(chan struct{})}
}

// Push appends a job that is immediately eligible for dequeue.
func (q *Queue) Push(job *domain.Job) {
	q.PushDelayed(job, 0)
}

// PushDelayed appends a job that becomes eligible after delay.
func (q *Queue) PushDelayed(job *domain.Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var readyAt time.Time
	if delay > 0 {
		readyAt = time.Now().Add(delay)
	}
	q.items = append(q.items, item{job: job, readyAt: readyAt})
	q.notifyLocked()
}

// Pop blocks until the earliest-enqueued eligible job is available, the
// context is done, or the queue is closed.
func (q *Queue) Pop(ctx context.Context) (*domain.Job, error) {
	for {
		q.mu.Lock()
		now := time.Now()
		idx := -1
		var soonest time.Time
		for i, it := range q.items {
			if !it.readyAt.After(now) {
				idx = i
				break
			}
			if soonest.IsZero() || it.readyAt.Before(soonest) {
				soonest = it.readyAt
			}
		}
		if idx >= 0 {
			job := q.items[idx].job
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()

		var timerC <-chan time.Time
		var timer *time.Timer
		if !soonest.IsZero() {
			timer = time.NewTimer(time.Until(soonest))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Drain removes and returns every pending job, ready or not. Used on batch
// cancellation to mark not-yet-started jobs cancelled without spawning
// their processes.
func (q *Queue) Drain() []*domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]*domain.Job, 0, len(q.items))
	for _, it := range q.items {
		jobs = append(jobs, it.job)
	}
	q.items = nil
	return jobs
}

// Close marks the queue as producing no further jobs and wakes all waiters.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notifyLocked()
}

// Len reports the number of pending jobs, including delayed ones.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notifyLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
