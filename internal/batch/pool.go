package batch

import (
	"context"
	"log"

	"github.com/vgrab/vgrab/internal/domain"
)

// slot is one worker execution slot: it pulls jobs until the queue closes
// or the batch is cancelled, executing at most one external process at a
// time.
func (c *Controller) slot(ctx context.Context, r *run) {
	for {
		job, err := r.queue.Pop(ctx)
		if err != nil {
			return
		}
		c.execute(ctx, r, job)
	}
}

// execute runs one attempt of the job and applies the retry policy to the
// outcome. The slot holds exclusive mutation rights over the job for the
// duration.
func (c *Controller) execute(ctx context.Context, r *run, job *domain.Job) {
	job.State = domain.StateRunning
	job.Attempts++
	job.Progress = 0
	r.agg.SetState(job.ID, job.State, job.Attempts, domain.FailureNone, "")

	out := c.supervise(ctx, r, job)

	switch out.Kind {
	case domain.OutcomeSuccess:
		job.State = domain.StateSucceeded
		job.LastError = domain.FailureNone
		job.ErrorText = ""
		r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
		log.Printf("job %s: succeeded (%s)", job.ID, job.SourceURL)
		r.finish()

	case domain.OutcomeTerminated:
		job.State = domain.StateCancelled
		r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
		log.Printf("job %s: cancelled", job.ID)
		r.finish()

	case domain.OutcomeFailure:
		job.LastError = out.Failure
		job.ErrorText = out.Detail
		if again, delay := c.policy.Decide(job, out); again && ctx.Err() == nil {
			job.State = domain.StateQueued
			job.Progress = 0
			r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
			log.Printf("job %s: attempt %d failed (%s), retrying in %s", job.ID, job.Attempts, out.Failure, delay)
			r.queue.PushDelayed(job, delay)
			return
		}
		job.State = domain.StateFailed
		r.agg.SetState(job.ID, job.State, job.Attempts, job.LastError, job.ErrorText)
		log.Printf("job %s: failed permanently after %d attempt(s): %s", job.ID, job.Attempts, out.Failure)
		r.finish()
	}
}

// supervise consults the archive before spawning: an already-archived id
// short-circuits to success without a process. A confirmed success is
// recorded after the completion marker, never before.
func (c *Controller) supervise(ctx context.Context, r *run, job *domain.Job) domain.Outcome {
	if done, err := c.archive.Has(ctx, job.ID); err != nil {
		log.Printf("job %s: archive lookup failed: %v", job.ID, err)
	} else if done {
		r.agg.OnEvent(job.ID, domain.ProgressEvent{Kind: domain.EventSkipped, Fraction: 1.0})
		log.Printf("job %s: already archived, skipping", job.ID)
		return domain.Success()
	}

	out := c.runner.Run(ctx, job, func(ev domain.ProgressEvent) {
		r.agg.OnEvent(job.ID, ev)
	})

	if out.Kind == domain.OutcomeSuccess {
		// Not the batch context: a success that races cancellation still
		// gets its archive record.
		if err := c.archive.Record(context.Background(), job.ID); err != nil {
			log.Printf("job %s: archive record failed: %v", job.ID, err)
		}
	}
	return out
}
