package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vgrab/vgrab/internal/domain"
	"github.com/vgrab/vgrab/internal/retry"
)

// fakeDownloader writes a shell script standing in for yt-dlp and returns
// its path.
func fakeDownloader(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake downloader: %v", err)
	}
	return path
}

func testRunner(t *testing.T, script string) *Runner {
	t.Helper()
	classifier, err := retry.NewClassifier(nil, nil)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	r := New(fakeDownloader(t, script), classifier)
	r.SetHelper("")
	return r
}

type eventSink struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (s *eventSink) emit(ev domain.ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) all() []domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProgressEvent(nil), s.events...)
}

func TestRunner_Success(t *testing.T) {
	r := testRunner(t, `
echo '[download]  25.0% of 10.00MiB at 2.00MiB/s ETA 00:10'
echo '[download]  75.0% of 10.00MiB at 2.00MiB/s ETA 00:02'
echo '[download] 100% of 10.00MiB in 00:05'
`)
	sink := &eventSink{}
	job := domain.NewJob("https://example.com/v", domain.Options{})

	out := r.Run(context.Background(), job, sink.emit)
	if out.Kind != domain.OutcomeSuccess {
		t.Fatalf("Run() = %+v, want success", out)
	}

	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Fraction >= events[1].Fraction {
		t.Error("events not in emission order")
	}
	if events[2].Kind != domain.EventCompleted {
		t.Errorf("last event = %q, want completed", events[2].Kind)
	}
}

func TestRunner_ZeroExitWithoutMarkerIsFailure(t *testing.T) {
	r := testRunner(t, `
echo '[download]  25.0% of 10.00MiB at 2.00MiB/s ETA 00:10'
exit 0
`)
	job := domain.NewJob("https://example.com/v", domain.Options{})

	out := r.Run(context.Background(), job, func(domain.ProgressEvent) {})
	if out.Kind != domain.OutcomeFailure {
		t.Fatalf("Run() = %+v, want failure without completion marker", out)
	}
}

func TestRunner_NonZeroExitClassified(t *testing.T) {
	r := testRunner(t, `
echo 'ERROR: [youtube] abc123: Video unavailable' >&2
exit 1
`)
	job := domain.NewJob("https://example.com/v", domain.Options{})

	out := r.Run(context.Background(), job, func(domain.ProgressEvent) {})
	if out.Kind != domain.OutcomeFailure {
		t.Fatalf("Run() = %+v, want failure", out)
	}
	if out.Failure != domain.FailurePermanentSource {
		t.Errorf("Failure = %q, want permanent source", out.Failure)
	}
}

func TestRunner_StallTerminatesProcess(t *testing.T) {
	r := testRunner(t, `
echo '[download]  10.0% of 10.00MiB at 1.00MiB/s ETA 01:00'
sleep 30
`)
	r.SetStallWindow(100 * time.Millisecond)
	r.SetGraceWindow(100 * time.Millisecond)
	job := domain.NewJob("https://example.com/v", domain.Options{})

	start := time.Now()
	out := r.Run(context.Background(), job, func(domain.ProgressEvent) {})
	if time.Since(start) > 10*time.Second {
		t.Fatal("stalled process not terminated promptly")
	}
	if out.Kind != domain.OutcomeFailure || out.Failure != domain.FailureStallTimeout {
		t.Fatalf("Run() = %+v, want stall timeout failure", out)
	}
}

func TestRunner_CancelledContextIsTerminated(t *testing.T) {
	r := testRunner(t, `
echo '[download]  10.0% of 10.00MiB at 1.00MiB/s ETA 01:00'
sleep 30
`)
	r.SetGraceWindow(100 * time.Millisecond)
	job := domain.NewJob("https://example.com/v", domain.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := r.Run(ctx, job, func(domain.ProgressEvent) {})
	if time.Since(start) > 10*time.Second {
		t.Fatal("cancelled process did not exit promptly")
	}
	if out.Kind != domain.OutcomeTerminated {
		t.Fatalf("Run() = %+v, want terminated", out)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	classifier, _ := retry.NewClassifier(nil, nil)
	r := New(filepath.Join(t.TempDir(), "does-not-exist"), classifier)
	r.SetHelper("")

	if err := r.CheckTools(); err == nil {
		t.Error("CheckTools() error = nil, want missing dependency")
	}
}
