package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vgrab/vgrab/internal/domain"
)

// Default supervision windows.
const (
	DefaultStallWindow = 2 * time.Minute
	DefaultGraceWindow = 10 * time.Second
)

const maxErrText = 8192

// Runner executes one external downloader process per job. Each invocation
// is isolated: the process communicates only via its output streams and
// exit status, and the supervising slot holds the only handle to it.
type Runner struct {
	binary     string
	helper     string // checked alongside the downloader, typically ffmpeg
	stall      time.Duration
	grace      time.Duration
	classifier domain.Classifier
}

// New creates a runner for the given downloader binary.
func New(binary string, classifier domain.Classifier) *Runner {
	return &Runner{
		binary:     binary,
		helper:     "ffmpeg",
		stall:      DefaultStallWindow,
		grace:      DefaultGraceWindow,
		classifier: classifier,
	}
}

// SetStallWindow overrides the no-output window after which a process is
// terminated and the attempt counted as a transient failure. Zero disables
// stall detection.
func (r *Runner) SetStallWindow(d time.Duration) { r.stall = d }

// SetGraceWindow overrides the delay between the graceful and the forced
// termination signal.
func (r *Runner) SetGraceWindow(d time.Duration) { r.grace = d }

// SetHelper overrides the helper binary probed by CheckTools. Empty skips
// the helper probe.
func (r *Runner) SetHelper(name string) { r.helper = name }

// CheckTools verifies the downloader and its helper are on PATH. A missing
// tool is batch-fatal, not per-job.
func (r *Runner) CheckTools() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("missing dependency: %s not found on PATH", r.binary)
	}
	if r.helper != "" {
		if _, err := exec.LookPath(r.helper); err != nil {
			return fmt.Errorf("missing dependency: %s not found on PATH", r.helper)
		}
	}
	return nil
}

// Run executes one attempt for the job and classifies how it ended. It does
// not return until the process has actually exited, so a Terminated outcome
// never leaves an orphan behind.
func (r *Runner) Run(ctx context.Context, job *domain.Job, emit func(domain.ProgressEvent)) domain.Outcome {
	cmd := exec.Command(r.binary, BuildArgs(job)...)
	// Own process group, so termination signals reach helper children
	// (ffmpeg) that would otherwise keep the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.Failed(domain.FailureTransientNetwork, fmt.Sprintf("stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.Failed(domain.FailureTransientNetwork, fmt.Sprintf("stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return domain.Failed(domain.FailureExternalTool, fmt.Sprintf("%s not found", r.binary))
		}
		return domain.Failed(domain.FailureTransientNetwork, fmt.Sprintf("start %s: %v", r.binary, err))
	}

	var (
		mu            sync.Mutex
		lastOutput    = time.Now()
		sawCompletion bool
		errText       strings.Builder
		stalled       bool
	)

	consume := func(rd io.Reader, isStderr bool) {
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitCRorLF)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			lastOutput = time.Now()
			if isStderr || strings.HasPrefix(line, "ERROR") {
				appendLimited(&errText, line)
			}
			if ev, ok := ParseLine(line); ok {
				if ev.Kind == domain.EventCompleted || ev.Kind == domain.EventSkipped {
					sawCompletion = true
				}
				// Emitting under the lock preserves per-job event order.
				emit(ev)
			}
			mu.Unlock()
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); consume(stdout, false) }()
	go func() { defer readers.Done(); consume(stderr, true) }()

	exited := make(chan struct{})
	var termOnce sync.Once
	terminate := func() {
		termOnce.Do(func() {
			signalGroup(cmd.Process.Pid, syscall.SIGINT)
			go func() {
				select {
				case <-exited:
				case <-time.After(r.grace):
					signalGroup(cmd.Process.Pid, syscall.SIGKILL)
				}
			}()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			terminate()
		case <-exited:
		}
	}()

	if r.stall > 0 {
		go func() {
			tick := r.stall / 4
			if tick < 10*time.Millisecond {
				tick = 10 * time.Millisecond
			}
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			for {
				select {
				case <-exited:
					return
				case <-ticker.C:
					mu.Lock()
					idle := time.Since(lastOutput)
					mu.Unlock()
					if idle > r.stall {
						mu.Lock()
						stalled = true
						mu.Unlock()
						terminate()
						return
					}
				}
			}
		}()
	}

	readers.Wait()
	waitErr := cmd.Wait()
	close(exited)

	mu.Lock()
	defer mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return domain.Terminated()
	case stalled:
		return domain.Failed(domain.FailureStallTimeout,
			fmt.Sprintf("no output for %s", r.stall))
	case waitErr != nil:
		detail := strings.TrimSpace(errText.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		return domain.Failed(r.classifier.Classify(detail), detail)
	case sawCompletion:
		return domain.Success()
	default:
		// Exit code zero without a completion marker is not evidence of a
		// finished transfer.
		return domain.Failed(domain.FailureTransientNetwork,
			"process exited without a completion marker")
	}
}

func signalGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		syscall.Kill(pid, sig)
	}
}

// splitCRorLF tokenizes on either newline or carriage return; yt-dlp
// rewrites progress lines with bare CRs when not given --newline.
func splitCRorLF(data []byte, atEOF bool) (int, []byte, error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string) {
	if b.Len() >= maxErrText {
		return
	}
	toWrite := line + "\n"
	if remain := maxErrText - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
