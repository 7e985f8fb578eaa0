package ytdlp

import (
	"testing"

	"github.com/vgrab/vgrab/internal/domain"
)

func TestParseLine_Progress(t *testing.T) {
	ev, ok := ParseLine("[download]  45.2% of   10.00MiB at    2.35MiB/s ETA 00:12")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Kind != domain.EventProgress {
		t.Errorf("Kind = %q, want progress", ev.Kind)
	}
	if ev.Fraction != 0.452 {
		t.Errorf("Fraction = %v, want 0.452", ev.Fraction)
	}
	if ev.Speed != "2.35MiB/s" {
		t.Errorf("Speed = %q, want %q", ev.Speed, "2.35MiB/s")
	}
	if ev.ETA != "00:12" {
		t.Errorf("ETA = %q, want %q", ev.ETA, "00:12")
	}
	if ev.TotalBytes != 10*1024*1024 {
		t.Errorf("TotalBytes = %d, want %d", ev.TotalBytes, 10*1024*1024)
	}
}

func TestParseLine_EstimatedSize(t *testing.T) {
	ev, ok := ParseLine("[download]   3.1% of ~ 250.00MiB at  1.10MiB/s ETA 03:42")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.TotalBytes != 250*1024*1024 {
		t.Errorf("TotalBytes = %d, want estimate parsed", ev.TotalBytes)
	}
}

func TestParseLine_Completed(t *testing.T) {
	ev, ok := ParseLine("[download] 100% of 10.00MiB in 00:05")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Kind != domain.EventCompleted {
		t.Errorf("Kind = %q, want completed", ev.Kind)
	}
	if ev.Fraction != 1.0 {
		t.Errorf("Fraction = %v, want 1.0", ev.Fraction)
	}
}

func TestParseLine_FinishedDownloading(t *testing.T) {
	ev, ok := ParseLine("[download] Finished downloading playlist: Mix")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Kind != domain.EventCompleted {
		t.Errorf("Kind = %q, want completed", ev.Kind)
	}
}

func TestParseLine_AlreadyDownloaded(t *testing.T) {
	ev, ok := ParseLine("[download] Some Video.mp4 has already been downloaded")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Kind != domain.EventSkipped {
		t.Errorf("Kind = %q, want skipped", ev.Kind)
	}
}

func TestParseLine_Error(t *testing.T) {
	ev, ok := ParseLine("ERROR: [youtube] abc123: Video unavailable")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Kind != domain.EventError {
		t.Errorf("Kind = %q, want error", ev.Kind)
	}
}

func TestParseLine_Ignored(t *testing.T) {
	ignored := []string{
		"",
		"[youtube] abc123: Downloading webpage",
		"[download] Destination: /tmp/Some Video.mp4",
		"[Merger] Merging formats",
		"WARNING: unable to extract channel id",
	}
	for _, line := range ignored {
		if _, ok := ParseLine(line); ok {
			t.Errorf("ParseLine(%q) recognized, want ignored", line)
		}
	}
}

func TestParseLine_UnknownSpeedAndETA(t *testing.T) {
	ev, ok := ParseLine("[download]   0.0% of 10.00MiB at Unknown speed ETA Unknown")
	if !ok {
		t.Fatal("ParseLine() not recognized")
	}
	if ev.Speed != "" {
		t.Errorf("Speed = %q, want empty for Unknown", ev.Speed)
	}
}
