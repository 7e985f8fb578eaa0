package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.Downloader != "yt-dlp" {
		t.Errorf("Downloader = %q, want yt-dlp", cfg.Downloader)
	}
	if cfg.StallWindow.Duration != 2*time.Minute {
		t.Errorf("StallWindow = %v, want 2m", cfg.StallWindow.Duration)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
concurrency = 5
max_attempts = 2
backoff_base = "1s"
stall_window = "45s"
output_dir = "/media/videos"
downloader = "yt-dlp-nightly"
port = 9090

[classifier]
transient_patterns = ["(?i)flaky mirror"]
permanent_patterns = ["(?i)paywalled"]

[defaults]
audio_only = true
sponsorblock = true
proxy = "127.0.0.1:9050"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.BackoffBase.Duration != time.Second {
		t.Errorf("BackoffBase = %v, want 1s", cfg.BackoffBase.Duration)
	}
	if cfg.StallWindow.Duration != 45*time.Second {
		t.Errorf("StallWindow = %v, want 45s", cfg.StallWindow.Duration)
	}
	if cfg.OutputDir != "/media/videos" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if len(cfg.Classifier.TransientPatterns) != 1 || cfg.Classifier.TransientPatterns[0] != "(?i)flaky mirror" {
		t.Errorf("TransientPatterns = %v", cfg.Classifier.TransientPatterns)
	}
	if !cfg.Defaults.AudioOnly || !cfg.Defaults.SponsorBlock {
		t.Error("defaults section not applied")
	}

	// Unset keys keep their built-in values.
	if cfg.GraceWindow.Duration != 10*time.Second {
		t.Errorf("GraceWindow = %v, want untouched default", cfg.GraceWindow.Duration)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`stall_window = "soon"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := Default().LoadFile(path); err == nil {
		t.Error("LoadFile() error = nil, want duration parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VGRAB_CONCURRENCY", "7")
	t.Setenv("VGRAB_OUTPUT_DIR", "/tmp/dl")
	t.Setenv("VGRAB_DOWNLOADER", "yt-dlp-local")

	cfg := Default()
	cfg.applyEnv()

	if cfg.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want env override 7", cfg.Concurrency)
	}
	if cfg.OutputDir != "/tmp/dl" {
		t.Errorf("OutputDir = %q, want env override", cfg.OutputDir)
	}
	if cfg.Downloader != "yt-dlp-local" {
		t.Errorf("Downloader = %q, want env override", cfg.Downloader)
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/media/videos"
	cfg.Defaults.AudioOnly = true
	cfg.Defaults.CookiesFile = "/tmp/cookies.txt"

	opts := cfg.Options()
	if opts.OutputDir != "/media/videos" {
		t.Errorf("OutputDir = %q", opts.OutputDir)
	}
	if !opts.AudioOnly {
		t.Error("AudioOnly not carried into options")
	}
	if opts.CookiesFile != "/tmp/cookies.txt" {
		t.Errorf("CookiesFile = %q", opts.CookiesFile)
	}
}
