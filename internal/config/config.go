// Package config loads orchestrator settings from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vgrab/vgrab/internal/domain"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ClassifierConfig extends the failure classifier's pattern tables.
// Patterns listed here are checked before the built-in ones.
type ClassifierConfig struct {
	TransientPatterns []string `toml:"transient_patterns"`
	PermanentPatterns []string `toml:"permanent_patterns"`
}

// Defaults holds the user's persisted option toggles, applied to every job
// of a batch unless overridden at submission.
type Defaults struct {
	AudioOnly      bool   `toml:"audio_only"`
	WriteThumbnail bool   `toml:"write_thumbnail"`
	EmbedThumbnail bool   `toml:"embed_thumbnail"`
	WriteSubs      bool   `toml:"write_subs"`
	WriteMetadata  bool   `toml:"write_metadata"`
	WriteComments  bool   `toml:"write_comments"`
	SplitChapters  bool   `toml:"split_chapters"`
	SponsorBlock   bool   `toml:"sponsorblock"`
	Proxy          string `toml:"proxy"`
	CookiesFile    string `toml:"cookies_file"`
	RateLimit      string `toml:"rate_limit"`
}

// Config holds application configuration.
type Config struct {
	Concurrency     int      `toml:"concurrency"`
	MaxAttempts     int      `toml:"max_attempts"`
	BackoffBase     Duration `toml:"backoff_base"`
	BackoffMax      Duration `toml:"backoff_max"`
	StallWindow     Duration `toml:"stall_window"`
	GraceWindow     Duration `toml:"grace_window"`
	PublishInterval Duration `toml:"publish_interval"`
	OutputDir       string   `toml:"output_dir"`
	ArchiveDB       string   `toml:"archive_db"`
	Downloader      string   `toml:"downloader"`
	Port            int      `toml:"port"`

	Classifier ClassifierConfig `toml:"classifier"`
	Defaults   Defaults         `toml:"defaults"`
}

// DefaultArchivePath returns the default archive database path using
// XDG_CACHE_HOME.
func DefaultArchivePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "vgrab", "archive.db")
}

// DefaultConfigPath returns the default config file path using
// XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "vgrab", "config.toml")
}

// DefaultOutputDir returns the default download directory.
func DefaultOutputDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Concurrency:     3,
		MaxAttempts:     3,
		BackoffBase:     Duration{2 * time.Second},
		BackoffMax:      Duration{30 * time.Second},
		StallWindow:     Duration{2 * time.Minute},
		GraceWindow:     Duration{10 * time.Second},
		PublishInterval: Duration{500 * time.Millisecond},
		OutputDir:       DefaultOutputDir(),
		ArchiveDB:       DefaultArchivePath(),
		Downloader:      "yt-dlp",
		Port:            0,
	}
}

// Load builds the configuration: built-in defaults, then the config file
// (VGRAB_CONFIG or the XDG default, if present), then env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("VGRAB_CONFIG")
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFile merges the TOML file at path into the config.
func (c *Config) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VGRAB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("VGRAB_ARCHIVE_DB"); v != "" {
		c.ArchiveDB = v
	}
	if v := os.Getenv("VGRAB_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("VGRAB_DOWNLOADER"); v != "" {
		c.Downloader = v
	}
	if v := os.Getenv("VGRAB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
}

// Options builds the per-job option snapshot from the persisted defaults.
func (c *Config) Options() domain.Options {
	return domain.Options{
		OutputDir:      c.OutputDir,
		AudioOnly:      c.Defaults.AudioOnly,
		WriteThumbnail: c.Defaults.WriteThumbnail,
		EmbedThumbnail: c.Defaults.EmbedThumbnail,
		WriteSubs:      c.Defaults.WriteSubs,
		WriteMetadata:  c.Defaults.WriteMetadata,
		WriteComments:  c.Defaults.WriteComments,
		SplitChapters:  c.Defaults.SplitChapters,
		SponsorBlock:   c.Defaults.SponsorBlock,
		Proxy:          c.Defaults.Proxy,
		CookiesFile:    c.Defaults.CookiesFile,
		RateLimit:      c.Defaults.RateLimit,
	}
}
