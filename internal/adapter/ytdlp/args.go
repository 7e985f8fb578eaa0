// Package ytdlp supervises external yt-dlp processes: it builds the
// argument list from a job's option snapshot, streams and parses the
// process's line output, enforces the stall window, and owns termination.
package ytdlp

import (
	"path/filepath"

	"github.com/vgrab/vgrab/internal/domain"
)

const outputTemplate = "%(title)s.%(ext)s"

// sponsorCategories mirrors the marker categories the SponsorBlock
// postprocessor understands.
const sponsorCategories = "sponsor,intro,outro,selfpromo,interaction,preview,music_offtopic"

// BuildArgs translates a job's immutable option snapshot into the yt-dlp
// argument list. The mapping is deterministic: identical options always
// produce identical argv.
func BuildArgs(job *domain.Job) []string {
	opts := job.Options

	args := []string{
		"--newline",
		"-o", filepath.Join(opts.OutputDir, outputTemplate),
	}

	if opts.AudioOnly {
		args = append(args,
			"-f", "bestaudio/best",
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		)
	} else {
		args = append(args, "-f", "bestvideo+bestaudio/best")
	}

	if opts.WriteThumbnail || opts.EmbedThumbnail {
		args = append(args, "--write-thumbnail")
	}
	if opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if opts.WriteSubs {
		args = append(args, "--write-subs", "--write-auto-subs", "--sub-langs", "en")
	}
	if opts.WriteMetadata {
		args = append(args, "--write-info-json", "--write-description")
	}
	if opts.WriteComments {
		args = append(args, "--write-comments")
	}
	if opts.SplitChapters {
		args = append(args, "--split-chapters")
	}
	if opts.SponsorBlock {
		args = append(args,
			"--sponsorblock-mark", sponsorCategories,
			"--sponsorblock-remove", "sponsor",
		)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", "socks5://"+opts.Proxy)
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	if opts.RateLimit != "" {
		args = append(args, "--limit-rate", opts.RateLimit)
	}

	return append(args, "--", job.SourceURL)
}
