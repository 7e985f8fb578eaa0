package ytdlp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vgrab/vgrab/internal/domain"
)

// yt-dlp with --newline emits one progress line per update:
//
//	[download]  45.2% of   10.00MiB at    2.35MiB/s ETA 00:12
//	[download] 100% of 10.00MiB in 00:05
//	[download] Video.mp4 has already been downloaded
//	ERROR: [youtube] abc: Video unavailable
var progressRe = regexp.MustCompile(`^\[download\]\s+([\d.]+)%(?:\s+of\s+~?\s*(\S+))?(?:\s+at\s+(\S+))?(?:\s+(?:ETA|in)\s+(\S+))?`)

// ParseLine maps one output line to a progress event. The second return is
// false for lines that carry no progress information.
func ParseLine(line string) (domain.ProgressEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.ProgressEvent{}, false
	}

	if strings.HasPrefix(line, "ERROR") {
		return domain.ProgressEvent{Kind: domain.EventError, Line: line}, true
	}

	if strings.HasPrefix(line, "[download]") && strings.Contains(line, "has already been downloaded") {
		return domain.ProgressEvent{Kind: domain.EventSkipped, Fraction: 1.0, Line: line}, true
	}

	if strings.HasPrefix(line, "[download]") && strings.Contains(line, "Finished downloading") {
		return domain.ProgressEvent{Kind: domain.EventCompleted, Fraction: 1.0, Line: line}, true
	}

	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return domain.ProgressEvent{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.ProgressEvent{}, false
	}

	ev := domain.ProgressEvent{
		Kind:     domain.EventProgress,
		Fraction: percent / 100.0,
		Line:     line,
	}
	if m[2] != "" {
		if total, err := humanize.ParseBytes(m[2]); err == nil {
			ev.TotalBytes = total
		}
	}
	if m[3] != "" && m[3] != "Unknown" {
		ev.Speed = m[3]
	}
	if m[4] != "" && m[4] != "Unknown" {
		ev.ETA = m[4]
	}

	if percent >= 100 {
		ev.Kind = domain.EventCompleted
		ev.Fraction = 1.0
	}
	return ev, true
}
