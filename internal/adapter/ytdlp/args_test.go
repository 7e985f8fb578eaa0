package ytdlp

import (
	"slices"
	"strings"
	"testing"

	"github.com/vgrab/vgrab/internal/domain"
)

func argsFor(opts domain.Options) []string {
	return BuildArgs(domain.NewJob("https://youtube.com/watch?v=abc", opts))
}

func hasFlag(args []string, flag string) bool {
	return slices.Contains(args, flag)
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildArgs_Defaults(t *testing.T) {
	args := argsFor(domain.Options{OutputDir: "/tmp/out"})

	if !hasFlag(args, "--newline") {
		t.Error("missing --newline")
	}
	if got := flagValue(args, "-o"); !strings.HasPrefix(got, "/tmp/out/") {
		t.Errorf("-o = %q, want output under /tmp/out", got)
	}
	if got := flagValue(args, "-f"); got != "bestvideo+bestaudio/best" {
		t.Errorf("-f = %q, want best video+audio", got)
	}
	if args[len(args)-1] != "https://youtube.com/watch?v=abc" {
		t.Errorf("last arg = %q, want the URL", args[len(args)-1])
	}
	if args[len(args)-2] != "--" {
		t.Error("URL not separated from flags with --")
	}
}

func TestBuildArgs_AudioOnly(t *testing.T) {
	args := argsFor(domain.Options{AudioOnly: true})

	if got := flagValue(args, "-f"); got != "bestaudio/best" {
		t.Errorf("-f = %q, want bestaudio/best", got)
	}
	if !hasFlag(args, "--extract-audio") {
		t.Error("missing --extract-audio")
	}
	if got := flagValue(args, "--audio-format"); got != "mp3" {
		t.Errorf("--audio-format = %q, want mp3", got)
	}
}

func TestBuildArgs_Toggles(t *testing.T) {
	tests := []struct {
		name string
		opts domain.Options
		want []string
	}{
		{"thumbnail", domain.Options{WriteThumbnail: true}, []string{"--write-thumbnail"}},
		{"embed thumbnail implies write", domain.Options{EmbedThumbnail: true}, []string{"--write-thumbnail", "--embed-thumbnail"}},
		{"subs", domain.Options{WriteSubs: true}, []string{"--write-subs", "--write-auto-subs"}},
		{"metadata", domain.Options{WriteMetadata: true}, []string{"--write-info-json", "--write-description"}},
		{"comments", domain.Options{WriteComments: true}, []string{"--write-comments"}},
		{"chapters", domain.Options{SplitChapters: true}, []string{"--split-chapters"}},
		{"sponsorblock", domain.Options{SponsorBlock: true}, []string{"--sponsorblock-mark", "--sponsorblock-remove"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := argsFor(tt.opts)
			for _, flag := range tt.want {
				if !hasFlag(args, flag) {
					t.Errorf("missing %s", flag)
				}
			}
		})
	}
}

func TestBuildArgs_ProxyAndCookies(t *testing.T) {
	args := argsFor(domain.Options{Proxy: "127.0.0.1:9050", CookiesFile: "/tmp/cookies.txt", RateLimit: "4M"})

	if got := flagValue(args, "--proxy"); got != "socks5://127.0.0.1:9050" {
		t.Errorf("--proxy = %q, want socks5 form", got)
	}
	if got := flagValue(args, "--cookies"); got != "/tmp/cookies.txt" {
		t.Errorf("--cookies = %q", got)
	}
	if got := flagValue(args, "--limit-rate"); got != "4M" {
		t.Errorf("--limit-rate = %q, want 4M", got)
	}
}

func TestBuildArgs_Deterministic(t *testing.T) {
	opts := domain.Options{AudioOnly: true, SponsorBlock: true, Proxy: "127.0.0.1:1080"}
	a := argsFor(opts)
	b := argsFor(opts)
	if !slices.Equal(a, b) {
		t.Error("BuildArgs() not deterministic for identical options")
	}
}
