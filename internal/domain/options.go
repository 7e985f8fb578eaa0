package domain

// Options is the per-job configuration snapshot captured at batch submission.
// It is a closed set of named toggles, translated once into the external
// downloader's argument form at launch time, and immutable per job.
type Options struct {
	OutputDir      string
	AudioOnly      bool
	WriteThumbnail bool
	EmbedThumbnail bool
	WriteSubs      bool
	WriteMetadata  bool
	WriteComments  bool
	SplitChapters  bool
	SponsorBlock   bool
	Proxy          string // host:port, dialed as socks5
	CookiesFile    string
	RateLimit      string // e.g. "4M", empty for unlimited
}
