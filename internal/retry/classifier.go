package retry

import (
	"fmt"
	"regexp"

	"github.com/vgrab/vgrab/internal/domain"
)

// Default pattern tables matched against the downloader's error output.
// Config-supplied patterns are prepended and win over these.
var (
	defaultTransient = []string{
		`(?i)timed? ?out`,
		`(?i)connection (reset|refused|aborted)`,
		`(?i)temporary failure`,
		`(?i)HTTP Error 429`,
		`(?i)HTTP Error 5\d\d`,
		`(?i)rate.?limit`,
		`(?i)unable to download.*retry`,
		`(?i)network is unreachable`,
	}
	defaultPermanent = []string{
		`(?i)video unavailable`,
		`(?i)private video`,
		`(?i)has been removed`,
		`(?i)is not a valid URL`,
		`(?i)unsupported url`,
		`(?i)sign in to confirm`,
		`(?i)HTTP Error 40[134]`,
		`(?i)geo.?(blocked|restricted)`,
		`(?i)account.+terminated`,
	}
)

// PatternClassifier implements domain.Classifier with ordered regexp
// tables. Permanent patterns are checked before transient ones.
type PatternClassifier struct {
	permanent []*regexp.Regexp
	transient []*regexp.Regexp
}

// NewClassifier compiles the default tables with the given config-supplied
// patterns prepended to each.
func NewClassifier(extraTransient, extraPermanent []string) (*PatternClassifier, error) {
	permanent, err := compileAll(append(extraPermanent, defaultPermanent...))
	if err != nil {
		return nil, err
	}
	transient, err := compileAll(append(extraTransient, defaultTransient...))
	if err != nil {
		return nil, err
	}
	return &PatternClassifier{permanent: permanent, transient: transient}, nil
}

// Classify maps error output to a failure kind. Output that matches neither
// table is treated as transient.
func (c *PatternClassifier) Classify(output string) domain.FailureKind {
	for _, re := range c.permanent {
		if re.MatchString(output) {
			return domain.FailurePermanentSource
		}
	}
	for _, re := range c.transient {
		if re.MatchString(output) {
			return domain.FailureTransientNetwork
		}
	}
	return domain.FailureTransientNetwork
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid classifier pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}
