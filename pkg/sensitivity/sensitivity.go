package sensitivity

import "strings"

// DefaultPatterns is the stock keyword list. The classifier is
// recall-biased: false positives only hide a chunk from non-admins, a
// false negative exposes it, so when tuning this list prefer matching too
// much over too little.
var DefaultPatterns = []string{
	"password",
	"secret",
	"api key",
	"confidential",
	"ssn",
	"credit card",
}

// Classifier flags chunk text by case-insensitive substring match against
// an ordered pattern list. Operators inject their own list at startup;
// nothing here is hardcoded beyond the default.
type Classifier struct {
	patterns []string
}

func New(patterns []string) Classifier {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return Classifier{patterns: lowered}
}

// Sensitive reports explicit || heuristic for a single chunk. The decision
// is per chunk: one sensitive chunk does not taint its siblings.
func (c Classifier) Sensitive(text string, explicit bool) bool {
	if explicit {
		return true
	}
	t := strings.ToLower(text)
	for _, p := range c.patterns {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
