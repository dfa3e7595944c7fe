package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of a Scrub call.
type Result struct {
	Content    string         // text with secrets replaced by markers
	Redactions int            // number of replaced occurrences
	ByRule     map[string]int // replaced occurrences per rule id
	Duration   time.Duration
}

// Scrubber replaces detected secrets with [REDACTED:rule-id] markers. The
// marker keeps enough context for embeddings without carrying the secret.
type Scrubber struct {
	detector  *Detector
	allowlist *Allowlist
	logger    *zap.Logger
}

// NewScrubber loads the allowlist at allowlistPath (empty to skip) and
// builds the detector.
func NewScrubber(allowlistPath string, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowlist, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	detector, err := NewDetector(allowlist)
	if err != nil {
		return nil, err
	}
	return &Scrubber{detector: detector, allowlist: allowlist, logger: logger}, nil
}

// Scrub redacts secrets in content. source is matched against the
// allowlist path patterns; an allowlisted source is returned unchanged.
func (s *Scrubber) Scrub(source, content string) Result {
	start := time.Now()
	res := Result{Content: content, ByRule: map[string]int{}}

	if s.allowlist.pathAllowed(source) {
		res.Duration = time.Since(start)
		return res
	}

	findings := s.detector.Detect(content)
	res.Content, res.Redactions = replaceFindings(content, findings, res.ByRule)
	res.Duration = time.Since(start)

	if res.Redactions > 0 {
		s.logger.Info("secrets: redacted document content",
			zap.String("source", source),
			zap.Int("redactions", res.Redactions),
			zap.Any("by_rule", res.ByRule),
			zap.Duration("duration", res.Duration))
	}
	return res
}

// replaceFindings replaces every occurrence of each detected secret.
// Longer matches go first so a secret containing another is not split.
func replaceFindings(content string, findings []Finding, byRule map[string]int) (string, int) {
	if len(findings) == 0 {
		return content, 0
	}

	seen := make(map[string]bool, len(findings))
	unique := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if seen[f.Match] {
			continue
		}
		seen[f.Match] = true
		unique = append(unique, f)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return len(unique[i].Match) > len(unique[j].Match)
	})

	total := 0
	for _, f := range unique {
		n := strings.Count(content, f.Match)
		if n == 0 {
			continue
		}
		content = strings.ReplaceAll(content, f.Match, fmt.Sprintf("[REDACTED:%s]", f.RuleID))
		byRule[f.RuleID] += n
		total += n
	}
	return content, total
}
