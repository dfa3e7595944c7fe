package secrets

import (
	"fmt"
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding is a detected secret.
type Finding struct {
	RuleID   string
	RuleDesc string
	Line     int
	Match    string
}

// Detector scans text with the Gitleaks default rule set. Building the
// rule set is expensive, so a Detector is created once and reused.
type Detector struct {
	mu        sync.Mutex
	detector  *detect.Detector
	allowlist *Allowlist
}

// NewDetector compiles the default rules plus the allowlist.
func NewDetector(allowlist *Allowlist) (*Detector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if !allowlist.Empty() {
		if err := applyAllowlist(&d.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Detector{detector: d, allowlist: allowlist}, nil
}

// Detect returns the secrets found in content.
func (d *Detector) Detect(content string) []Finding {
	d.mu.Lock()
	raw := d.detector.DetectString(content)
	d.mu.Unlock()

	out := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			Match:    f.Secret,
		})
	}
	return out
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{
		Description: "ragd allowlist",
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}
