package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds patterns excluded from secret detection.
type Allowlist struct {
	Paths   []string // source path regex patterns to ignore
	Regexes []string // content regex patterns to ignore
}

// Empty reports whether the allowlist has no patterns.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.Paths) == 0 && len(a.Regexes) == 0)
}

// LoadAllowlist reads an allowlist file of the form
//
//	[allowlist]
//	paths = ["^testdata/"]
//	regexes = ["EXAMPLE_KEY_[0-9]+"]
//
// A missing file yields an empty allowlist. An empty path skips loading.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var file struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern '%s' in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern '%s' in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   file.Allowlist.Paths,
		Regexes: file.Allowlist.Regexes,
	}, nil
}

// pathAllowed reports whether source matches one of the path patterns.
func (a *Allowlist) pathAllowed(source string) bool {
	if a == nil || source == "" {
		return false
	}
	for _, pattern := range a.Paths {
		if re, err := regexp.Compile(pattern); err == nil && re.MatchString(source) {
			return true
		}
	}
	return false
}
