package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration read from text such as "30s" or "2m". YAML
// values and RAGD_* variables both arrive as text.
type Duration time.Duration

// UnmarshalText rejects negative durations.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

const redacted = "[REDACTED]"

// Secret holds an API key or connection string. Every printed or encoded
// form is masked; only Value returns the contents.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string { return s.masked() }

func (s Secret) GoString() string { return "config.Secret(" + redacted + ")" }

// MarshalText also covers JSON, so a dumped config never leaks a key.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.masked()), nil }

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}
