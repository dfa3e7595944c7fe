// Package secrets redacts credentials from document text before it is
// chunked and sent to an embedding provider.
//
// Detection uses the Gitleaks default rule set. An optional TOML allowlist
// excludes known-safe content patterns.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
