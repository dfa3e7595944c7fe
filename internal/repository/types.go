package repository

import "time"

const (
	// DefaultMaxFileSize applies when IndexOptions.MaxFileSize is zero.
	DefaultMaxFileSize int64 = 1024 * 1024
	// MaxFileSizeLimit is the largest accepted MaxFileSize.
	MaxFileSizeLimit int64 = 10 * 1024 * 1024
)

// IndexOptions configures a bulk index run.
type IndexOptions struct {
	// IncludePatterns restrict indexing to matching files. Empty includes
	// everything not excluded.
	IncludePatterns []string `json:"include,omitempty"`

	// ExcludePatterns take precedence over IncludePatterns.
	ExcludePatterns []string `json:"exclude,omitempty"`

	// MaxFileSize in bytes. Zero means DefaultMaxFileSize.
	MaxFileSize int64 `json:"max_file_size,omitempty"`

	// SourcePrefix is prepended to every relative path to form the source.
	SourcePrefix string `json:"source_prefix,omitempty"`

	// Metadata is attached to every ingested file.
	Metadata map[string]any `json:"metadata,omitempty"`

	// NoIgnoreFiles disables reading .gitignore and .ragdignore at the root.
	NoIgnoreFiles bool `json:"no_ignore_files,omitempty"`
}

// FileError records a file that could not be ingested.
type FileError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// IndexResult summarizes an index run.
type IndexResult struct {
	Path            string      `json:"path"`
	Branch          string      `json:"branch,omitempty"`
	Commit          string      `json:"commit,omitempty"`
	FilesIndexed    int         `json:"files_indexed"`
	FilesSkipped    int         `json:"files_skipped"`
	FilesIgnored    int         `json:"files_ignored,omitempty"`
	Chunks          int         `json:"chunks"`
	Redactions      int         `json:"redactions,omitempty"`
	Failed          []FileError `json:"failed,omitempty"`
	IncludePatterns []string    `json:"include,omitempty"`
	ExcludePatterns []string    `json:"exclude,omitempty"`
	IgnorePatterns  []string    `json:"ignore_patterns,omitempty"`
	MaxFileSize     int64       `json:"max_file_size"`
	IndexedAt       time.Time   `json:"indexed_at"`
}
