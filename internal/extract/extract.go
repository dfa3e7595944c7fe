// Package extract converts uploaded documents into plain text.
//
// PDF and HTML are parsed with langchaingo document loaders. Plain text
// and markdown pass through. JSON documents yield their string values in
// document order.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// ErrParse is returned when input cannot be converted to text.
var ErrParse = errors.New("document could not be parsed")

// Format identifies a supported input format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Extractor turns raw document bytes into text.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Detect picks the format from the content type, then the file extension.
// Unknown formats that are valid UTF-8 are treated as text.
func Detect(name, contentType string, data []byte) (Format, error) {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mt {
			case "application/pdf":
				return FormatPDF, nil
			case "text/html", "application/xhtml+xml":
				return FormatHTML, nil
			case "application/json":
				return FormatJSON, nil
			case "text/markdown", "text/x-markdown":
				return FormatMarkdown, nil
			case "text/plain":
				return FormatText, nil
			}
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF, nil
	case ".html", ".htm", ".xhtml":
		return FormatHTML, nil
	case ".json":
		return FormatJSON, nil
	case ".md", ".markdown", ".mdx":
		return FormatMarkdown, nil
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, nil
	}
	if utf8.Valid(data) {
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unsupported binary content in %q", ErrParse, name)
}

// Extract returns the text content of data. name and contentType are
// hints for format detection and may be empty.
func (e *Extractor) Extract(ctx context.Context, name, contentType string, data []byte) (string, error) {
	format, err := Detect(name, contentType, data)
	if err != nil {
		return "", err
	}
	return e.ExtractFormat(ctx, format, data)
}

// ExtractFormat extracts text from data using an explicit format.
func (e *Extractor) ExtractFormat(ctx context.Context, format Format, data []byte) (string, error) {
	switch format {
	case FormatText, FormatMarkdown:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s input is not valid UTF-8", ErrParse, format)
		}
		return string(data), nil
	case FormatHTML:
		docs, err := documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: html: %v", ErrParse, err)
		}
		return joinDocuments(docs), nil
	case FormatPDF:
		docs, err := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: pdf: %v", ErrParse, err)
		}
		return joinDocuments(docs), nil
	case FormatJSON:
		return extractJSON(data)
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrParse, format)
	}
}

func joinDocuments(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.PageContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

type jsonFrame struct {
	object  bool
	wantKey bool
}

// extractJSON walks the token stream so object keys keep document order.
// Keys are skipped; string values are collected.
func extractJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var (
		values []string
		stack  []*jsonFrame
	)
	valueDone := func() {
		if n := len(stack); n > 0 && stack[n-1].object {
			stack[n-1].wantKey = true
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if len(stack) > 0 {
				return "", fmt.Errorf("%w: json: unexpected end of input", ErrParse)
			}
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: json: %v", ErrParse, err)
		}

		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{':
				stack = append(stack, &jsonFrame{object: true, wantKey: true})
			case '[':
				stack = append(stack, &jsonFrame{})
			default:
				stack = stack[:len(stack)-1]
				valueDone()
			}
			continue
		}

		if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].wantKey {
			stack[n-1].wantKey = false
			continue
		}
		if s, ok := tok.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				values = append(values, s)
			}
		}
		valueDone()
	}
	return strings.Join(values, "\n"), nil
}
