// Package normalize extracts a renderable HTML document from raw model output.
package normalize

import (
	"strings"
)

const (
	fence          = "```"
	minFencedLines = 3
)

// Strategy tries to extract HTML from raw output. It reports false when it
// does not apply so the next strategy can run.
type Strategy func(raw string) (string, bool)

// Normalizer runs strategies in order; the first match wins.
type Normalizer struct {
	strategies []Strategy
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(n *Normalizer) {
		n.strategies = strategies
	}
}

// New returns a Normalizer with the default strategies.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		strategies: []Strategy{StripOuterFences, FencedHTMLBlock, DocumentSpan},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the first strategy match or raw unchanged.
func (n *Normalizer) Normalize(raw string) string {
	for _, s := range n.strategies {
		if out, ok := s(raw); ok {
			return out
		}
	}
	return raw
}

var defaultNormalizer = New()

// Normalize runs the default strategies.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// StripOuterFences drops a leading ``` line and, when present, the trailing
// one. It only applies when the output opens with a fence; output with fewer
// than three lines is left alone.
func StripOuterFences(raw string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	// A trailing newline would otherwise hide the closing fence.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < minFencedLines {
		return "", false
	}

	if !strings.HasPrefix(strings.TrimSpace(lines[0]), fence) {
		return "", false
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), fence) {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n"), true
}

// FencedHTMLBlock extracts the body of the first ```html block found inside
// surrounding prose.
func FencedHTMLBlock(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	start := strings.Index(lower, fence+"html")
	if start < 0 {
		return "", false
	}
	bodyStart := strings.IndexByte(raw[start:], '\n')
	if bodyStart < 0 {
		return "", false
	}
	bodyStart += start + 1

	end := strings.Index(raw[bodyStart:], fence)
	if end < 0 {
		return "", false
	}
	body := strings.TrimRight(raw[bodyStart:bodyStart+end], "\n")
	if strings.TrimSpace(body) == "" {
		return "", false
	}
	return body, true
}

// DocumentSpan extracts the text from <!DOCTYPE or <html up to the last
// closing </html> tag.
func DocumentSpan(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start < 0 {
		return "", false
	}
	const closing = "</html>"
	end := strings.LastIndex(lower, closing)
	if end < start {
		return "", false
	}
	end += len(closing)
	if start == 0 && end == len(raw) {
		return "", false
	}
	return raw[start:end], true
}
