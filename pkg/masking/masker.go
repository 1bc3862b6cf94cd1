// Package masking redacts secrets from text before it leaves the process,
// primarily the prompts agents send to the external model service. Spec
// content is user-authored and routinely carries example configs with live
// credentials pasted in.
package masking

import (
	"log/slog"
	"regexp"
)

// Pattern is one uncompiled masking rule.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
	Description string
}

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Masker applies a fixed set of redaction patterns.
// Nil-safe: a nil Masker passes text through unchanged.
type Masker struct {
	patterns []*CompiledPattern
	logger   *slog.Logger
}

// NewMasker compiles the built-in patterns plus any custom ones. Invalid
// patterns are logged and skipped, never fatal.
func NewMasker(custom []Pattern, logger *slog.Logger) *Masker {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Masker{logger: logger}
	for _, p := range append(builtinPatterns(), custom...) {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			logger.Error("Failed to compile masking pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		m.patterns = append(m.patterns, &CompiledPattern{
			Name:        p.Name,
			Regex:       compiled,
			Replacement: p.Replacement,
		})
	}
	return m
}

// Mask applies every pattern in order and returns the redacted text.
func (m *Masker) Mask(data string) string {
	if m == nil {
		return data
	}
	for _, p := range m.patterns {
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}

// PatternNames returns the names of the active patterns, for startup logging.
func (m *Masker) PatternNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.patterns))
	for _, p := range m.patterns {
		names = append(names, p.Name)
	}
	return names
}
