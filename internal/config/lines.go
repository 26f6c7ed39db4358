package config

import (
	"maps"
	"slices"
)

// DefaultTag is the aggregate line every unclassified endpoint lands in.
const DefaultTag = "default"

// DefaultProviderLine is the provider's "any resolver" view.
const DefaultProviderLine = "default_view"

// DefaultLines returns the Huawei Cloud line vocabulary for the built-in tags.
func DefaultLines() map[string]string {
	return map[string]string{
		DefaultTag: DefaultProviderLine,
		"telecom":  "Dianxin",
		"unicom":   "Liantong",
		"mobile":   "Yidong",
	}
}

// LineMap maps semantic line tags to the provider's line vocabulary.
type LineMap struct {
	entries map[string]string
}

// NewLineMap builds a LineMap from tag -> provider line entries.
func NewLineMap(entries map[string]string) *LineMap {
	return &LineMap{entries: maps.Clone(entries)}
}

// Lookup returns the provider line for tag. Unknown tags fall back to the
// default entry, and to DefaultProviderLine when no default is configured.
func (lm *LineMap) Lookup(tag string) string {
	if lm == nil {
		return DefaultProviderLine
	}
	if line, ok := lm.entries[tag]; ok && line != "" {
		return line
	}
	if line, ok := lm.entries[DefaultTag]; ok && line != "" {
		return line
	}
	return DefaultProviderLine
}

// Known reports whether tag has its own entry.
func (lm *LineMap) Known(tag string) bool {
	if lm == nil {
		return false
	}
	_, ok := lm.entries[tag]
	return ok
}

// Tags returns all configured tags, sorted.
func (lm *LineMap) Tags() []string {
	if lm == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(lm.entries))
}
