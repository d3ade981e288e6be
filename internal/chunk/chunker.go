// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package chunk splits knowledge item content into bounded, overlapping text
// chunks, the unit of embedding. Splitting is pure and deterministic:
// identical input and config always produce the identical chunk sequence,
// which is what makes retraining an item reproduce its original records.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxSize is the default chunk size in runes, before the
	// overlap prefix is counted.
	DefaultMaxSize = 1000

	// DefaultOverlap is the default number of runes carried from the end
	// of one chunk into the start of the next.
	DefaultOverlap = 200

	// MinLength is the minimum chunk length in runes. Shorter chunks are
	// noise, not knowledge, and are dropped rather than padded.
	MinLength = 50
)

// Config controls how content is divided. Sizes are measured in runes so
// multi-byte text is not penalised.
type Config struct {
	MaxSize int
	Overlap int
}

// DefaultConfig returns the chunking defaults.
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize, Overlap: DefaultOverlap}
}

// Valid reports whether the config is usable: a positive size and an overlap
// strictly smaller than it.
func (c Config) Valid() bool {
	return c.MaxSize > 0 && c.Overlap >= 0 && c.Overlap < c.MaxSize
}

// Split divides text into chunks on paragraph boundaries. Paragraphs are
// blocks separated by blank lines and are never split mid-paragraph, except
// for single paragraphs longer than the chunk size, which are hard-split so
// the size bound still holds. When a chunk closes, the next chunk is seeded
// with the last Overlap runes of the closed chunk for context continuity, so
// a chunk can reach MaxSize+Overlap runes but never more. Chunks shorter
// than MinLength are dropped. Empty input yields an empty sequence.
func Split(text string, cfg Config) []string {
	if !cfg.Valid() {
		cfg = DefaultConfig()
	}

	clean := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if clean == "" {
		return nil
	}

	var pieces []string
	for _, para := range splitParagraphs(clean) {
		pieces = append(pieces, hardSplit(para, cfg.MaxSize)...)
	}

	var (
		chunks  []string
		current string
	)
	for _, piece := range pieces {
		switch {
		case current == "":
			current = piece
		case utf8.RuneCountInString(current)+2+utf8.RuneCountInString(piece) <= cfg.MaxSize:
			current += "\n\n" + piece
		default:
			chunks = append(chunks, current)
			current = lastRunes(current, cfg.Overlap) + piece
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(c) >= MinLength {
			kept = append(kept, c)
		}
	}
	return kept
}

// splitParagraphs breaks text into paragraphs at blank lines. Lines holding
// only whitespace count as blank.
func splitParagraphs(text string) []string {
	var (
		paras []string
		cur   []string
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		para := strings.TrimSpace(strings.Join(cur, "\n"))
		if para != "" {
			paras = append(paras, para)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return paras
}

// hardSplit cuts a paragraph longer than max into max-sized rune segments.
// Paragraphs that fit come back unchanged.
func hardSplit(para string, max int) []string {
	runes := []rune(para)
	if len(runes) <= max {
		return []string{para}
	}

	parts := make([]string, 0, (len(runes)+max-1)/max)
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
