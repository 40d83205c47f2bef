package ingest

import (
	"regexp"
	"strings"
)

// Chunking defaults, in approximate tokens.
const (
	DefaultChunkTokens   = 1000
	DefaultOverlapTokens = 50

	// charsPerToken is the cheap token estimator ratio (~4 chars ≈ 1 token).
	charsPerToken = 4
)

// TextChunk is one unit of chunker output. Index values are dense 0..N-1 in
// source order.
type TextChunk struct {
	Index      int
	Text       string
	TokenCount int
}

var paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitText cuts text into token-budgeted chunks along paragraph
// boundaries. A chunk closes when the next paragraph would push it past
// targetTokens; the next chunk is seeded with the closed chunk's trailing
// overlapTokens worth of characters. The overlap slice is character-level
// and deliberately not word-aligned. A single paragraph larger than the
// budget stays whole: the target is a soft ceiling, never a mid-paragraph
// split. Deterministic for identical inputs and parameters.
func SplitText(text string, targetTokens, overlapTokens int) []TextChunk {
	if targetTokens <= 0 {
		targetTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var (
		chunks []TextChunk
		parts  []string
		tokSum int
	)

	for _, para := range paragraphs {
		t := approxTokens(para)

		if tokSum > 0 && tokSum+t > targetTokens {
			closed := strings.Join(parts, "\n\n")
			chunks = append(chunks, TextChunk{
				Index:      len(chunks),
				Text:       closed,
				TokenCount: approxTokens(closed),
			})

			parts = parts[:0]
			tokSum = 0
			if overlapTokens > 0 {
				if tail := tailRunes(closed, overlapTokens*charsPerToken); tail != "" {
					parts = append(parts, tail)
					tokSum = approxTokens(tail)
				}
			}
		}

		parts = append(parts, para)
		tokSum += t
	}

	if len(parts) > 0 {
		final := strings.Join(parts, "\n\n")
		chunks = append(chunks, TextChunk{
			Index:      len(chunks),
			Text:       final,
			TokenCount: approxTokens(final),
		})
	}
	return chunks
}

// splitParagraphs cuts on blank lines and drops whitespace-only paragraphs.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range paragraphSep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// tailRunes returns the last n runes of s without splitting a multi-byte
// character.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
