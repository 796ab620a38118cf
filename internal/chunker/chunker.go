// Package chunker splits input text into ordered, position-tagged segments
// honoring sentence boundaries and a character cap.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// FirstChunkMaxChars is the hard ceiling every max_chars value is clamped to.
const FirstChunkMaxChars = 200

// sentenceBoundary reports whether r terminates a sentence span.
func sentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', '\n', '。', '！', '？':
		return true
	default:
		return false
	}
}

// TextChunk is a trimmed, non-empty text segment with absolute offsets into
// the original source text (half-open: start_char < end_char).
type TextChunk struct {
	ChunkIndex int
	Text       string
	StartChar  int
	EndChar    int
}

type sentenceSpan struct {
	start, end int
}

// Split produces an ordered sequence of TextChunk from text, clamping
// maxChars to FirstChunkMaxChars. maxSentences must be >= 1; any larger
// value is clamped to 1, so every chunk holds at most one sentence.
func Split(text string, maxChars int, maxSentences int) ([]TextChunk, error) {
	if maxChars < 1 {
		return nil, fmt.Errorf("chunker: max_chars must be >= 1")
	}
	if maxSentences < 1 {
		return nil, fmt.Errorf("chunker: max_sentences must be >= 1")
	}
	if maxChars > FirstChunkMaxChars {
		maxChars = FirstChunkMaxChars
	}
	if maxSentences > 1 {
		maxSentences = 1
	}

	runes := []rune(text)
	spans := extractSentenceSpans(runes)

	var chunks []TextChunk
	var group []string
	groupStart := -1
	groupEnd := 0
	groupChars := 0
	groupSentences := 0

	flush := func() {
		if groupStart < 0 || len(group) == 0 {
			group = group[:0]
			groupStart = -1
			groupEnd = 0
			groupChars = 0
			groupSentences = 0
			return
		}
		chunks = append(chunks, TextChunk{
			ChunkIndex: len(chunks),
			Text:       strings.Join(group, " "),
			StartChar:  groupStart,
			EndChar:    groupEnd,
		})
		group = group[:0]
		groupStart = -1
		groupEnd = 0
		groupChars = 0
		groupSentences = 0
	}

	for _, span := range spans {
		sentenceText := strings.TrimSpace(string(runes[span.start:span.end]))
		if sentenceText == "" {
			continue
		}

		activeSentenceLimit := maxSentences
		activeCharLimit := maxChars

		sentenceLen := len([]rune(sentenceText))
		if sentenceLen > activeCharLimit {
			flush()
			for _, piece := range splitSpanByChars(runes, span.start, span.end, activeCharLimit) {
				chunks = append(chunks, TextChunk{
					ChunkIndex: len(chunks),
					Text:       piece.text,
					StartChar:  piece.start,
					EndChar:    piece.end,
				})
			}
			continue
		}

		projectedChars := sentenceLen
		if groupChars > 0 {
			projectedChars = groupChars + 1 + sentenceLen
		}
		if groupSentences >= activeSentenceLimit || (groupSentences > 0 && projectedChars > activeCharLimit) {
			flush()
		}

		if groupStart < 0 {
			groupStart = span.start
		}
		groupEnd = span.end
		group = append(group, sentenceText)
		groupSentences++
		if groupChars > 0 {
			groupChars = projectedChars
		} else {
			groupChars = sentenceLen
		}
	}

	flush()
	return chunks, nil
}

// extractSentenceSpans scans text for sentence spans: leading whitespace is
// skipped, a span ends at a boundary rune (absorbing any run of further
// boundary runes), and the final span may be unterminated.
func extractSentenceSpans(runes []rune) []sentenceSpan {
	var spans []sentenceSpan
	length := len(runes)
	cursor := 0

	for cursor < length {
		for cursor < length && unicode.IsSpace(runes[cursor]) {
			cursor++
		}
		if cursor >= length {
			break
		}

		end := cursor
		for end < length {
			r := runes[end]
			end++
			if sentenceBoundary(r) {
				for end < length && sentenceBoundary(runes[end]) {
					end++
				}
				break
			}
		}

		rawSegment := string(runes[cursor:end])
		trimmed := strings.TrimSpace(rawSegment)
		if trimmed == "" {
			cursor = end
			continue
		}

		relativeStart := strings.Index(rawSegment, trimmed)
		absoluteStart := cursor + len([]rune(rawSegment[:relativeStart]))
		absoluteEnd := absoluteStart + len([]rune(trimmed))
		spans = append(spans, sentenceSpan{start: absoluteStart, end: absoluteEnd})
		cursor = end
	}

	return spans
}

type splitPiece struct {
	text       string
	start, end int
}

// splitSpanByChars hard-splits an oversized sentence span at the last
// whitespace before each maxChars boundary; pieces that still exceed the
// limit are split at the exact boundary.
func splitSpanByChars(runes []rune, start, end, maxChars int) []splitPiece {
	var pieces []splitPiece
	cursor := start

	for cursor < end {
		for cursor < end && unicode.IsSpace(runes[cursor]) {
			cursor++
		}
		if cursor >= end {
			break
		}

		hardEnd := cursor + maxChars
		if hardEnd > end {
			hardEnd = end
		}
		pieceEnd := hardEnd
		if hardEnd < end {
			if splitAt := lastSpaceIndex(runes, cursor, hardEnd); splitAt > cursor {
				pieceEnd = splitAt
			}
		}

		rawPiece := string(runes[cursor:pieceEnd])
		trimmed := strings.TrimSpace(rawPiece)
		if trimmed == "" {
			cursor = pieceEnd
			continue
		}

		relativeStart := strings.Index(rawPiece, trimmed)
		absoluteStart := cursor + len([]rune(rawPiece[:relativeStart]))
		absoluteEnd := absoluteStart + len([]rune(trimmed))
		pieces = append(pieces, splitPiece{text: trimmed, start: absoluteStart, end: absoluteEnd})
		cursor = pieceEnd
	}

	return pieces
}

// lastSpaceIndex returns the rune index of the last whitespace rune in
// runes[from:to), or -1 if none is found.
func lastSpaceIndex(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
