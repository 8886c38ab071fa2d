package chunker

import (
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"docchat/internal/domain"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into chunks of at most chunkSize characters,
// preferring the coarsest separator that keeps pieces under the limit.
// Consecutive chunks share up to overlap characters.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// span is a half-open rune range of the source text.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

func NewRecursiveChunker(chunkSize, overlap int, separators ...string) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	seps := make([][]rune, len(separators))
	for i, s := range separators {
		seps[i] = []rune(s)
	}

	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: seps,
	}, nil
}

// Split yields the chunk texts of text with surrounding whitespace trimmed.
// Whitespace-only chunks are dropped.
func (c *RecursiveChunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		for s := range c.spans(runes) {
			chunk := strings.TrimSpace(string(runes[s.start:s.end]))
			if chunk == "" {
				continue
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

func (c *RecursiveChunker) Chunk(doc domain.SourceDocument) ([]domain.DocumentChunk, error) {
	var chunks []domain.DocumentChunk
	for text := range c.Split(doc.Text) {
		chunks = append(chunks, domain.DocumentChunk{
			ID:       uuid.NewString(),
			SourceID: doc.SourceID,
			Seq:      len(chunks),
			Text:     text,
		})
	}
	return chunks, nil
}

// spans merges the atomic pieces of text into chunk ranges. After a chunk is
// emitted, its trailing pieces totalling at most c.overlap characters open
// the next one.
func (c *RecursiveChunker) spans(text []rune) iter.Seq[span] {
	return func(yield func(span) bool) {
		var window []span
		size := func() int {
			if len(window) == 0 {
				return 0
			}
			return window[len(window)-1].end - window[0].start
		}

		for p := range c.pieces(text) {
			if len(window) > 0 && size()+p.len() > c.chunkSize {
				if !yield(span{window[0].start, window[len(window)-1].end}) {
					return
				}
				for len(window) > 0 && (size() > c.overlap || size()+p.len() > c.chunkSize) {
					window = window[1:]
				}
			}
			window = append(window, p)
		}

		if len(window) > 0 {
			yield(span{window[0].start, window[len(window)-1].end})
		}
	}
}

// pieces yields contiguous ranges covering text, each no longer than
// c.chunkSize unless no separator can cut it further.
func (c *RecursiveChunker) pieces(text []rune) iter.Seq[span] {
	return func(yield func(span) bool) {
		c.walk(text, span{0, len(text)}, c.separators, yield)
	}
}

// walk reports whether the consumer wants more pieces.
func (c *RecursiveChunker) walk(text []rune, s span, seps [][]rune, yield func(span) bool) bool {
	if s.len() == 0 {
		return true
	}
	if s.len() <= c.chunkSize {
		return yield(s)
	}

	sep, finer, ok := pickSeparator(text[s.start:s.end], seps)
	if !ok {
		return yield(s)
	}

	if len(sep) == 0 {
		for i := s.start; i < s.end; i++ {
			if !yield(span{i, i + 1}) {
				return false
			}
		}
		return true
	}

	for _, sub := range splitKeepingSeparator(text, s, sep) {
		if sub.len() <= c.chunkSize {
			if !yield(sub) {
				return false
			}
			continue
		}
		if !c.walk(text, sub, finer, yield) {
			return false
		}
	}
	return true
}

// pickSeparator returns the first separator occurring in text and the finer
// separators after it. The empty separator always matches.
func pickSeparator(text []rune, seps [][]rune) ([]rune, [][]rune, bool) {
	for i, sep := range seps {
		if len(sep) == 0 || indexRunes(text, sep, 0) >= 0 {
			return sep, seps[i+1:], true
		}
	}
	return nil, nil, false
}

// splitKeepingSeparator cuts s before every occurrence of sep, so each
// separator stays attached to the start of the piece that follows it.
func splitKeepingSeparator(text []rune, s span, sep []rune) []span {
	var out []span
	start := s.start
	from := s.start
	for {
		at := indexRunes(text[:s.end], sep, from)
		if at < 0 {
			break
		}
		if at > start {
			out = append(out, span{start, at})
			start = at
		}
		from = at + len(sep)
	}
	return append(out, span{start, s.end})
}

func indexRunes(text, sep []rune, from int) int {
	for i := from; i+len(sep) <= len(text); i++ {
		match := true
		for j := range sep {
			if text[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
