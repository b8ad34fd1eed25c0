package chunks

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultChunkSize is the default number of tokens per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of overlapping tokens.
const DefaultChunkOverlap = 100

// sentenceLookback is how far back from the window edge we search for a
// sentence boundary before giving up and cutting mid-sentence.
const sentenceLookback = 50

// Splitter cuts page text into fixed-size token windows with overlap,
// preferring sentence boundaries near the window edge.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the window size in tokens.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between windows in tokens.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter creates a splitter with the given options.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// SplitPage chunks one page of text. startIndex is the next chunk index for
// the document; the returned index continues the sequence so indexes stay
// monotonic across pages.
func (s *Splitter) SplitPage(text string, analysisID, documentName string, pageNumber, startIndex int) ([]Chunk, int) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, startIndex
	}

	var out []Chunk
	index := startIndex
	start := 0
	for start < len(words) {
		end := start + s.chunkSize
		if end >= len(words) {
			end = len(words)
		} else if boundary := lastSentenceEnd(words, start, end); boundary > 0 {
			end = boundary
		}

		out = append(out, Chunk{
			ID:           uuid.New().String(),
			AnalysisID:   analysisID,
			DocumentName: documentName,
			PageNumber:   pageNumber,
			ChunkIndex:   index,
			Content:      strings.Join(words[start:end], " "),
		})
		index++

		if end == len(words) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out, index
}

// lastSentenceEnd finds the nearest sentence boundary within the lookback
// window before end, or 0 when none exists past the midpoint.
func lastSentenceEnd(words []string, start, end int) int {
	low := end - sentenceLookback
	mid := start + (end-start)/2
	if low < mid {
		low = mid
	}
	for i := end - 1; i >= low; i-- {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	return 0
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]`)
	return strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?")
}
