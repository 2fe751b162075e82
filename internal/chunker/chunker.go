package chunker

import (
	"fmt"
	"strings"

	"github.com/radarkb/retrieval-mcp/pkg/types"
)

const (
	// DefaultMaxSize is the target maximum chunk size in runes.
	DefaultMaxSize = 512

	// DefaultOverlap is the number of runes carried over from the tail of
	// the previous chunk.
	DefaultOverlap = 128
)

// Piece is one chunk window produced from a document.
type Piece struct {
	Text     string
	Sequence int
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a Chunker. Out-of-range parameters fall back to defaults; the
// overlap is clamped below maxSize so windows always advance.
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Chunk splits text into sequenced pieces. Paragraph boundaries are
// preserved where possible; paragraphs larger than maxSize are split at
// rune-window boundaries with overlap. Returns ErrEmptyContent when the
// input contains no usable text.
func (c *Chunker) Chunk(text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chunk: %w", types.ErrEmptyContent)
	}

	paragraphs := splitParagraphs(text)
	merged := c.mergeParagraphs(paragraphs)

	pieces := make([]Piece, 0, len(merged))
	for i, m := range merged {
		pieces = append(pieces, Piece{Text: m, Sequence: i})
	}
	return pieces, nil
}

// splitParagraphs splits on blank lines and trims each paragraph.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeParagraphs packs paragraphs into windows of at most maxSize runes.
// A paragraph that does not fit the current window starts a new one;
// paragraphs larger than maxSize on their own are hard-split with overlap.
func (c *Chunker) mergeParagraphs(paragraphs []string) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, p := range paragraphs {
		plen := len([]rune(p))

		if plen > c.maxSize {
			flush()
			chunks = append(chunks, c.hardSplit(p)...)
			continue
		}

		// +1 accounts for the joining newline.
		if currentLen > 0 && currentLen+1+plen > c.maxSize {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(p)
		currentLen += plen
	}
	flush()

	return chunks
}

// hardSplit cuts an oversized paragraph into rune windows with overlap.
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	step := c.maxSize - c.overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.maxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
