package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/section"
)

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize       int    // Soft cap on chunk length.
	Overlap         int    // Characters carried from the end of one chunk into the next.
	PreserveContext bool   // Seed each new chunk with the previous chunk's tail.
	DefaultSection  string // Section label before the first detected header.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       1200,
		Overlap:         200,
		PreserveContext: true,
		DefaultSection:  "Introduction",
	}
}

// paragraphBreak matches a blank line, possibly containing whitespace.
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// pageBreak separates pages in extracted text.
const pageBreak = '\f'

// Chunk splits text into ordered, context-preserving chunks tagged with the
// section active when each chunk is emitted. It is a left fold over the
// paragraphs of text; all state lives in the accumulator value.
func Chunk(text string, cfg Config) []document.Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize - 1
	}

	acc := accumulator{section: cfg.DefaultSection, page: 1, bufPage: 1}
	var chunks []document.Chunk

	for _, raw := range paragraphBreak.Split(text, -1) {
		var emitted *document.Chunk
		acc, emitted = step(acc, raw, cfg)
		if emitted != nil {
			chunks = append(chunks, *emitted)
		}
	}

	if strings.TrimSpace(acc.buf) != "" {
		chunks = append(chunks, acc.emit())
	}
	return chunks
}

// accumulator is the fold state threaded between paragraphs.
type accumulator struct {
	buf     string
	section string
	page    int // Page of the paragraph being folded.
	bufPage int // Page where the buffer's first new paragraph started.
	next    int // Next chunk id.
}

// step folds one raw paragraph into acc, returning the new state and the chunk
// emitted along the way, if any.
func step(acc accumulator, raw string, cfg Config) (accumulator, *document.Chunk) {
	acc.page += strings.Count(raw, string(pageBreak))

	para := strings.TrimSpace(raw)
	if para == "" {
		return acc, nil
	}

	if label, ok := section.Detect(para); ok {
		acc.section = label
	}

	var emitted *document.Chunk
	if acc.buf != "" && runeLen(acc.buf)+runeLen(para) > cfg.ChunkSize {
		c := acc.emit()
		emitted = &c
		acc.next++

		seed := ""
		if cfg.PreserveContext && cfg.Overlap > 0 {
			seed = tail(acc.buf, cfg.Overlap)
		}
		acc.buf = seed
		acc.bufPage = acc.page
	}

	if acc.buf == "" {
		acc.bufPage = acc.page
		acc.buf = para
	} else {
		acc.buf += "\n\n" + para
	}
	return acc, emitted
}

// emit builds a chunk from the current buffer. Leading whitespace is kept so
// an overlap seed survives verbatim.
func (acc accumulator) emit() document.Chunk {
	content := strings.TrimRightFunc(acc.buf, unicode.IsSpace)
	return document.Chunk{
		ID:         strconv.Itoa(acc.next),
		Content:    content,
		PageNumber: acc.bufPage,
		Section:    acc.section,
		Metadata: document.ChunkMetadata{
			WordCount:     len(strings.Fields(content)),
			CharCount:     runeLen(content),
			TokenEstimate: EstimateTokens(content),
		},
	}
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
