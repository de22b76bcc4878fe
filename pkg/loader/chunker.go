// Package loader turns raw text into chunks and supplies the static documents
// that are added to every knowledge base.
package loader

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

// ChunkerConfig controls window size and overlap, both counted in words.
type ChunkerConfig struct {
	ChunkSize     int // words per window
	Overlap       int // words shared by consecutive windows
	MinChunkChars int // windows shorter than this many characters are dropped
}

// DefaultChunkerConfig matches the settings the knowledge base is built with.
var DefaultChunkerConfig = ChunkerConfig{ChunkSize: 500, Overlap: 50, MinChunkChars: 50}

// Chunker splits text into overlapping windows of whitespace separated words.
type Chunker struct {
	cfg ChunkerConfig
}

// NewChunker validates cfg and returns a Chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	switch {
	case cfg.ChunkSize <= 0:
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	case cfg.Overlap < 0:
		return nil, fmt.Errorf("overlap must not be negative, got %d", cfg.Overlap)
	case cfg.Overlap >= cfg.ChunkSize:
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", cfg.Overlap, cfg.ChunkSize)
	case cfg.MinChunkChars < 0:
		return nil, fmt.Errorf("min chunk chars must not be negative, got %d", cfg.MinChunkChars)
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker settings.
func (c *Chunker) Config() ChunkerConfig {
	return c.cfg
}

// Split yields windows of up to ChunkSize words. Windows start every
// ChunkSize-Overlap words for as long as the start is inside the text, so the
// last few windows may be suffixes of their predecessor. Windows whose joined
// text is shorter than MinChunkChars are skipped.
func (c *Chunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		step := c.cfg.ChunkSize - c.cfg.Overlap

		for start := 0; start < len(words); start += step {
			end := min(start+c.cfg.ChunkSize, len(words))
			chunk := strings.Join(words[start:end], " ")
			if utf8.RuneCountInString(chunk) < c.cfg.MinChunkChars {
				continue
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[string]) []string {
	var out []string
	for s := range seq {
		out = append(out, s)
	}
	return out
}
