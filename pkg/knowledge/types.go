// Package knowledge holds the knowledge base snapshot, its on-disk format and
// the linear similarity search over it.
package knowledge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMisaligned means chunks, embeddings and metadata do not line up.
	ErrMisaligned = errors.New("snapshot is misaligned")
	// ErrDimensionMismatch means a vector does not have the snapshot dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrModelMismatch means the snapshot was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	SourceURL  string `json:"source_url"`
	Title      string `json:"title"`
	ChunkIndex int    `json:"chunk_index"`
	OriginTag  string `json:"origin_tag"`
}

// Snapshot is the persisted knowledge base. Chunks[i], Embeddings[i] and
// Metadata[i] describe the same chunk.
type Snapshot struct {
	Chunks     []string
	Embeddings [][]float32
	Metadata   []ChunkMetadata
	ModelInfo  string // embedder that produced the vectors
	Dimension  int
	CreatedAt  time.Time
}

// Validate checks index alignment and vector dimensions.
func (s *Snapshot) Validate() error {
	if len(s.Chunks) != len(s.Embeddings) || len(s.Chunks) != len(s.Metadata) {
		return fmt.Errorf("%w: %d chunks, %d embeddings, %d metadata entries",
			ErrMisaligned, len(s.Chunks), len(s.Embeddings), len(s.Metadata))
	}
	if len(s.Chunks) > 0 && s.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, s.Dimension)
	}
	for i, vec := range s.Embeddings {
		if len(vec) != s.Dimension {
			return fmt.Errorf("%w: embedding %d has %d values, want %d",
				ErrDimensionMismatch, i, len(vec), s.Dimension)
		}
	}
	return nil
}

// Hit is a scored position in the vector list.
type Hit struct {
	Index int
	Score float32
}

// Result is a search hit resolved to its chunk.
type Result struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float32       `json:"score"`
	Rank     int           `json:"rank"`
	Index    int           `json:"-"` // position in the snapshot
}
