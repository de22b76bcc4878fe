package knowledge

import "fmt"

// KnowledgeBase is the read-only in-memory form of a snapshot. It is safe for
// concurrent use because nothing mutates it after construction.
type KnowledgeBase struct {
	snapshot *Snapshot
}

// New validates snap and wraps it.
func New(snap *Snapshot) (*KnowledgeBase, error) {
	if snap == nil {
		snap = &Snapshot{}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &KnowledgeBase{snapshot: snap}, nil
}

// Len returns the number of chunks.
func (kb *KnowledgeBase) Len() int {
	return len(kb.snapshot.Chunks)
}

// ModelInfo returns the identifier of the embedder that built the snapshot.
func (kb *KnowledgeBase) ModelInfo() string {
	return kb.snapshot.ModelInfo
}

// Dimension returns the vector dimension.
func (kb *KnowledgeBase) Dimension() int {
	return kb.snapshot.Dimension
}

// Snapshot returns the underlying snapshot. Callers must not modify it.
func (kb *KnowledgeBase) Snapshot() *Snapshot {
	return kb.snapshot
}

// CheckModel fails with ErrModelMismatch when the snapshot was embedded with
// a model other than modelInfo. An empty knowledge base matches any model.
func (kb *KnowledgeBase) CheckModel(modelInfo string) error {
	if kb.Len() == 0 {
		return nil
	}
	if kb.snapshot.ModelInfo != modelInfo {
		return fmt.Errorf("%w: snapshot built with %q, embedder is %q",
			ErrModelMismatch, kb.snapshot.ModelInfo, modelInfo)
	}
	return nil
}

// Search returns the chunks most similar to query, ranked from 1.
func (kb *KnowledgeBase) Search(query []float32, topK int, minScore float32) ([]Result, error) {
	if kb.Len() == 0 {
		return []Result{}, nil
	}
	if len(query) != kb.snapshot.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, knowledge base has %d",
			ErrDimensionMismatch, len(query), kb.snapshot.Dimension)
	}

	hits := Search(query, kb.snapshot.Embeddings, topK, minScore)
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Content:  kb.snapshot.Chunks[h.Index],
			Metadata: kb.snapshot.Metadata[h.Index],
			Score:    h.Score,
			Rank:     i + 1,
			Index:    h.Index,
		}
	}
	return results, nil
}
