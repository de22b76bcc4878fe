package knowledge

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineSimilarityProperties(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		a := randomVector(r, 64)
		b := randomVector(r, 64)

		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-5, "self similarity")
		assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a), "symmetry")

		s := CosineSimilarity(a, b)
		assert.GreaterOrEqual(t, s, float32(-1.0001))
		assert.LessOrEqual(t, s, float32(1.0001))
	}
}

func TestSearchEmptyStore(t *testing.T) {
	hits := Search([]float32{1, 0}, nil, 3, 0.1)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearchNonPositiveTopK(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}}
	assert.Empty(t, Search([]float32{1, 0}, vectors, 0, -1))
	assert.Empty(t, Search([]float32{1, 0}, vectors, -2, -1))
}

func TestSearchOrderingAndTieBreak(t *testing.T) {
	vectors := [][]float32{
		{0, 1},     // 0: orthogonal, filtered
		{1, 1},     // 1: ~0.707
		{1, 0},     // 2: 1.0
		{2, 2},     // 3: ~0.707, ties with 1
		{1, 0.001}, // 4: just below 1.0
		{2, 0},     // 5: 1.0, ties with 2
	}

	hits := Search([]float32{1, 0}, vectors, 10, 0.1)
	require.Len(t, hits, 5)

	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.Index
	}
	assert.Equal(t, []int{2, 5, 4, 1, 3}, indices)
}

func TestSearchThresholdIsStrict(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}}

	hits := Search([]float32{1, 0}, vectors, 5, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Index)

	assert.Empty(t, Search([]float32{1, 0}, vectors, 5, 1))
}

func TestSearchProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	vectors := make([][]float32, 200)
	for i := range vectors {
		vectors[i] = randomVector(r, 16)
	}

	for _, topK := range []int{1, 3, 5, 50, 500} {
		for _, minScore := range []float32{-1, 0, 0.1, 0.5} {
			query := randomVector(r, 16)
			hits := Search(query, vectors, topK, minScore)

			assert.LessOrEqual(t, len(hits), topK)
			for i, h := range hits {
				assert.Greater(t, h.Score, minScore)
				assert.Equal(t, CosineSimilarity(query, vectors[h.Index]), h.Score)
				if i > 0 {
					prev := hits[i-1]
					assert.GreaterOrEqual(t, prev.Score, h.Score)
					if prev.Score == h.Score {
						assert.Less(t, prev.Index, h.Index)
					}
				}
			}
		}
	}
}

func TestKnowledgeBaseSearch(t *testing.T) {
	kb, err := New(&Snapshot{
		Chunks:     []string{"food pantry hours", "volunteer with us", "donate today"},
		Embeddings: [][]float32{{1, 0, 0}, {0, 1, 0}, {0.8, 0.6, 0}},
		Metadata: []ChunkMetadata{
			{SourceURL: "https://annisa.org/food-pantry", Title: "Food Pantry", ChunkIndex: 0, OriginTag: "annisa.org"},
			{SourceURL: "https://annisa.org/volunteer", Title: "Volunteer", ChunkIndex: 0, OriginTag: "annisa.org"},
			{SourceURL: "https://annisa.org/donate", Title: "Donate", ChunkIndex: 0, OriginTag: "annisa.org"},
		},
		ModelInfo: "hash-3",
		Dimension: 3,
	})
	require.NoError(t, err)

	results, err := kb.Search([]float32{1, 0, 0}, 5, DefaultMinScore)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "food pantry hours", results[0].Content)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "https://annisa.org/food-pantry", results[0].Metadata.SourceURL)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, "donate today", results[1].Content)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, 2, results[1].Index)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
}

func TestKnowledgeBaseSearchDuplicateChunks(t *testing.T) {
	meta := ChunkMetadata{SourceURL: "https://annisa.org/contact-us", Title: "Contact", OriginTag: "annisa.org"}
	kb, err := New(&Snapshot{
		Chunks:     []string{"call us", "call us", "visit us"},
		Embeddings: [][]float32{{1, 0}, {1, 0}, {0, 1}},
		Metadata:   []ChunkMetadata{meta, meta, meta},
		Dimension:  2,
	})
	require.NoError(t, err)

	results, err := kb.Search([]float32{1, 0}, 5, DefaultMinScore)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Content, results[1].Content)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestKnowledgeBaseSearchDimensionMismatch(t *testing.T) {
	kb, err := New(&Snapshot{
		Chunks:     []string{"a"},
		Embeddings: [][]float32{{1, 0}},
		Metadata:   []ChunkMetadata{{}},
		Dimension:  2,
	})
	require.NoError(t, err)

	_, err = kb.Search([]float32{1, 0, 0}, 3, 0.1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestKnowledgeBaseEmpty(t *testing.T) {
	kb, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, kb.Len())

	results, err := kb.Search([]float32{1, 2, 3}, 3, 0.1)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.NoError(t, kb.CheckModel("anything"))
}

func TestKnowledgeBaseCheckModel(t *testing.T) {
	kb, err := New(&Snapshot{
		Chunks:     []string{"a"},
		Embeddings: [][]float32{{1}},
		Metadata:   []ChunkMetadata{{}},
		ModelInfo:  "openai-text-embedding-3-small",
		Dimension:  1,
	})
	require.NoError(t, err)

	assert.NoError(t, kb.CheckModel("openai-text-embedding-3-small"))
	assert.ErrorIs(t, kb.CheckModel("hash-384"), ErrModelMismatch)
}
