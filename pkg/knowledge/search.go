package knowledge

import (
	"cmp"
	"math"
	"slices"
)

// DefaultMinScore is the similarity a chunk must exceed to be retrieved.
const DefaultMinScore float32 = 0.1

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Search scores every vector against query and returns at most topK hits
// whose score is strictly above minScore, highest first. Equal scores keep
// ascending index order.
func Search(query []float32, vectors [][]float32, topK int, minScore float32) []Hit {
	hits := []Hit{}
	if topK <= 0 {
		return hits
	}

	for i, vec := range vectors {
		score := CosineSimilarity(query, vec)
		if score > minScore {
			hits = append(hits, Hit{Index: i, Score: score})
		}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
