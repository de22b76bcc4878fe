package knowledge

import "unicode/utf8"

// Summary describes the contents of a snapshot.
type Summary struct {
	Chunks        int
	Dimension     int
	ModelInfo     string
	Sources       int            // distinct source URLs
	ByOrigin      map[string]int // chunk count per origin tag
	AvgChunkChars float64
}

// Summarize computes a Summary of s.
func (s *Snapshot) Summarize() Summary {
	sum := Summary{
		Chunks:    len(s.Chunks),
		Dimension: s.Dimension,
		ModelInfo: s.ModelInfo,
		ByOrigin:  make(map[string]int),
	}

	sources := make(map[string]struct{})
	for _, m := range s.Metadata {
		sources[m.SourceURL] = struct{}{}
		sum.ByOrigin[m.OriginTag]++
	}
	sum.Sources = len(sources)

	if len(s.Chunks) > 0 {
		total := 0
		for _, c := range s.Chunks {
			total += utf8.RuneCountInString(c)
		}
		sum.AvgChunkChars = float64(total) / float64(len(s.Chunks))
	}
	return sum
}

// Neighbours returns the indices of up to n chunks on either side of idx
// that come from the same source, idx included, in order.
func (s *Snapshot) Neighbours(idx, n int) []int {
	if idx < 0 || idx >= len(s.Chunks) {
		return nil
	}
	source := s.Metadata[idx].SourceURL

	start := max(idx-n, 0)
	end := min(idx+n+1, len(s.Chunks))

	var out []int
	for i := start; i < end; i++ {
		if s.Metadata[i].SourceURL == source {
			out = append(out, i)
		}
	}
	return out
}
