package vectorstore

import (
	"math"
	"sort"
)

// CosineSimilarity returns dot(a,b) / (|a|·|b|). It is 0 when the vectors
// differ in length or either has zero magnitude, and is clamped to [-1, 1]
// to absorb rounding.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	switch {
	case sim > 1:
		sim = 1
	case sim < -1:
		sim = -1
	}
	return float32(sim)
}

type scored struct {
	idx   int
	score float32
}

// rankByCosine scores every vector against query and returns the indexes
// of the topK best, highest first. Equal scores keep their original order.
func rankByCosine(query []float32, vectors [][]float32, topK int) []scored {
	if topK <= 0 || len(vectors) == 0 {
		return nil
	}

	ranked := make([]scored, len(vectors))
	for i, v := range vectors {
		ranked[i] = scored{idx: i, score: CosineSimilarity(query, v)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}
