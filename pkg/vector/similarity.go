package vector

import "math"

// CosineSimilarity returns the cosine similarity of a and b. It reports false
// when the vectors differ in length, are empty, or either has zero norm.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// CosineDistance returns 1 - CosineSimilarity, clamped to [0, 2].
func CosineDistance(a, b []float32) (float64, bool) {
	sim, ok := CosineSimilarity(a, b)
	if !ok {
		return 0, false
	}
	return math.Min(2, math.Max(0, 1-sim)), true
}
