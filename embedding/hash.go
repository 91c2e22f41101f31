package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic, dependency-free embedder. Word tokens and their
// character trigrams are hashed into Dimension() buckets and the result is
// L2-normalized, so texts that share vocabulary land close together.
type Hash struct {
	dimension int
}

// NewHash returns a hashing embedder producing vectors of the given length.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Hash{dimension: dimension}
}

// Dimension returns the vector length.
func (h *Hash) Dimension() int { return h.dimension }

// Embed hashes text into a unit vector.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyInput
	}

	vec := make([]float32, h.dimension)
	for _, tok := range tokens {
		h.add(vec, "w:"+tok, 1)
		padded := "^" + tok + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(vec, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (h *Hash) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dimension))
	// The high bit picks the sign so unrelated features tend to cancel.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
