// Package embed turns text into fixed-width vectors for pgvector retrieval.
package embed

import (
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

type Embedder interface {
	Embed(text string) []float32
	Dim() int
}

// Hashing is a feature-hashing embedder: each term lands in one bucket with
// a signed weight, and the vector is L2 normalised so cosine distance works.
type Hashing struct {
	Dimensions int
}

func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 256
	}
	return &Hashing{Dimensions: dim}
}

func (h *Hashing) Dim() int { return h.Dimensions }

func (h *Hashing) Embed(text string) []float32 {
	vec := make([]float32, h.Dimensions)
	for _, term := range Terms(text) {
		sum := xxhash.Sum64String(term)
		idx := int(sum % uint64(h.Dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "but": {}, "can": {}, "for": {}, "how": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "my": {}, "not": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "what": {}, "with": {}, "you": {},
}

// Terms lowercases, splits on non-alphanumerics and drops stopwords and
// one-letter tokens. Order is preserved; duplicates are kept.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// UniqueTerms is Terms without duplicates, capped at limit when limit > 0.
func UniqueTerms(text string, limit int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range Terms(text) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
