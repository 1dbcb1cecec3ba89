package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"cannot", "log", "using", "sso", "sso"}, Terms("I cannot log in using SSO, sso!"))
	assert.Equal(t, []string{"cannot", "log"}, UniqueTerms("cannot log log using", 2))
}

func TestEmbedIsNormalised(t *testing.T) {
	h := NewHashing(0)
	assert.Equal(t, 256, h.Dim())

	v := h.Embed("password reset not working")
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	assert.Equal(t, make([]float32, 256), h.Embed("a the of"))
}

func TestEmbedSimilarity(t *testing.T) {
	h := NewHashing(256)
	q := h.Embed("sso login password reset")
	near := h.Embed("How to reset your SSO password when login fails")
	far := h.Embed("quarterly invoice export to spreadsheet")

	assert.Greater(t, cosine(q, near), cosine(q, far))
	assert.InDelta(t, 1.0, cosine(q, q), 1e-5)
}
