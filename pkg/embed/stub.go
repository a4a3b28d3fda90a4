package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// StubEmbedder is a deterministic, dependency-free Embedder used by
// tests and as NewFromConfig's "stub" provider: it hashes the input text into a
// fixed-dimension unit vector, so the same text always produces the
// same vector and different texts produce (with high probability)
// different vectors — enough to exercise cosine search without a real
// model. Production callers should use NewOllama/NewOpenAI instead.
type StubEmbedder struct {
	dim int
}

// NewStub returns a StubEmbedder producing vectors of the given
// dimension.
func NewStub(dim int) *StubEmbedder {
	return &StubEmbedder{dim: dim}
}

func (s *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dim)
	h := fnv.New64a()
	seed := uint64(0)
	for i := 0; i < s.dim; i++ {
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		seed = h.Sum64()
		// Map the hash into [-1, 1] deterministically per component.
		vec[i] = float32(int64(seed%2001)-1000) / 1000.0
	}
	normalize(vec)
	return vec, nil
}

func (s *StubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *StubEmbedder) Dimensions() int { return s.dim }

func (s *StubEmbedder) Model() string { return "stub" }

func normalize(vec []float32) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
}
