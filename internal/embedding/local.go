package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
)

// LocalProvider derives a deterministic unit vector from the SHA-256 of the
// text. It has no semantic meaning but keeps every code path exercisable
// without a model.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a hash-based provider of the given dimension.
func NewLocalProvider(dimension int) *LocalProvider {
	return &LocalProvider{dimension: dimension}
}

func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Vector(t)
	}
	return out, nil
}

// Vector returns the embedding of a single text.
func (p *LocalProvider) Vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := binary.BigEndian.Uint32(sum[:4])
	rng := rand.New(rand.NewPCG(uint64(seed), 0))

	vec := make([]float32, p.dimension)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
	}
	return normalize(vec)
}

func (p *LocalProvider) Dimension() int {
	return p.dimension
}
