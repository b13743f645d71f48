package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockProvider derives deterministic unit vectors from the text digest.
// Equal texts map to equal vectors; it never calls out of process.
type MockProvider struct {
	dimension int
}

func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) Name() string { return ProviderMock }

func (p *MockProvider) Dimension() int { return p.dimension }

func (p *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *MockProvider) vector(text string) []float32 {
	vec := make([]float32, p.dimension)
	seed := sha256.Sum256([]byte(text))
	block := seed
	var norm float64
	for i := 0; i < p.dimension; i++ {
		off := (i % 8) * 4
		if i > 0 && off == 0 {
			block = sha256.Sum256(block[:])
		}
		u := binary.BigEndian.Uint32(block[off : off+4])
		v := float64(u)/float64(math.MaxUint32)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}
