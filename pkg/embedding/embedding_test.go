package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harun/twinself/pkg/memerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	*MockProvider
	calls int
	texts int
	err   error
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.MockProvider.Embed(ctx, texts)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider(32)
	vectors, err := p.Embed(context.Background(), []string{"hello", "world", "hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Len(t, vectors[0], 32)
	assert.Equal(t, vectors[0], vectors[2])
	assert.NotEqual(t, vectors[0], vectors[1])

	var norm float64
	for _, v := range vectors[1] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockProvider_DefaultDimension(t *testing.T) {
	assert.Equal(t, 64, NewMockProvider(0).Dimension())
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{MockProvider: NewMockProvider(8)}
	c, err := NewCachedProvider(inner, 10)
	require.NoError(t, err)

	first, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, inner.texts)

	second, err := c.Embed(context.Background(), []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 3, inner.texts, "only the uncached text is sent")

	assert.Equal(t, first[0], second[2])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 3, c.Len())

	_, err = c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_Error(t *testing.T) {
	inner := &countingProvider{MockProvider: NewMockProvider(8), err: errors.New("boom")}
	c, err := NewCachedProvider(inner, 10)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestNew(t *testing.T) {
	p, err := New(Config{Provider: "mock", Dimension: 16, CacheSize: 5})
	require.NoError(t, err)
	assert.IsType(t, &CachedProvider{}, p)
	assert.Equal(t, 16, p.Dimension())
	assert.Equal(t, ProviderMock, p.Name())

	_, err = New(Config{Provider: "openai"})
	var cerr *memerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	_, err = New(Config{Provider: "word2vec"})
	assert.True(t, errors.As(err, &cerr))
}

func TestOpenAIProvider_Dimension(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimension())

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Dimension: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, p.Dimension())
}

func TestEmbedOne(t *testing.T) {
	v, err := EmbedOne(context.Background(), NewMockProvider(4), "q")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)

		// answer out of order to check index handling
		data := make([]map[string]interface{}, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(body.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  body.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", BatchSize: 2})
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, vectors)
}
