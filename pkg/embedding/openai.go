package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultBatchSize   = 100
)

// OpenAIConfig holds OpenAI embedding configuration
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // Optional
	Dimension int    // Optional, inferred from the model
	BatchSize int
}

// OpenAIProvider calls the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	explicit  bool
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &memerrors.ConfigurationError{Field: "embedding.api_key", Message: "required for the openai provider"}
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	dimension := cfg.Dimension
	explicit := dimension > 0
	if !explicit {
		dimension = 1536 // text-embedding-3-small and ada-002
		if model == "text-embedding-3-large" {
			dimension = 3072
		}
	}

	batch := cfg.BatchSize
	if batch <= 0 || batch > defaultBatchSize {
		batch = defaultBatchSize
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(60 * time.Second),
		option.WithMaxRetries(3),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
		batchSize: batch,
		explicit:  explicit,
	}, nil
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed embeds texts in batches, preserving input order.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.embedBatch(ctx, texts[start:end])
		observability.RecordEmbeddingRequest(p.Name(), err == nil)
		if err != nil {
			return nil, &memerrors.EmbeddingError{Provider: p.Name(), Err: err}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.explicit {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			return nil, fmt.Errorf("invalid index: %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
