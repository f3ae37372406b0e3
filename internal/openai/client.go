package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloo-solutions/storyrag/internal/embedding"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536

	probeText = "storyrag embedding probe"
)

var (
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no API key is configured
	ErrNoAPIKey = errors.New("OpenAI API key not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client wraps the OpenAI API client. It satisfies embedding.Model and
// embedding.Loader.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	hasKey     bool
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

func newAPIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel, dims int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: newAPIClient(apiKey, baseURL),
		model:  model,
		dims:   dims,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings, one per input,
// in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	// Only the text-embedding-3 family accepts a dimensions parameter.
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dims
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i := range data {
		out[i] = data[i].Embedding
	}
	return out, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, model, dimensions),
		model:      string(model),
		dimensions: dimensions,
		hasKey:     cfg.APIKey != "" || cfg.BaseURL != "",
	}
}

func (c *Client) Name() string    { return c.model }
func (c *Client) Dimensions() int { return c.dimensions }

// Embed generates embeddings for texts. Each vector must have the configured
// dimension.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	for i, v := range vecs {
		if len(v) != c.dimensions {
			return nil, fmt.Errorf("%w: input %d has %d, expected %d", ErrWrongDimensions, i, len(v), c.dimensions)
		}
	}

	return vecs, nil
}

// Load verifies credentials and dimensions with a single probe request.
func (c *Client) Load(ctx context.Context) (embedding.Model, error) {
	if !c.hasKey {
		return nil, ErrNoAPIKey
	}
	if _, err := c.Embed(ctx, []string{probeText}); err != nil {
		return nil, fmt.Errorf("probe %s: %w", c.model, err)
	}
	return c, nil
}
