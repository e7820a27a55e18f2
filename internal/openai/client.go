package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions matches the vector column in the schema
	DefaultEmbeddingDimensions = 1536
	// DefaultRateLimit is the default number of provider requests per second
	DefaultRateLimit = 5
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = domain.NewDomainError(domain.ErrCodeValidation, "text cannot be empty")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("TUTORCORE_OPENAI_API_KEY environment variable not set")
	// ErrProviderRejected is returned for non-retryable provider responses
	ErrProviderRejected = domain.NewDomainError(domain.ErrCodeInternalError, "embedding provider rejected request")
	ErrProviderFailed   = domain.NewDomainError(domain.ErrCodeInternalError, "embedding provider failed")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client wraps the OpenAI API client with rate limiting, dimension checks
// and error classification.
type Client struct {
	api        EmbeddingAPI
	dimensions int
	limiter    *rate.Limiter
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API and returns vectors in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("provider returned out of range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	// RateLimit is requests per second; zero means DefaultRateLimit.
	RateLimit float64
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
	return newClient(NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel, dimensions), dimensions, cfg.RateLimit)
}

func newClient(api EmbeddingAPI, dimensions int, rps float64) *Client {
	if rps <= 0 {
		rps = DefaultRateLimit
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
	}
}

// NewClientFromEnv creates a new OpenAI client using TUTORCORE_OPENAI_API_KEY
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("TUTORCORE_OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Dimensions is the vector size this client returns.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed generates an embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates one embedding per text, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		telemetry.ProviderRequests.WithLabelValues("transient").Inc()
		return nil, classify(err)
	}

	start := time.Now()
	vectors, err := c.api.CreateEmbeddings(ctx, texts)
	telemetry.ProviderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		classified := classify(err)
		if domain.IsTransient(classified) {
			telemetry.ProviderRequests.WithLabelValues("transient").Inc()
		} else {
			telemetry.ProviderRequests.WithLabelValues("error").Inc()
		}
		return nil, classified
	}

	for _, v := range vectors {
		if len(v) != c.dimensions {
			telemetry.ProviderRequests.WithLabelValues("error").Inc()
			return nil, domain.DimensionError(len(v), c.dimensions)
		}
	}
	telemetry.ProviderRequests.WithLabelValues("success").Inc()
	return vectors, nil
}

// classify maps provider errors onto the domain taxonomy. Timeouts, rate
// limits, server errors and network failures are transient. Cancellation
// passes through and anything else is an internal error.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderTimeout.Message, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	var netErr net.Error
	switch {
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderUnavailable.Message, err)
	case status == http.StatusRequestTimeout:
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderTimeout.Message, err)
	case status >= http.StatusBadRequest:
		return domain.NewDomainErrorWithCause(ErrProviderRejected.Code, ErrProviderRejected.Message, err)
	case errors.As(err, &netErr):
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderUnavailable.Message, err)
	}
	return domain.NewDomainErrorWithCause(ErrProviderFailed.Code, ErrProviderFailed.Message, err)
}
