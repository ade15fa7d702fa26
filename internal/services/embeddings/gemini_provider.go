package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// Gemini task types for asymmetric retrieval embeddings
const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// embedClient is the subset of *genai.Models used for embeddings
type embedClient interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiProvider implements EmbeddingProvider with Gemini embedding models
type GeminiProvider struct {
	client    embedClient
	model     string
	dimension int
	maxChars  int
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewGeminiProvider creates the provider. A missing API key is not an error:
// the provider reports Configured() == false and Embed returns ErrProviderUnavailable.
func NewGeminiProvider(ctx context.Context, apiKey string, config *common.EmbeddingConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	provider := &GeminiProvider{
		model:     config.Model,
		dimension: config.Dimension,
		maxChars:  config.MaxChars,
		timeout:   common.ParseDurationOr(config.Timeout, 30*time.Second),
		logger:    logger,
	}

	if apiKey == "" {
		logger.Warn().Msg("Gemini API key not configured, embeddings unavailable")
		return provider, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	provider.client = client.Models

	logger.Debug().
		Str("model", provider.model).
		Int("dimension", provider.dimension).
		Msg("Gemini embedding provider initialized")

	return provider, nil
}

// Embed truncates text to the character budget and encodes it in the given mode
func (p *GeminiProvider) Embed(ctx context.Context, text string, mode interfaces.EmbeddingMode) ([]float32, error) {
	if p.client == nil {
		return nil, interfaces.ErrProviderUnavailable
	}

	taskType, err := taskTypeFor(mode)
	if err != nil {
		return nil, err
	}

	text = Truncate(text, p.maxChars)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding text is empty: %w", interfaces.ErrMalformedInput)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dim := int32(p.dimension)
	start := time.Now()
	result, err := p.client.EmbedContent(callCtx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &dim,
		})
	if err != nil {
		return nil, interfaces.UpstreamError("gemini embeddings", err)
	}

	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, interfaces.UpstreamError("gemini embeddings", fmt.Errorf("no embeddings returned"))
	}

	values := result.Embeddings[0].Values
	if len(values) != p.dimension {
		return nil, interfaces.UpstreamError("gemini embeddings",
			fmt.Errorf("dimension mismatch: expected %d, got %d", p.dimension, len(values)))
	}

	p.logger.Debug().
		Str("mode", string(mode)).
		Int("chars", len([]rune(text))).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return values, nil
}

// Configured reports whether an API key was supplied
func (p *GeminiProvider) Configured() bool {
	return p.client != nil
}

// Dimension returns the fixed output dimension
func (p *GeminiProvider) Dimension() int {
	return p.dimension
}

// Model returns the embedding model name
func (p *GeminiProvider) Model() string {
	return p.model
}

func taskTypeFor(mode interfaces.EmbeddingMode) (string, error) {
	switch mode {
	case interfaces.EmbeddingModeDocument:
		return taskTypeDocument, nil
	case interfaces.EmbeddingModeQuery:
		return taskTypeQuery, nil
	default:
		return "", fmt.Errorf("unknown embedding mode %q: %w", mode, interfaces.ErrMalformedInput)
	}
}

// Truncate right-trims text to at most maxChars characters (runes).
// maxChars <= 0 disables truncation.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == maxChars {
			return text[:i]
		}
		count++
	}
	return text
}

var _ interfaces.EmbeddingProvider = (*GeminiProvider)(nil)
