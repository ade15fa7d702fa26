package interfaces

import (
	"context"
)

// EmbeddingMode selects the encoder variant. Document and query vectors are
// encoded asymmetrically but live in the same space.
type EmbeddingMode string

const (
	EmbeddingModeDocument EmbeddingMode = "document"
	EmbeddingModeQuery    EmbeddingMode = "query"
)

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	// Embed truncates text to the provider's character budget and encodes it in the given mode.
	// Returns ErrProviderUnavailable when no credential is configured.
	Embed(ctx context.Context, text string, mode EmbeddingMode) ([]float32, error)

	// Configured reports whether the provider has a credential.
	Configured() bool

	// Dimension is the fixed output dimension of every vector.
	Dimension() int

	// Model is the encoder model name.
	Model() string
}
