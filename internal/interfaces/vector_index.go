package interfaces

import (
	"context"
)

// VectorRecord is one (id, vector, metadata) entry in the vector index.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// VectorMatch is one nearest-neighbour hit.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// VectorIndex stores embeddings and answers top-K cosine similarity queries.
type VectorIndex interface {
	// Upsert replaces any existing record with the same ID.
	Upsert(ctx context.Context, record VectorRecord) error

	// Query returns at most topK matches ordered by descending score.
	// An empty index yields an empty slice and no error.
	Query(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error)

	// Delete removes a single record.
	Delete(ctx context.Context, id string) error

	// ClearAll removes every record in the index.
	ClearAll(ctx context.Context) error

	// EnsureIndex creates the index with the given dimension when it is missing
	// and waits (bounded) until it is ready.
	EnsureIndex(ctx context.Context, dimension int) error

	// Configured reports whether the index has a credential.
	Configured() bool

	// Name is the configured index name.
	Name() string
}
