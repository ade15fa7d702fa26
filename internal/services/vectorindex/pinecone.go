package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// Upsert replaces any existing record with the same id
func (c *Client) Upsert(ctx context.Context, record interfaces.VectorRecord) error {
	if !c.Configured() {
		return interfaces.ErrIndexUnavailable
	}
	if record.ID == "" {
		return fmt.Errorf("vector id is required: %w", interfaces.ErrMalformedInput)
	}

	metadata, err := structpb.NewStruct(record.Metadata)
	if err != nil {
		return fmt.Errorf("vector %s metadata: %v: %w", record.ID, err, interfaces.ErrMalformedInput)
	}

	index, err := c.index(ctx)
	if err != nil {
		return err
	}

	values := record.Values
	count, err := index.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       record.ID,
		Values:   &values,
		Metadata: metadata,
	}})
	if err != nil {
		return c.mapError(err)
	}

	c.logger.Debug().Str("id", record.ID).Int("upserted", int(count)).Msg("Upserted vector")
	return nil
}

// Query returns at most topK matches with metadata, ordered by descending score
func (c *Client) Query(ctx context.Context, values []float32, topK int) ([]interfaces.VectorMatch, error) {
	if !c.Configured() {
		return nil, interfaces.ErrIndexUnavailable
	}
	if topK <= 0 {
		return []interfaces.VectorMatch{}, nil
	}

	index, err := c.index(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          values,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, c.mapError(err)
	}

	matches := make([]interfaces.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if len(matches) == topK {
			break
		}
		if m == nil || m.Vector == nil {
			continue
		}
		metadata := map[string]any{}
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, interfaces.VectorMatch{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Metadata: metadata,
		})
	}

	return matches, nil
}

// Delete removes a single record
func (c *Client) Delete(ctx context.Context, id string) error {
	if !c.Configured() {
		return interfaces.ErrIndexUnavailable
	}
	if id == "" {
		return fmt.Errorf("vector id is required: %w", interfaces.ErrMalformedInput)
	}

	index, err := c.index(ctx)
	if err != nil {
		return err
	}

	if err := index.DeleteVectorsById(ctx, []string{id}); err != nil {
		return c.mapError(err)
	}
	return nil
}

// ClearAll removes every record in the index
func (c *Client) ClearAll(ctx context.Context) error {
	if !c.Configured() {
		return interfaces.ErrIndexUnavailable
	}

	index, err := c.index(ctx)
	if err != nil {
		return err
	}

	if err := index.DeleteAllVectorsInNamespace(ctx); err != nil {
		return c.mapError(err)
	}

	c.logger.Info().Str("index", c.indexName).Msg("Cleared all vectors")
	return nil
}

// EnsureIndex creates the index when it is missing and waits until it reports ready
func (c *Client) EnsureIndex(ctx context.Context, dimension int) error {
	if !c.Configured() {
		return interfaces.ErrIndexUnavailable
	}

	indexes, err := c.control.ListIndexes(ctx)
	if err != nil {
		return interfaces.UpstreamError("pinecone", err)
	}

	for _, idx := range indexes {
		if idx == nil || idx.Name != c.indexName {
			continue
		}
		ready := isReady(idx)
		c.logger.Debug().Str("index", c.indexName).Bool("ready", ready).Msg("Vector index exists")
		if ready {
			c.adoptHost(idx.Host)
			return nil
		}
		return c.waitReady(ctx)
	}

	c.logger.Info().
		Str("index", c.indexName).
		Int("dimension", dimension).
		Str("metric", c.metric).
		Msg("Creating vector index")

	dim := int32(dimension)
	metric := pinecone.IndexMetric(c.metric)
	_, err = c.control.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      c.indexName,
		Dimension: &dim,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(c.cloud),
		Region:    c.region,
	})
	// A conflict means another process created it first
	if err != nil && !isConflict(err) {
		return interfaces.UpstreamError("pinecone", err)
	}

	return c.waitReady(ctx)
}

// waitReady polls describe until the index is ready or readyTimeout elapses
func (c *Client) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.readyPoll)
	defer ticker.Stop()

	for {
		idx, err := c.control.DescribeIndex(ctx, c.indexName)
		if err != nil && !isNotFound(err) && ctx.Err() == nil {
			return interfaces.UpstreamError("pinecone", err)
		}
		if err == nil && isReady(idx) {
			c.adoptHost(idx.Host)
			c.logger.Info().Str("index", c.indexName).Msg("Vector index ready")
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("index %s not ready after %s: %w", c.indexName, c.readyTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// index returns the data plane connection, resolving the host once
func (c *Client) index(ctx context.Context) (dataPlane, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil {
		return c.data, nil
	}

	host := c.host
	if host == "" {
		idx, err := c.control.DescribeIndex(ctx, c.indexName)
		if err != nil {
			return nil, c.mapError(err)
		}
		if idx == nil || idx.Host == "" {
			return nil, interfaces.UpstreamError("pinecone", fmt.Errorf("index %s has no host", c.indexName))
		}
		host = idx.Host
	}

	conn, err := c.connect(host)
	if err != nil {
		return nil, interfaces.UpstreamError("pinecone", err)
	}

	c.host = host
	c.data = conn
	return conn, nil
}

// adoptHost records a described host unless one is already pinned
func (c *Client) adoptHost(host string) {
	if host == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host == "" {
		c.host = host
	}
}

// mapError converts SDK errors into the shared taxonomy
func (c *Client) mapError(err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", c.indexName, interfaces.ErrIndexNotFound)
	}
	return interfaces.UpstreamError("pinecone", err)
}

func isReady(idx *pinecone.Index) bool {
	return idx != nil && idx.Status != nil && idx.Status.Ready
}

// isNotFound matches REST 404s from the control plane and gRPC NotFound from the data plane
func isNotFound(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status.Code(err) == codes.NotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not_found") || strings.Contains(msg, "not found")
}

func isConflict(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "409") || strings.Contains(msg, "already exists")
}

// Configured reports whether an API key was supplied and the SDK client built
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.control != nil
}

// Name returns the index name
func (c *Client) Name() string {
	return c.indexName
}

var _ interfaces.VectorIndex = (*Client)(nil)
