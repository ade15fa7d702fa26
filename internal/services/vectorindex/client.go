// Package vectorindex implements the VectorIndex interface on the Pinecone Go SDK.
package vectorindex

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
)

const (
	// DefaultControllerURL is the Pinecone control plane.
	DefaultControllerURL = "https://api.pinecone.io"

	// DefaultTimeout bounds control plane requests.
	DefaultTimeout = 30 * time.Second
)

// controlPlane is the part of *pinecone.Client the index needs
type controlPlane interface {
	ListIndexes(ctx context.Context) ([]*pinecone.Index, error)
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
}

// dataPlane is the part of *pinecone.IndexConnection the index needs
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	DeleteAllVectorsInNamespace(ctx context.Context) error
	Close() error
}

// connectFunc opens a data plane connection to an index host
type connectFunc func(host string) (dataPlane, error)

// Client is a Pinecone vector index bound to one index name.
type Client struct {
	apiKey        string
	indexName     string
	controllerURL string
	cloud         string
	region        string
	metric        string
	readyTimeout  time.Duration
	readyPoll     time.Duration
	httpClient    *http.Client
	logger        arbor.ILogger

	control controlPlane
	connect connectFunc

	mu   sync.Mutex
	host string // pinned by config or adopted from the control plane
	data dataPlane
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHost pins the data plane host, skipping control plane resolution.
func WithHost(host string) ClientOption {
	return func(c *Client) {
		c.host = strings.TrimRight(strings.TrimSpace(host), "/")
	}
}

// WithControllerURL sets a custom control plane URL.
func WithControllerURL(controllerURL string) ClientOption {
	return func(c *Client) {
		c.controllerURL = strings.TrimRight(controllerURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for control plane calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithServerless sets the cloud and region used when creating the index.
func WithServerless(cloud, region string) ClientOption {
	return func(c *Client) {
		c.cloud = cloud
		c.region = region
	}
}

// WithMetric sets the similarity metric used when creating the index.
func WithMetric(metric string) ClientOption {
	return func(c *Client) {
		c.metric = metric
	}
}

// WithReadyWait bounds how long EnsureIndex waits for a new index.
func WithReadyWait(timeout, poll time.Duration) ClientOption {
	return func(c *Client) {
		c.readyTimeout = timeout
		c.readyPoll = poll
	}
}

// withPlanes replaces the SDK client and connection factory
func withPlanes(control controlPlane, connect connectFunc) ClientOption {
	return func(c *Client) {
		c.control = control
		c.connect = connect
	}
}

// NewClient creates a Pinecone client for indexName. An empty apiKey yields
// an unconfigured client whose operations return ErrIndexUnavailable.
func NewClient(apiKey, indexName string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:        apiKey,
		indexName:     indexName,
		controllerURL: DefaultControllerURL,
		cloud:         "aws",
		region:        "us-east-1",
		metric:        "cosine",
		readyTimeout:  2 * time.Minute,
		readyPoll:     5 * time.Second,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		logger:        arbor.NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey != "" && c.control == nil {
		sdk, err := pinecone.NewClient(pinecone.NewClientParams{
			ApiKey:     c.apiKey,
			Host:       c.controllerURL,
			RestClient: c.httpClient,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create Pinecone client")
			return c
		}
		c.control = sdk
		c.connect = func(host string) (dataPlane, error) {
			conn, err := sdk.Index(pinecone.NewIndexConnParams{Host: host})
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}

	return c
}

// NewClientFromConfig builds a client from the [pinecone] config section.
func NewClientFromConfig(apiKey string, config *common.PineconeConfig, logger arbor.ILogger) *Client {
	opts := []ClientOption{
		WithLogger(logger),
		WithServerless(config.Cloud, config.Region),
		WithReadyWait(
			common.ParseDurationOr(config.ReadyTimeout, 2*time.Minute),
			common.ParseDurationOr(config.ReadyPoll, 5*time.Second),
		),
		WithHTTPClient(&http.Client{Timeout: common.ParseDurationOr(config.Timeout, DefaultTimeout)}),
	}
	if config.ControllerURL != "" {
		opts = append(opts, WithControllerURL(config.ControllerURL))
	}
	if config.Host != "" {
		opts = append(opts, WithHost(config.Host))
	}
	if config.Metric != "" {
		opts = append(opts, WithMetric(config.Metric))
	}

	return NewClient(apiKey, config.Index, opts...)
}

// Close releases the data plane connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil
	}
	err := c.data.Close()
	c.data = nil
	return err
}
