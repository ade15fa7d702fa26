// Package content fetches knowledge-base articles from a Drupal GraphQL
// endpoint and reduces their bodies to indexable plain text.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// articlesQuery pages through published articles with a cursor
const articlesQuery = `query GetArticles($first: Int!, $after: String) {
  nodeArticles(first: $first, after: $after) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      id
      title
      path
      created {
        time
      }
      body {
        processed
      }
      summary
      category
      tags
      readTime
      image {
        url
        alt
      }
    }
  }
}`

const articlePathPrefix = "/articles/"

// DefaultRequestsPerSecond is the GraphQL request ceiling when none is configured
const DefaultRequestsPerSecond = 5

// DrupalSource implements ContentSource against Drupal's GraphQL API with
// OAuth2 client-credentials authentication.
type DrupalSource struct {
	config     *common.DrupalConfig
	graphqlURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
	now        func() time.Time
}

// NewDrupalSource creates the content source. Missing base URL or
// credentials yield an unconfigured source.
func NewDrupalSource(clientSecret string, config *common.DrupalConfig, logger arbor.ILogger) *DrupalSource {
	requestsPerSecond := config.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}

	source := &DrupalSource{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  logger,
		now:     time.Now,
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" || config.ClientID == "" || clientSecret == "" {
		return source
	}

	timeout := common.ParseDurationOr(config.Timeout, 30*time.Second)
	credentials := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + config.TokenPath,
	}

	// The token endpoint shares the request timeout
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	client := credentials.Client(tokenCtx)
	client.Timeout = timeout

	source.httpClient = client
	source.graphqlURL = baseURL + config.GraphQLPath

	return source
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type articlesResponse struct {
	Data struct {
		NodeArticles struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []articleNode `json:"nodes"`
		} `json:"nodeArticles"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// articleNode is one GraphQL article. Tags arrive as a comma separated
// string on some schemas and as a list on others.
type articleNode struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Path    string `json:"path"`
	Created *struct {
		Time string `json:"time"`
	} `json:"created"`
	Body *struct {
		Processed string `json:"processed"`
	} `json:"body"`
	Summary  string          `json:"summary"`
	Category string          `json:"category"`
	Tags     json.RawMessage `json:"tags"`
	ReadTime string          `json:"readTime"`
	Image    *struct {
		URL string `json:"url"`
		Alt string `json:"alt"`
	} `json:"image"`
}

// FetchArticles pages through every published article
func (s *DrupalSource) FetchArticles(ctx context.Context) ([]models.Article, error) {
	if !s.Configured() {
		return nil, interfaces.ErrContentSourceUnavailable
	}

	pageSize := s.config.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := s.config.MaxPages
	if maxPages <= 0 {
		maxPages = 200
	}

	articles := []models.Article{}
	var cursor string

	for page := 1; ; page++ {
		if page > maxPages {
			return nil, interfaces.UpstreamError("drupal", fmt.Errorf("pagination exceeded %d pages", maxPages))
		}

		variables := map[string]any{"first": pageSize}
		if cursor != "" {
			variables["after"] = cursor
		}

		var resp articlesResponse
		if err := s.query(ctx, articlesQuery, variables, &resp); err != nil {
			return nil, err
		}

		fetchedAt := s.now()
		for _, node := range resp.Data.NodeArticles.Nodes {
			articles = append(articles, mapArticle(node, fetchedAt))
		}

		pageInfo := resp.Data.NodeArticles.PageInfo
		s.logger.Debug().
			Int("page", page).
			Int("nodes", len(resp.Data.NodeArticles.Nodes)).
			Bool("has_next", pageInfo.HasNextPage).
			Msg("Fetched article page")

		if !pageInfo.HasNextPage || pageInfo.EndCursor == "" || pageInfo.EndCursor == cursor {
			break
		}
		cursor = pageInfo.EndCursor
	}

	s.logger.Info().Int("articles", len(articles)).Msg("Fetched articles from Drupal")
	return articles, nil
}

// query posts a GraphQL document and decodes the response into result
func (s *DrupalSource) query(ctx context.Context, query string, variables map[string]any, result *articlesResponse) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return interfaces.UpstreamError("drupal", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return interfaces.UpstreamError("drupal", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return interfaces.UpstreamError("drupal", fmt.Errorf("graphql request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return interfaces.UpstreamError("drupal", fmt.Errorf("decode response: %w", err))
	}

	if len(result.Errors) > 0 {
		messages := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			messages = append(messages, e.Message)
		}
		return interfaces.UpstreamError("drupal", fmt.Errorf("graphql errors: %s", strings.Join(messages, "; ")))
	}

	return nil
}

// mapArticle applies the content-source defaults to one node
func mapArticle(node articleNode, fetchedAt time.Time) models.Article {
	article := models.Article{
		ID:          node.ID,
		Title:       node.Title,
		Slug:        node.ID,
		Summary:     node.Summary,
		Category:    node.Category,
		Tags:        parseTags(node.Tags),
		ReadTime:    node.ReadTime,
		PublishedAt: fetchedAt.UTC().Format(time.RFC3339),
	}

	if slug := strings.TrimPrefix(node.Path, articlePathPrefix); node.Path != "" && slug != "" {
		article.Slug = slug
	}
	if node.Body != nil {
		article.Body = node.Body.Processed
	}
	if article.Category == "" {
		article.Category = models.DefaultCategory
	}
	if article.ReadTime == "" {
		article.ReadTime = models.DefaultReadTime
	}
	if node.Created != nil && node.Created.Time != "" {
		article.PublishedAt = node.Created.Time
	}
	if node.Image != nil && node.Image.URL != "" {
		alt := node.Image.Alt
		if alt == "" {
			alt = node.Title
		}
		article.Image = &models.ArticleImage{URL: node.Image.URL, Alt: alt}
	}

	return article
}

// parseTags accepts "a, b", ["a", "b"] or [{"name": "a"}]
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return models.SplitTags(joined, ",")
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return models.SplitTags(strings.Join(list, ","), ",")
	}

	var terms []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &terms); err == nil {
		names := make([]string, 0, len(terms))
		for _, term := range terms {
			names = append(names, term.Name)
		}
		return models.SplitTags(strings.Join(names, ","), ",")
	}

	return []string{}
}

// Configured reports whether base URL and client credentials are present
func (s *DrupalSource) Configured() bool {
	return s.httpClient != nil
}

var _ interfaces.ContentSource = (*DrupalSource)(nil)
