package models

// SearchResult is one semantic search hit. Score is the cosine similarity
// reported by the vector index; Article.Body is always empty.
type SearchResult struct {
	ID      string  `json:"id" yaml:"id"`
	Score   float32 `json:"score" yaml:"score"`
	Article Article `json:"article" yaml:"article"`
}

// SearchResponse is the payload of the search entry point.
type SearchResponse struct {
	Query        string         `json:"query" yaml:"query"`
	Results      []SearchResult `json:"results" yaml:"results"`
	TotalResults int            `json:"totalResults" yaml:"totalResults"`
}
