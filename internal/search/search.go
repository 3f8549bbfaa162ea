package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request. ProjectIDs is the set of projects the
// caller may read; ProjectID narrows it to one of them.
type Query struct {
	Text       string
	UserID     string
	ProjectIDs []string
	ProjectID  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push documents into a search index.
type Indexer interface {
	Healthy() bool
	IndexDocument(doc DocumentRecord) error
	IndexDocuments(docs []DocumentRecord) error
	DeleteDocument(id string) error
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt"`
}
