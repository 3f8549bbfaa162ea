package search

import (
	"context"
	"log"
	"strings"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{fallback: pgfts}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" || !scoped(q) {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// scoped reports whether the query can match anything the caller may read.
func scoped(q Query) bool {
	if len(q.ProjectIDs) == 0 {
		return false
	}
	if q.ProjectID == "" {
		return true
	}
	for _, id := range q.ProjectIDs {
		if id == q.ProjectID {
			return true
		}
	}
	return false
}

// IndexDocument indexes a document (fire-and-forget to Meilisearch).
func (s *Service) IndexDocument(doc DocumentRecord) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.IndexDocument(doc); err != nil {
			log.Printf("search: index document %s: %v", doc.ID, err)
		}
	}()
}

// DeleteDocument removes a document from the search index (fire-and-forget).
func (s *Service) DeleteDocument(id string) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.DeleteDocument(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every document in PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context, pgfts *PgFTS) {
	if s.indexer == nil || !s.indexer.Healthy() || pgfts == nil {
		return
	}
	documents, err := pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.indexer.IndexDocuments(documents); err != nil {
		log.Printf("search: reindex documents: %v", err)
		return
	}
	log.Printf("search: reindexed %d documents", len(documents))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
