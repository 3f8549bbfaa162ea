package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches documents in projects the user belongs to, ranked by
// ts_rank with a ts_headline snippet of the content.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	const where = `
		FROM documents d
		JOIN project_members pm ON pm.project_id = d.project_id AND pm.user_id = $2
		WHERE d.fts @@ websearch_to_tsquery('english', $1)
			AND ($3 = '' OR d.project_id = $3)`

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+where, q.Text, q.UserID, q.ProjectID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.project_id, d.title, d.type,
			ts_headline('english', d.content, websearch_to_tsquery('english', $1),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet
		`+where+`
		ORDER BY ts_rank(d.fts, websearch_to_tsquery('english', $1)) DESC, d.updated_at DESC
		LIMIT $4 OFFSET $5`, q.Text, q.UserID, q.ProjectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Title, &r.Type, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every document for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, project_id, title, type, content, updated_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentRecord, 0)
	for rows.Next() {
		var d DocumentRecord
		var updatedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Type, &d.Content, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if updatedAt.Valid {
			d.UpdatedAt = updatedAt.Time.Unix()
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}
