package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the proposals table using plainto_tsquery and ts_rank, with
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('portuguese', $1)"
	args := []any{q.Text}
	argN := 2

	where := "p.fts @@ " + tsQuery
	if q.FilterCategory != "" {
		where += fmt.Sprintf(" AND p.category = $%d", argN)
		args = append(args, q.FilterCategory)
		argN++
	}
	if q.FilterLocality != "" {
		where += fmt.Sprintf(" AND p.locality = $%d", argN)
		args = append(args, q.FilterLocality)
		argN++
	}
	if !q.IncludeDrafts {
		where += " AND p.status <> 'draft'"
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM proposals p WHERE %s", where)
	dataSQL := fmt.Sprintf(`
		SELECT p.id, p.title,
			ts_headline('portuguese', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			p.category, p.locality, p.status
		FROM proposals p
		WHERE %s
		ORDER BY ts_rank(p.fts, %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Category, &r.Locality, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable proposals for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProposalRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, category, locality, status
		FROM proposals
	`)
	if err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	defer rows.Close()

	records := make([]ProposalRecord, 0)
	for rows.Next() {
		var record ProposalRecord
		if err := rows.Scan(&record.ID, &record.Title, &record.Description, &record.Category, &record.Locality, &record.Status); err != nil {
			return nil, fmt.Errorf("scan proposal record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal records: %w", err)
	}
	return records, nil
}
