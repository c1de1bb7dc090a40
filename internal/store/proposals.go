package store

import (
	"context"
	"fmt"
	"strings"
)

func (s *PostgresStore) InsertProposal(ctx context.Context, proposal Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, title, description, category, budget_cents, locality, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, proposal.ID, proposal.Title, proposal.Description, proposal.Category,
		proposal.BudgetCents, proposal.Locality, proposal.Status, proposal.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var item Proposal
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.title, p.description, p.category, p.budget_cents, p.locality, p.status,
			p.created_by, p.created_at, p.approved_at,
			(SELECT COUNT(*) FROM votes v WHERE v.proposal_id=p.id)::int
		FROM proposals p
		WHERE p.id=$1
	`, proposalID).Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.BudgetCents,
		&item.Locality,
		&item.Status,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.ApprovedAt,
		&item.VoteCount,
	)
	if err != nil {
		return Proposal{}, err
	}
	return item, nil
}

const listProposalsQuery = `
	SELECT p.id, p.title, p.description, p.category, p.budget_cents, p.locality, p.status,
		p.created_by, p.created_at, p.approved_at,
		(SELECT COUNT(*) FROM votes v WHERE v.proposal_id=p.id)::int AS vote_count
	FROM proposals p
	WHERE ($1='' OR p.status=$1)
	  AND ($2='' OR p.category=$2)
	  AND ($3='' OR p.locality=$3)
	  AND ($4::bigint=0 OR p.budget_cents >= $4)
	  AND ($5::bigint=0 OR p.budget_cents <= $5)
	  AND ($6='' OR p.title ILIKE '%'||$6||'%' OR p.description ILIKE '%'||$6||'%')
`

func (s *PostgresStore) ListProposals(ctx context.Context, filters ProposalFilters) ([]Proposal, error) {
	query := listProposalsQuery
	switch filters.Sort {
	case "votes":
		query += ` ORDER BY vote_count DESC, p.created_at DESC`
	case "budget":
		query += ` ORDER BY p.budget_cents DESC, p.created_at DESC`
	default:
		query += ` ORDER BY p.created_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query,
		filters.Status, filters.Category, filters.Locality,
		filters.MinBudgetCents, filters.MaxBudgetCents, filters.Search)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		var item Proposal
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Description,
			&item.Category,
			&item.BudgetCents,
			&item.Locality,
			&item.Status,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.ApprovedAt,
			&item.VoteCount,
		); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProposalsByCreator(ctx context.Context, profileID string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.description, p.category, p.budget_cents, p.locality, p.status,
			p.created_by, p.created_at, p.approved_at,
			(SELECT COUNT(*) FROM votes v WHERE v.proposal_id=p.id)::int
		FROM proposals p
		WHERE p.created_by=$1
		ORDER BY p.created_at DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list proposals by creator: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		var item Proposal
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Description,
			&item.Category,
			&item.BudgetCents,
			&item.Locality,
			&item.Status,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.ApprovedAt,
			&item.VoteCount,
		); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProposalContent(ctx context.Context, proposalID, title, description, category string, budgetCents int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET title=$2, description=$3, category=$4, budget_cents=$5, updated_at=NOW()
		WHERE id=$1
	`, proposalID, title, description, category, budgetCents)
	if err != nil {
		return false, fmt.Errorf("update proposal content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update proposal content rows: %w", err)
	}
	return affected > 0, nil
}

// TransitionProposal moves a proposal between lifecycle statuses. The update
// only lands when the current status is one of fromStatuses, which keeps
// concurrent reviewers from double-applying a decision.
func (s *PostgresStore) TransitionProposal(ctx context.Context, proposalID, toStatus string, fromStatuses ...string) (bool, error) {
	placeholders := make([]string, 0, len(fromStatuses))
	args := []any{proposalID, toStatus}
	for i, from := range fromStatuses {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, from)
	}
	query := fmt.Sprintf(`
		UPDATE proposals
		SET status=$2,
			approved_at=CASE WHEN $2='approved' THEN NOW() ELSE approved_at END,
			updated_at=NOW()
		WHERE id=$1 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition proposal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition proposal rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertVote(ctx context.Context, vote Vote) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, proposal_id, profile_id, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, profile_id) DO NOTHING
	`, vote.ID, vote.ProposalID, vote.ProfileID, vote.Comment)
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert vote rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) HasVoted(ctx context.Context, proposalID, profileID string) (bool, error) {
	var voted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM votes WHERE proposal_id=$1 AND profile_id=$2)
	`, proposalID, profileID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return voted, nil
}

func (s *PostgresStore) VotedProposalIDs(ctx context.Context, profileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id FROM votes WHERE profile_id=$1
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list voted proposals: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan voted proposal: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voted proposals: %w", err)
	}
	return ids, nil
}

// DistinctLocalities lists the locality values of tracking-visible proposals
// for the filter dropdowns. Drafts and rejected proposals stay out.
func (s *PostgresStore) DistinctLocalities(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "locality")
}

func (s *PostgresStore) DistinctCategories(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "category")
}

// distinctQuery scopes the value set to the statuses shown on the tracking
// dashboards, the same set listExecution serves to citizens.
func distinctQuery(column string) string {
	quoted := make([]string, 0, len(trackingStatuses))
	for _, status := range trackingStatuses {
		quoted = append(quoted, "'"+status+"'")
	}
	return fmt.Sprintf(`
		SELECT DISTINCT %s FROM proposals
		WHERE %s <> '' AND status IN (%s)
		ORDER BY %s ASC
	`, column, column, strings.Join(quoted, ", "), column)
}

func (s *PostgresStore) distinctColumn(ctx context.Context, column string) ([]string, error) {
	// column is one of two compile-time constants, never user input.
	rows, err := s.db.QueryContext(ctx, distinctQuery(column))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", column, err)
	}
	return values, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (total int, inReview int, inExecution int, completed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('submitted', 'under_review')),
			COUNT(*) FILTER (WHERE status='in_execution'),
			COUNT(*) FILTER (WHERE status='completed')
		FROM proposals
	`).Scan(&total, &inReview, &inExecution, &completed)
	if err != nil {
		err = fmt.Errorf("summary counts: %w", err)
	}
	return
}
