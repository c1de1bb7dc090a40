package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// trackingStatuses are the lifecycle statuses visible on the tracking
// dashboards. Completed proposals stay listed so finished work does not
// vanish the moment execution reaches 100%.
var trackingStatuses = []string{ProposalInExecution, ProposalCompleted}

// ListExecutionForCitizens returns tracking-visible proposals joined with
// their public execution status, most recently approved first.
func (s *PostgresStore) ListExecutionForCitizens(ctx context.Context, filters ExecutionFilters) ([]ExecutionRow, error) {
	return s.listExecution(ctx, filters, trackingStatuses)
}

// ListExecutionForManagers additionally includes approved proposals that have
// not started execution yet; creator names are populated for this view.
func (s *PostgresStore) ListExecutionForManagers(ctx context.Context, filters ExecutionFilters) ([]ExecutionRow, error) {
	return s.listExecution(ctx, filters, append([]string{ProposalApproved}, trackingStatuses...))
}

func (s *PostgresStore) listExecution(ctx context.Context, filters ExecutionFilters, statuses []string) ([]ExecutionRow, error) {
	placeholders := make([]string, 0, len(statuses))
	args := []any{filters.Locality, filters.State, filters.Category}
	for i, status := range statuses {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+4))
		args = append(args, status)
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.title, p.description, p.category, p.budget_cents, p.locality, p.status,
			p.created_by, p.created_at, p.approved_at,
			(SELECT COUNT(*) FROM votes v WHERE v.proposal_id=p.id)::int,
			es.proposal_id, es.percent_physical, es.percent_financial, es.state,
			COALESCE(es.internal_comments, ''), COALESCE(es.updated_by, ''), es.updated_at,
			creator.display_name
		FROM proposals p
		LEFT JOIN execution_status es ON es.proposal_id = p.id
		JOIN profiles creator ON creator.id = p.created_by
		WHERE p.status IN (%s)
		  AND ($1='' OR p.locality=$1)
		  AND ($2='' OR es.state=$2)
		  AND ($3='' OR p.category=$3)
		ORDER BY p.approved_at DESC NULLS LAST, p.created_at DESC
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution: %w", err)
	}
	defer rows.Close()

	items := make([]ExecutionRow, 0)
	for rows.Next() {
		var item ExecutionRow
		var status ExecutionStatus
		var statusID sql.NullString
		var percentPhysical, percentFinancial sql.NullFloat64
		var state, comments, updatedBy sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(
			&item.Proposal.ID,
			&item.Proposal.Title,
			&item.Proposal.Description,
			&item.Proposal.Category,
			&item.Proposal.BudgetCents,
			&item.Proposal.Locality,
			&item.Proposal.Status,
			&item.Proposal.CreatedBy,
			&item.Proposal.CreatedAt,
			&item.Proposal.ApprovedAt,
			&item.Proposal.VoteCount,
			&statusID,
			&percentPhysical,
			&percentFinancial,
			&state,
			&comments,
			&updatedBy,
			&updatedAt,
			&item.CreatorName,
		); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		if statusID.Valid {
			status.ProposalID = statusID.String
			status.PercentPhysical = percentPhysical.Float64
			status.PercentFinancial = percentFinancial.Float64
			status.State = state.String
			status.InternalComments = comments.String
			status.UpdatedBy = updatedBy.String
			status.UpdatedAt = updatedAt.Time
			item.Status = &status
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetExecutionStatus(ctx context.Context, proposalID string) (ExecutionStatus, error) {
	var item ExecutionStatus
	err := s.db.QueryRowContext(ctx, `
		SELECT proposal_id, percent_physical, percent_financial, state,
			COALESCE(internal_comments, ''), COALESCE(updated_by, ''), updated_at
		FROM execution_status
		WHERE proposal_id=$1
	`, proposalID).Scan(
		&item.ProposalID,
		&item.PercentPhysical,
		&item.PercentFinancial,
		&item.State,
		&item.InternalComments,
		&item.UpdatedBy,
		&item.UpdatedAt,
	)
	if err != nil {
		return ExecutionStatus{}, err
	}
	return item, nil
}

// ApplyExecutionPatch updates only the fields the patch carries, creating the
// status row lazily on first touch. It returns the resulting row.
func (s *PostgresStore) ApplyExecutionPatch(ctx context.Context, proposalID string, patch ExecutionPatch, updatedBy string) (ExecutionStatus, error) {
	current, err := s.GetExecutionStatus(ctx, proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		current = ExecutionStatus{ProposalID: proposalID, State: ExecutionInProgress}
	} else if err != nil {
		return ExecutionStatus{}, fmt.Errorf("load execution status: %w", err)
	}

	if patch.PercentPhysical != nil {
		current.PercentPhysical = *patch.PercentPhysical
	}
	if patch.PercentFinancial != nil {
		current.PercentFinancial = *patch.PercentFinancial
	}
	if patch.State != nil {
		current.State = *patch.State
	}
	if patch.InternalComments != nil {
		current.InternalComments = *patch.InternalComments
	}
	current.UpdatedBy = updatedBy

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO execution_status (proposal_id, percent_physical, percent_financial, state, internal_comments, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (proposal_id) DO UPDATE SET
			percent_physical=EXCLUDED.percent_physical,
			percent_financial=EXCLUDED.percent_financial,
			state=EXCLUDED.state,
			internal_comments=EXCLUDED.internal_comments,
			updated_by=EXCLUDED.updated_by,
			updated_at=NOW()
		RETURNING updated_at
	`, current.ProposalID, current.PercentPhysical, current.PercentFinancial,
		current.State, current.InternalComments, current.UpdatedBy).Scan(&current.UpdatedAt)
	if err != nil {
		return ExecutionStatus{}, fmt.Errorf("apply execution patch: %w", err)
	}
	return current, nil
}
