package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"participa/api/internal/export"
	"participa/api/internal/rbac"
	"participa/api/internal/realtime"
	"participa/api/internal/store"
	"participa/api/internal/tracking"
)

// ExecutionView is one row of a tracking dashboard. Internal comments are
// only filled for the manager view.
type ExecutionView struct {
	ProposalID       string     `json:"proposalId"`
	Title            string     `json:"title"`
	Category         string     `json:"category"`
	Locality         string     `json:"locality"`
	BudgetCents      int64      `json:"budgetCents"`
	ProposalStatus   string     `json:"proposalStatus"`
	PercentPhysical  float64    `json:"percentPhysical"`
	PercentFinancial float64    `json:"percentFinancial"`
	State            string     `json:"state"`
	InternalComments string     `json:"internalComments,omitempty"`
	CreatorName      string     `json:"creatorName,omitempty"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

func executionView(row store.ExecutionRow, withInternal bool) ExecutionView {
	snapshot := tracking.SnapshotOf(row.Status, row.Proposal.ID)
	view := ExecutionView{
		ProposalID:       row.Proposal.ID,
		Title:            row.Proposal.Title,
		Category:         row.Proposal.Category,
		Locality:         row.Proposal.Locality,
		BudgetCents:      row.Proposal.BudgetCents,
		ProposalStatus:   row.Proposal.Status,
		PercentPhysical:  snapshot.PercentPhysical,
		PercentFinancial: snapshot.PercentFinancial,
		State:            snapshot.State,
		ApprovedAt:       row.Proposal.ApprovedAt,
	}
	if row.Status != nil {
		updated := row.Status.UpdatedAt
		view.UpdatedAt = &updated
	}
	if withInternal {
		view.InternalComments = snapshot.InternalComments
		view.CreatorName = row.CreatorName
	}
	return view
}

// CitizenExecution lists in-execution and completed proposals for the public
// tracking page. Internal commentary never leaves the building.
func (s *Service) CitizenExecution(ctx context.Context, filters store.ExecutionFilters) ([]ExecutionView, error) {
	rows, err := s.store.ListExecutionForCitizens(ctx, filters)
	if err != nil {
		return nil, err
	}
	views := make([]ExecutionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, executionView(row, false))
	}
	return views, nil
}

// ManagerExecution lists the tracking workbench rows, creator and internal
// comments included.
func (s *Service) ManagerExecution(ctx context.Context, session Session, filters store.ExecutionFilters) ([]ExecutionView, error) {
	if !rbac.Can(session.Role, rbac.ActionTrack) {
		return nil, domainError(403, "FORBIDDEN", "Apenas gestores acedem ao acompanhamento", nil)
	}
	rows, err := s.store.ListExecutionForManagers(ctx, filters)
	if err != nil {
		return nil, err
	}
	views := make([]ExecutionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, executionView(row, true))
	}
	return views, nil
}

// UpdateExecution saves one proposal's execution progress.
func (s *Service) UpdateExecution(ctx context.Context, session Session, proposalID string, input tracking.BatchInput) (store.ExecutionStatus, error) {
	if !rbac.Can(session.Role, rbac.ActionTrack) {
		return store.ExecutionStatus{}, domainError(403, "FORBIDDEN", "Apenas gestores atualizam a execução", nil)
	}
	patch, problems := tracking.BuildPatch(input)
	if problems != nil {
		return store.ExecutionStatus{}, validationError(problems)
	}
	if patch.IsEmpty() {
		return store.ExecutionStatus{}, validationError(map[string]string{"patch": "nenhum campo para atualizar"})
	}

	status, err := s.store.ApplyExecutionPatch(ctx, proposalID, patch, session.ProfileID)
	if err != nil {
		return store.ExecutionStatus{}, err
	}
	s.afterExecutionUpdate(ctx, proposalID, status)
	return status, nil
}

// BatchUpdateExecution applies one sparse patch to every selected proposal
// independently and reports per-row outcomes.
func (s *Service) BatchUpdateExecution(ctx context.Context, session Session, ids []string, input tracking.BatchInput) ([]tracking.BatchResult, error) {
	if !rbac.Can(session.Role, rbac.ActionTrack) {
		return nil, domainError(403, "FORBIDDEN", "Apenas gestores atualizam a execução", nil)
	}
	if len(ids) == 0 {
		return nil, validationError(map[string]string{"ids": "selecione pelo menos uma proposta"})
	}
	patch, problems := tracking.BuildPatch(input)
	if problems != nil {
		return nil, validationError(problems)
	}

	results := tracking.ApplyBatch(ctx, s.store, ids, patch, session.ProfileID)
	for _, result := range results {
		if result.Err == "" && result.Status != nil {
			s.afterExecutionUpdate(ctx, result.ID, *result.Status)
		}
	}
	return results, nil
}

// afterExecutionUpdate fans out the change and keeps the proposal status in
// step when execution reaches completion.
func (s *Service) afterExecutionUpdate(ctx context.Context, proposalID string, status store.ExecutionStatus) {
	if status.State == store.ExecutionCompleted {
		if _, err := s.store.TransitionProposal(ctx, proposalID, store.ProposalCompleted, store.ProposalInExecution); err == nil {
			s.publishProposal(ctx, "update", proposalID)
		}
	}
	if s.hub != nil {
		s.hub.Publish(ctx, realtime.TopicExecution, "update", proposalID)
	}
}

// ExecutionFilterOptions feeds the tracking filter dropdowns.
func (s *Service) ExecutionFilterOptions(ctx context.Context) (map[string][]string, error) {
	options, err := s.FilterOptions(ctx)
	if err != nil {
		return nil, err
	}
	options["states"] = []string{store.ExecutionInProgress, store.ExecutionDelayed, store.ExecutionCompleted}
	return options, nil
}

// ExportExecutionReport renders the manager workbench as PDF or CSV.
func (s *Service) ExportExecutionReport(ctx context.Context, session Session, filters store.ExecutionFilters, format export.Format) (*export.Result, error) {
	if !rbac.Can(session.Role, rbac.ActionTrack) {
		return nil, domainError(403, "FORBIDDEN", "Apenas gestores exportam relatórios", nil)
	}
	rows, err := s.store.ListExecutionForManagers(ctx, filters)
	if err != nil {
		return nil, err
	}

	report := export.Report{
		Title:       "Relatório de Execução",
		GeneratedAt: time.Now(),
		GeneratedBy: session.DisplayName,
		Filters:     describeExecutionFilters(filters),
		Rows:        make([]export.Row, 0, len(rows)),
	}
	for _, row := range rows {
		snapshot := tracking.SnapshotOf(row.Status, row.Proposal.ID)
		exportRow := export.Row{
			ProposalID:       row.Proposal.ID,
			Title:            row.Proposal.Title,
			Category:         row.Proposal.Category,
			Locality:         row.Proposal.Locality,
			BudgetCents:      row.Proposal.BudgetCents,
			Status:           row.Proposal.Status,
			PercentPhysical:  snapshot.PercentPhysical,
			PercentFinancial: snapshot.PercentFinancial,
			State:            snapshot.State,
			CreatorName:      row.CreatorName,
			ApprovedAt:       row.Proposal.ApprovedAt,
		}
		if row.Status != nil {
			updated := row.Status.UpdatedAt
			exportRow.UpdatedAt = &updated
		}
		report.Rows = append(report.Rows, exportRow)
	}

	result, err := export.Export(report, format)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, validationError(map[string]string{"format": "formato não suportado"})
		}
		return nil, err
	}
	return result, nil
}

func describeExecutionFilters(filters store.ExecutionFilters) string {
	parts := make([]string, 0, 3)
	if filters.Locality != "" {
		parts = append(parts, fmt.Sprintf("localidade=%s", filters.Locality))
	}
	if filters.Category != "" {
		parts = append(parts, fmt.Sprintf("categoria=%s", filters.Category))
	}
	if filters.State != "" {
		parts = append(parts, fmt.Sprintf("estado=%s", filters.State))
	}
	return strings.Join(parts, ", ")
}
