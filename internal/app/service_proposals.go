package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"participa/api/internal/audit"
	"participa/api/internal/ratelimit"
	"participa/api/internal/rbac"
	"participa/api/internal/realtime"
	"participa/api/internal/revisions"
	"participa/api/internal/search"
	"participa/api/internal/store"
	"participa/api/internal/util"
)

// ProposalInput is the submission form body.
type ProposalInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	BudgetCents int64  `json:"budgetCents"`
	Locality    string `json:"locality"`
	// SubmitNow skips the draft stage.
	SubmitNow bool `json:"submitNow"`
}

// ProposalView is the proposal as served to clients.
type ProposalView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	BudgetCents int64      `json:"budgetCents"`
	Locality    string     `json:"locality"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	VoteCount   int        `json:"voteCount"`
	HasVoted    bool       `json:"hasVoted"`
}

func proposalView(p store.Proposal) ProposalView {
	return ProposalView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		BudgetCents: p.BudgetCents,
		Locality:    p.Locality,
		Status:      p.Status,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		ApprovedAt:  p.ApprovedAt,
		VoteCount:   p.VoteCount,
	}
}

// settingMaxBudgetCents caps proposal budgets when the admin configured one.
const settingMaxBudgetCents = "max_budget_cents"

func (s *Service) validateProposalInput(ctx context.Context, input ProposalInput) map[string]string {
	problems := make(map[string]string)
	if strings.TrimSpace(input.Title) == "" {
		problems["title"] = "o título é obrigatório"
	}
	if strings.TrimSpace(input.Description) == "" {
		problems["description"] = "a descrição é obrigatória"
	}
	if strings.TrimSpace(input.Category) == "" {
		problems["category"] = "a categoria é obrigatória"
	}
	if strings.TrimSpace(input.Locality) == "" {
		problems["locality"] = "a localidade é obrigatória"
	}
	if input.BudgetCents <= 0 {
		problems["budgetCents"] = "o orçamento tem de ser positivo"
	} else if setting, err := s.store.GetSetting(ctx, settingMaxBudgetCents); err == nil {
		if maxCents, parseErr := strconv.ParseInt(setting.Value, 10, 64); parseErr == nil && maxCents > 0 && input.BudgetCents > maxCents {
			problems["budgetCents"] = "o orçamento excede o máximo permitido"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// CreateProposal records a new proposal for the calling citizen or entity,
// as a draft or submitted straight away.
func (s *Service) CreateProposal(ctx context.Context, session Session, input ProposalInput) (ProposalView, error) {
	if !rbac.Can(session.Role, rbac.ActionSubmit) {
		return ProposalView{}, domainError(403, "FORBIDDEN", "Apenas cidadãos e entidades podem submeter propostas", nil)
	}
	if problems := s.validateProposalInput(ctx, input); problems != nil {
		return ProposalView{}, validationError(problems)
	}

	status := store.ProposalDraft
	if input.SubmitNow {
		if s.limits != nil && !s.limits.Allow(ctx, session.ProfileID, ratelimit.ActionSubmission) {
			return ProposalView{}, domainError(429, "RATE_LIMITED", "Atingiu o limite diário de submissões. Tente novamente amanhã.", nil)
		}
		status = store.ProposalSubmitted
	}

	proposal := store.Proposal{
		ID:          util.NewID("prp"),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    input.Category,
		BudgetCents: input.BudgetCents,
		Locality:    input.Locality,
		Status:      status,
		CreatedBy:   session.ProfileID,
	}
	if err := s.store.InsertProposal(ctx, proposal); err != nil {
		return ProposalView{}, err
	}

	if s.revisions != nil {
		if err := s.revisions.EnsureProposalRepo(proposal.ID, revisionContent(proposal), session.DisplayName); err != nil {
			s.logger.Warn("proposal revision repo init failed", zap.String("proposal_id", proposal.ID), zap.Error(err))
		}
	}
	s.indexProposal(proposal)
	s.publishProposal(ctx, "insert", proposal.ID)

	return proposalView(proposal), nil
}

// SubmitProposal moves the caller's draft into the submitted queue.
func (s *Service) SubmitProposal(ctx context.Context, session Session, proposalID string) (ProposalView, error) {
	proposal, err := s.ownProposal(ctx, session, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	if s.limits != nil && !s.limits.Allow(ctx, session.ProfileID, ratelimit.ActionSubmission) {
		return ProposalView{}, domainError(429, "RATE_LIMITED", "Atingiu o limite diário de submissões. Tente novamente amanhã.", nil)
	}
	return s.transition(ctx, proposal, store.ProposalSubmitted, store.ProposalDraft)
}

// UpdateProposal rewrites the content of a draft or a proposal sent back for
// changes, committing a new revision.
func (s *Service) UpdateProposal(ctx context.Context, session Session, proposalID string, input ProposalInput) (ProposalView, error) {
	proposal, err := s.ownProposal(ctx, session, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	if proposal.Status != store.ProposalDraft && proposal.Status != store.ProposalNeedsRevision {
		return ProposalView{}, domainError(422, "INVALID_TRANSITION", "A proposta já não pode ser editada", map[string]string{"status": proposal.Status})
	}
	if problems := s.validateProposalInput(ctx, input); problems != nil {
		return ProposalView{}, validationError(problems)
	}

	updated, err := s.store.UpdateProposalContent(ctx, proposalID, strings.TrimSpace(input.Title), input.Description, input.Category, input.BudgetCents)
	if err != nil {
		return ProposalView{}, err
	}
	if !updated {
		return ProposalView{}, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
	}

	proposal.Title = strings.TrimSpace(input.Title)
	proposal.Description = input.Description
	proposal.Category = input.Category
	proposal.BudgetCents = input.BudgetCents

	if s.revisions != nil {
		message := "Atualização do rascunho"
		if proposal.Status == store.ProposalNeedsRevision {
			message = "Revisão após pedido de alterações"
		}
		if _, err := s.revisions.CommitRevision(proposalID, revisionContent(proposal), session.DisplayName, message); err != nil {
			s.logger.Warn("revision commit failed", zap.String("proposal_id", proposalID), zap.Error(err))
		}
	}
	s.indexProposal(proposal)
	s.publishProposal(ctx, "update", proposalID)

	return proposalView(proposal), nil
}

// ResubmitProposal returns a needs_revision proposal to the review queue.
func (s *Service) ResubmitProposal(ctx context.Context, session Session, proposalID string) (ProposalView, error) {
	proposal, err := s.ownProposal(ctx, session, proposalID)
	if err != nil {
		return ProposalView{}, err
	}
	if s.limits != nil && !s.limits.Allow(ctx, session.ProfileID, ratelimit.ActionSubmission) {
		return ProposalView{}, domainError(429, "RATE_LIMITED", "Atingiu o limite diário de submissões. Tente novamente amanhã.", nil)
	}
	return s.transition(ctx, proposal, store.ProposalSubmitted, store.ProposalNeedsRevision)
}

// reviewDecisions maps a reviewer's verb to the status transition it stands
// for. TransitionProposal enforces the from-set atomically.
var reviewDecisions = map[string]struct {
	to   string
	from []string
}{
	"start_review":    {store.ProposalUnderReview, []string{store.ProposalSubmitted}},
	"approve":         {store.ProposalApproved, []string{store.ProposalUnderReview}},
	"reject":          {store.ProposalRejected, []string{store.ProposalUnderReview}},
	"request_changes": {store.ProposalNeedsRevision, []string{store.ProposalUnderReview}},
	"start_execution": {store.ProposalInExecution, []string{store.ProposalApproved}},
	"complete":        {store.ProposalCompleted, []string{store.ProposalInExecution}},
}

// ReviewProposal applies a reviewer decision to a proposal.
func (s *Service) ReviewProposal(ctx context.Context, session Session, proposalID, decision string) (ProposalView, error) {
	if !rbac.Can(session.Role, rbac.ActionReview) {
		return ProposalView{}, domainError(403, "FORBIDDEN", "Apenas gestores podem rever propostas", nil)
	}
	rule, ok := reviewDecisions[decision]
	if !ok {
		return ProposalView{}, validationError(map[string]string{"decision": "decisão desconhecida"})
	}

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if store.IsNotFound(err) {
			return ProposalView{}, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
		}
		return ProposalView{}, err
	}

	view, err := s.transition(ctx, proposal, rule.to, rule.from...)
	if err != nil {
		return ProposalView{}, err
	}

	if s.audit != nil {
		s.audit.Record(store.AuditEvent{
			Kind:      audit.KindAdminAction,
			ActorID:   session.ProfileID,
			ActorName: session.DisplayName,
			Decision:  decision,
			Metadata:  map[string]any{"proposal_id": proposalID, "status": rule.to},
		})
	}
	return view, nil
}

// transition applies a status change, re-reads the row and fans out the
// update. A refused change answers 422 with the from/to pair.
func (s *Service) transition(ctx context.Context, proposal store.Proposal, to string, from ...string) (ProposalView, error) {
	moved, err := s.store.TransitionProposal(ctx, proposal.ID, to, from...)
	if err != nil {
		return ProposalView{}, err
	}
	if !moved {
		return ProposalView{}, domainError(422, "INVALID_TRANSITION", "Transição de estado inválida",
			map[string]string{"from": proposal.Status, "to": to})
	}

	fresh, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		fresh = proposal
		fresh.Status = to
	}
	s.indexProposal(fresh)
	s.publishProposal(ctx, "update", proposal.ID)
	return proposalView(fresh), nil
}

// VoteInput is the voting form body.
type VoteInput struct {
	Comment string `json:"comment"`
}

// VoteProposal records one vote per profile per proposal.
func (s *Service) VoteProposal(ctx context.Context, session Session, proposalID string, input VoteInput) (ProposalView, error) {
	if !rbac.Can(session.Role, rbac.ActionVote) {
		return ProposalView{}, domainError(403, "FORBIDDEN", "Apenas cidadãos e entidades podem votar", nil)
	}

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if store.IsNotFound(err) {
			return ProposalView{}, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
		}
		return ProposalView{}, err
	}
	if proposal.Status != store.ProposalSubmitted && proposal.Status != store.ProposalUnderReview {
		return ProposalView{}, domainError(422, "VALIDATION_ERROR", "A proposta não está em fase de votação",
			map[string]string{"status": proposal.Status})
	}

	if s.limits != nil && !s.limits.Allow(ctx, session.ProfileID, ratelimit.ActionVote) {
		return ProposalView{}, domainError(429, "RATE_LIMITED", "Atingiu o limite diário de votos. Tente novamente amanhã.", nil)
	}

	inserted, err := s.store.InsertVote(ctx, store.Vote{
		ID:         util.NewID("vot"),
		ProposalID: proposalID,
		ProfileID:  session.ProfileID,
		Comment:    strings.TrimSpace(input.Comment),
	})
	if err != nil {
		return ProposalView{}, err
	}
	if !inserted {
		return ProposalView{}, domainError(409, "ALREADY_VOTED", "Já votou nesta proposta", nil)
	}

	s.publishProposal(ctx, "update", proposalID)

	fresh, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		fresh = proposal
	}
	view := proposalView(fresh)
	view.HasVoted = true
	return view, nil
}

// ListProposals serves the dashboards. Non-reviewers never see other
// people's drafts.
func (s *Service) ListProposals(ctx context.Context, session Session, filters store.ProposalFilters) ([]ProposalView, error) {
	reviewer := rbac.Can(session.Role, rbac.ActionReview)
	if filters.Status == store.ProposalDraft && !reviewer {
		return s.MyProposals(ctx, session)
	}

	proposals, err := s.store.ListProposals(ctx, filters)
	if err != nil {
		return nil, err
	}

	voted, err := s.votedSet(ctx, session.ProfileID)
	if err != nil {
		return nil, err
	}

	views := make([]ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		if proposal.Status == store.ProposalDraft && !reviewer && proposal.CreatedBy != session.ProfileID {
			continue
		}
		view := proposalView(proposal)
		view.HasVoted = voted[proposal.ID]
		views = append(views, view)
	}
	return views, nil
}

// MyProposals lists everything the caller created, drafts included.
func (s *Service) MyProposals(ctx context.Context, session Session) ([]ProposalView, error) {
	proposals, err := s.store.ListProposalsByCreator(ctx, session.ProfileID)
	if err != nil {
		return nil, err
	}
	views := make([]ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		views = append(views, proposalView(proposal))
	}
	return views, nil
}

// GetProposal returns one proposal with the caller's vote state and, when it
// exists, the public execution progress.
func (s *Service) GetProposal(ctx context.Context, session Session, proposalID string) (ProposalView, *store.ExecutionStatus, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if store.IsNotFound(err) {
			return ProposalView{}, nil, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
		}
		return ProposalView{}, nil, err
	}
	if proposal.Status == store.ProposalDraft && !rbac.Can(session.Role, rbac.ActionReview) && proposal.CreatedBy != session.ProfileID {
		return ProposalView{}, nil, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
	}

	view := proposalView(proposal)
	if session.ProfileID != "" {
		if hasVoted, err := s.store.HasVoted(ctx, proposalID, session.ProfileID); err == nil {
			view.HasVoted = hasVoted
		}
	}

	var status *store.ExecutionStatus
	if proposal.Status == store.ProposalInExecution || proposal.Status == store.ProposalCompleted {
		if row, err := s.store.GetExecutionStatus(ctx, proposalID); err == nil {
			row.InternalComments = ""
			status = &row
		}
	}
	return view, status, nil
}

// RevisionEntry pairs a revision with its metadata for the review timeline.
type RevisionEntry struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProposalRevisions lists the content history for reviewers and the creator.
func (s *Service) ProposalRevisions(ctx context.Context, session Session, proposalID string, limit int) ([]RevisionEntry, error) {
	if err := s.canSeeRevisions(ctx, session, proposalID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []RevisionEntry{}, nil
	}
	history, err := s.revisions.History(proposalID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]RevisionEntry, 0, len(history))
	for _, info := range history {
		entries = append(entries, RevisionEntry{
			Hash:      info.Hash,
			Message:   info.Message,
			Author:    info.Author,
			CreatedAt: info.CreatedAt,
		})
	}
	return entries, nil
}

// ProposalRevisionContent returns the proposal content as of one revision.
func (s *Service) ProposalRevisionContent(ctx context.Context, session Session, proposalID, hash string) (revisions.Content, error) {
	if err := s.canSeeRevisions(ctx, session, proposalID); err != nil {
		return revisions.Content{}, err
	}
	if s.revisions == nil {
		return revisions.Content{}, domainError(404, "NOT_FOUND", "Revisão não encontrada", nil)
	}
	content, err := s.revisions.ContentAt(proposalID, hash)
	if err != nil {
		return revisions.Content{}, domainError(404, "NOT_FOUND", "Revisão não encontrada", nil)
	}
	return content, nil
}

func (s *Service) canSeeRevisions(ctx context.Context, session Session, proposalID string) error {
	if rbac.Can(session.Role, rbac.ActionReview) {
		return nil
	}
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if store.IsNotFound(err) {
			return domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
		}
		return err
	}
	if proposal.CreatedBy != session.ProfileID {
		return domainError(403, "FORBIDDEN", "Sem acesso ao histórico desta proposta", nil)
	}
	return nil
}

// FilterOptions lists the distinct localities and categories for filter
// dropdowns.
func (s *Service) FilterOptions(ctx context.Context) (map[string][]string, error) {
	localities, err := s.store.DistinctLocalities(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.DistinctCategories(ctx)
	if err != nil {
		return nil, err
	}
	return map[string][]string{
		"localities": localities,
		"categories": categories,
	}, nil
}

// Summary returns the dashboard headline counts.
func (s *Service) Summary(ctx context.Context) (map[string]int, error) {
	total, inReview, inExecution, completed, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"total":       total,
		"inReview":    inReview,
		"inExecution": inExecution,
		"completed":   completed,
	}, nil
}

// SearchProposals runs the full-text search, draft-aware per role.
func (s *Service) SearchProposals(ctx context.Context, session Session, q search.Query) search.Response {
	q.IncludeDrafts = rbac.Can(session.Role, rbac.ActionReview)
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ownProposal(ctx context.Context, session Session, proposalID string) (store.Proposal, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Proposal{}, domainError(404, "NOT_FOUND", "Proposta não encontrada", nil)
		}
		return store.Proposal{}, err
	}
	if proposal.CreatedBy != session.ProfileID {
		return store.Proposal{}, domainError(403, "FORBIDDEN", "A proposta pertence a outro proponente", nil)
	}
	return proposal, nil
}

func (s *Service) votedSet(ctx context.Context, profileID string) (map[string]bool, error) {
	if profileID == "" {
		return map[string]bool{}, nil
	}
	ids, err := s.store.VotedProposalIDs(ctx, profileID)
	if err != nil {
		return nil, err
	}
	voted := make(map[string]bool, len(ids))
	for _, id := range ids {
		voted[id] = true
	}
	return voted, nil
}

func (s *Service) publishProposal(ctx context.Context, kind, proposalID string) {
	if s.hub != nil {
		s.hub.Publish(ctx, realtime.TopicProposals, kind, proposalID)
	}
}

func (s *Service) indexProposal(proposal store.Proposal) {
	if s.search == nil {
		return
	}
	s.search.IndexProposal(search.ProposalRecord{
		ID:          proposal.ID,
		Title:       proposal.Title,
		Description: proposal.Description,
		Category:    proposal.Category,
		Locality:    proposal.Locality,
		Status:      proposal.Status,
	})
}

func revisionContent(proposal store.Proposal) revisions.Content {
	return revisions.Content{
		Title:       proposal.Title,
		Description: proposal.Description,
		Category:    proposal.Category,
		BudgetCents: proposal.BudgetCents,
		Locality:    proposal.Locality,
	}
}
