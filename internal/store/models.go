package store

import "time"

type Profile struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	Locality              string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Proposal statuses follow the platform lifecycle: draft → submitted →
// under_review → approved | rejected | needs_revision; approved proposals
// move to in_execution and finally completed.
const (
	ProposalDraft         = "draft"
	ProposalSubmitted     = "submitted"
	ProposalUnderReview   = "under_review"
	ProposalApproved      = "approved"
	ProposalRejected      = "rejected"
	ProposalNeedsRevision = "needs_revision"
	ProposalInExecution   = "in_execution"
	ProposalCompleted     = "completed"
)

type Proposal struct {
	ID          string
	Title       string
	Description string
	Category    string
	BudgetCents int64
	Locality    string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
	ApprovedAt  *time.Time
	VoteCount   int
}

const (
	ExecutionInProgress = "in_progress"
	ExecutionDelayed    = "delayed"
	ExecutionCompleted  = "completed"
)

type ExecutionStatus struct {
	ProposalID       string
	PercentPhysical  float64
	PercentFinancial float64
	State            string
	InternalComments string
	UpdatedBy        string
	UpdatedAt        time.Time
}

// ExecutionRow is a proposal joined with its (at most one) execution status
// row, as served to the tracking dashboards.
type ExecutionRow struct {
	Proposal Proposal
	Status   *ExecutionStatus
	// CreatorName is populated only for the manager view.
	CreatorName string
}

// ExecutionPatch carries only the fields an operator chose to change. Nil
// fields leave the stored value untouched.
type ExecutionPatch struct {
	PercentPhysical  *float64
	PercentFinancial *float64
	State            *string
	InternalComments *string
}

// IsEmpty reports whether the patch would change nothing.
func (p ExecutionPatch) IsEmpty() bool {
	return p.PercentPhysical == nil && p.PercentFinancial == nil && p.State == nil && p.InternalComments == nil
}

// ExecutionFilters narrows the tracking listings. Zero values mean "no
// filter"; filter state is per-request and never persisted.
type ExecutionFilters struct {
	Locality string
	State    string
	Category string
}

// ProposalFilters narrows proposal listings for dashboards and voting.
type ProposalFilters struct {
	Status   string
	Category string
	Locality string
	// MinBudgetCents/MaxBudgetCents implement the budget-bucket filter.
	MinBudgetCents int64
	MaxBudgetCents int64
	Search         string
	Sort           string
}

type Vote struct {
	ID         string
	ProposalID string
	ProfileID  string
	Comment    string
	CreatedAt  time.Time
}

type AuditEvent struct {
	ID        int64
	Kind      string
	ActorID   string
	ActorName string
	Path      string
	Decision  string
	Metadata  map[string]any
	CreatedAt time.Time
}

type PlatformSetting struct {
	Key       string
	Value     string
	UpdatedBy string
	UpdatedAt time.Time
}

// RevisionInfo describes one committed revision of a proposal's content.
type RevisionInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
