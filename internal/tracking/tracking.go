// Package tracking implements the execution-tracking edit model used by the
// manager dashboard: a snapshot of the saved row, a draft edit buffer, and
// sparse patches that can be applied to many proposals at once.
package tracking

import (
	"context"
	"fmt"

	"participa/api/internal/store"
)

// Snapshot is the last-saved execution status as the operator loaded it.
type Snapshot struct {
	ProposalID       string
	PercentPhysical  float64
	PercentFinancial float64
	State            string
	InternalComments string
}

// SnapshotOf builds a Snapshot from a stored row. A proposal without a status
// row yet snapshots to zero progress in the in_progress state.
func SnapshotOf(status *store.ExecutionStatus, proposalID string) Snapshot {
	if status == nil {
		return Snapshot{ProposalID: proposalID, State: store.ExecutionInProgress}
	}
	return Snapshot{
		ProposalID:       status.ProposalID,
		PercentPhysical:  status.PercentPhysical,
		PercentFinancial: status.PercentFinancial,
		State:            status.State,
		InternalComments: status.InternalComments,
	}
}

// Draft is the operator's edit buffer for one proposal.
type Draft struct {
	PercentPhysical  float64
	PercentFinancial float64
	State            string
	InternalComments string
}

// DraftFrom seeds a draft from a snapshot so an untouched form is clean.
func DraftFrom(snapshot Snapshot) Draft {
	return Draft{
		PercentPhysical:  snapshot.PercentPhysical,
		PercentFinancial: snapshot.PercentFinancial,
		State:            snapshot.State,
		InternalComments: snapshot.InternalComments,
	}
}

// DirtyAgainst reports whether the draft differs from the snapshot in any
// field.
func (d Draft) DirtyAgainst(snapshot Snapshot) bool {
	return d.PercentPhysical != snapshot.PercentPhysical ||
		d.PercentFinancial != snapshot.PercentFinancial ||
		d.State != snapshot.State ||
		d.InternalComments != snapshot.InternalComments
}

// Patch carries a value for every field, a full-row save.
func (d Draft) Patch() store.ExecutionPatch {
	physical := d.PercentPhysical
	financial := d.PercentFinancial
	state := d.State
	comments := d.InternalComments
	return store.ExecutionPatch{
		PercentPhysical:  &physical,
		PercentFinancial: &financial,
		State:            &state,
		InternalComments: &comments,
	}
}

// BatchInput is the raw form content of a bulk update. Empty strings mean the
// operator left the field alone.
type BatchInput struct {
	PercentPhysical  *float64 `json:"percentPhysical"`
	PercentFinancial *float64 `json:"percentFinancial"`
	State            string   `json:"state"`
	InternalComments *string  `json:"internalComments"`
}

var validStates = map[string]bool{
	store.ExecutionInProgress: true,
	store.ExecutionDelayed:    true,
	store.ExecutionCompleted:  true,
}

// BuildPatch turns the filled-in fields of a batch form into a sparse patch.
// Percent values outside [0,100] and unknown states are rejected with a
// field→message map.
func BuildPatch(input BatchInput) (store.ExecutionPatch, map[string]string) {
	problems := make(map[string]string)
	var patch store.ExecutionPatch

	if input.PercentPhysical != nil {
		if *input.PercentPhysical < 0 || *input.PercentPhysical > 100 {
			problems["percentPhysical"] = "must be between 0 and 100"
		} else {
			patch.PercentPhysical = input.PercentPhysical
		}
	}
	if input.PercentFinancial != nil {
		if *input.PercentFinancial < 0 || *input.PercentFinancial > 100 {
			problems["percentFinancial"] = "must be between 0 and 100"
		} else {
			patch.PercentFinancial = input.PercentFinancial
		}
	}
	if input.State != "" {
		if !validStates[input.State] {
			problems["state"] = "unknown execution state"
		} else {
			state := input.State
			patch.State = &state
		}
	}
	if input.InternalComments != nil {
		patch.InternalComments = input.InternalComments
	}

	if len(problems) > 0 {
		return store.ExecutionPatch{}, problems
	}
	return patch, nil
}

// BatchResult is the outcome of applying one patch to one proposal.
type BatchResult struct {
	ID     string `json:"id"`
	Err    string `json:"error,omitempty"`
	Status *store.ExecutionStatus
}

type patchStore interface {
	ApplyExecutionPatch(ctx context.Context, proposalID string, patch store.ExecutionPatch, updatedBy string) (store.ExecutionStatus, error)
}

// ApplyBatch applies the same sparse patch to each selected proposal
// independently. One failing row never rolls back or stops the others; every
// row gets its own result.
func ApplyBatch(ctx context.Context, db patchStore, ids []string, patch store.ExecutionPatch, updatedBy string) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		if patch.IsEmpty() {
			results = append(results, BatchResult{ID: id, Err: "no fields to update"})
			continue
		}
		status, err := db.ApplyExecutionPatch(ctx, id, patch, updatedBy)
		if err != nil {
			results = append(results, BatchResult{ID: id, Err: fmt.Sprintf("update failed: %v", err)})
			continue
		}
		results = append(results, BatchResult{ID: id, Status: &status})
	}
	return results
}
