package tracking

import (
	"context"
	"errors"
	"testing"

	"participa/api/internal/store"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestSnapshotOfMissingRow(t *testing.T) {
	snapshot := SnapshotOf(nil, "prp_1")
	if snapshot.ProposalID != "prp_1" {
		t.Fatalf("unexpected proposal id: %s", snapshot.ProposalID)
	}
	if snapshot.State != store.ExecutionInProgress {
		t.Fatalf("missing row must snapshot to in_progress, got %s", snapshot.State)
	}
	if snapshot.PercentPhysical != 0 || snapshot.PercentFinancial != 0 {
		t.Fatal("missing row must snapshot to zero progress")
	}
}

func TestDraftDirtyAgainst(t *testing.T) {
	snapshot := Snapshot{
		ProposalID:       "prp_1",
		PercentPhysical:  40,
		PercentFinancial: 30,
		State:            store.ExecutionInProgress,
	}
	draft := DraftFrom(snapshot)
	if draft.DirtyAgainst(snapshot) {
		t.Fatal("untouched draft must be clean")
	}

	draft.PercentPhysical = 45
	if !draft.DirtyAgainst(snapshot) {
		t.Fatal("changed percent must mark the draft dirty")
	}

	draft.PercentPhysical = 40
	if draft.DirtyAgainst(snapshot) {
		t.Fatal("reverted draft must be clean again")
	}
}

func TestBuildPatchSparse(t *testing.T) {
	patch, problems := BuildPatch(BatchInput{PercentPhysical: floatPtr(75)})
	if problems != nil {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if patch.PercentPhysical == nil || *patch.PercentPhysical != 75 {
		t.Fatalf("physical percent not carried: %+v", patch)
	}
	if patch.PercentFinancial != nil || patch.State != nil || patch.InternalComments != nil {
		t.Fatalf("untouched fields must stay nil: %+v", patch)
	}
}

func TestBuildPatchRejectsOutOfRangePercent(t *testing.T) {
	cases := []BatchInput{
		{PercentPhysical: floatPtr(-1)},
		{PercentPhysical: floatPtr(100.5)},
		{PercentFinancial: floatPtr(200)},
	}
	for _, input := range cases {
		if _, problems := BuildPatch(input); len(problems) == 0 {
			t.Fatalf("expected validation problems for %+v", input)
		}
	}
}

func TestBuildPatchRejectsUnknownState(t *testing.T) {
	_, problems := BuildPatch(BatchInput{State: "paused"})
	if problems["state"] == "" {
		t.Fatal("expected a state validation problem")
	}
}

func TestBuildPatchAllowsEmptyCommentOverwrite(t *testing.T) {
	patch, problems := BuildPatch(BatchInput{InternalComments: strPtr("")})
	if problems != nil {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if patch.InternalComments == nil || *patch.InternalComments != "" {
		t.Fatal("explicit empty comment must clear the stored comment")
	}
}

type fakePatchStore struct {
	rows   map[string]store.ExecutionStatus
	failOn map[string]bool
	calls  int
}

func newFakePatchStore() *fakePatchStore {
	return &fakePatchStore{
		rows:   make(map[string]store.ExecutionStatus),
		failOn: make(map[string]bool),
	}
}

func (f *fakePatchStore) ApplyExecutionPatch(_ context.Context, proposalID string, patch store.ExecutionPatch, updatedBy string) (store.ExecutionStatus, error) {
	f.calls++
	if f.failOn[proposalID] {
		return store.ExecutionStatus{}, errors.New("boom")
	}
	current, ok := f.rows[proposalID]
	if !ok {
		current = store.ExecutionStatus{ProposalID: proposalID, State: store.ExecutionInProgress}
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
	f.rows[proposalID] = current
	return current, nil
}

func TestApplyBatchPerRowOutcomes(t *testing.T) {
	db := newFakePatchStore()
	db.rows["prp_2"] = store.ExecutionStatus{
		ProposalID:       "prp_2",
		PercentFinancial: 60,
		State:            store.ExecutionDelayed,
		InternalComments: "fornecedor atrasado",
	}
	db.failOn["prp_3"] = true

	patch, problems := BuildPatch(BatchInput{PercentPhysical: floatPtr(50)})
	if problems != nil {
		t.Fatalf("unexpected problems: %v", problems)
	}

	results := ApplyBatch(context.Background(), db, []string{"prp_1", "prp_2", "prp_3"}, patch, "prf_gestor")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Err != "" || results[0].Status.PercentPhysical != 50 {
		t.Fatalf("prp_1 outcome: %+v", results[0])
	}
	// Untouched fields of an existing row survive a sparse patch.
	if got := db.rows["prp_2"]; got.PercentFinancial != 60 || got.State != store.ExecutionDelayed || got.InternalComments != "fornecedor atrasado" {
		t.Fatalf("sparse patch clobbered prp_2: %+v", got)
	}
	if results[2].ID != "prp_3" || results[2].Err == "" {
		t.Fatalf("prp_3 failure must be surfaced per row: %+v", results[2])
	}
}

func TestApplyBatchIdempotentPerField(t *testing.T) {
	db := newFakePatchStore()
	patch, _ := BuildPatch(BatchInput{PercentPhysical: floatPtr(80), State: store.ExecutionDelayed})

	ApplyBatch(context.Background(), db, []string{"prp_1"}, patch, "prf_gestor")
	first := db.rows["prp_1"]

	ApplyBatch(context.Background(), db, []string{"prp_1"}, patch, "prf_gestor")
	second := db.rows["prp_1"]

	if first != second {
		t.Fatalf("re-applying the same patch must change nothing: %+v vs %+v", first, second)
	}
}

func TestApplyBatchEmptyPatch(t *testing.T) {
	db := newFakePatchStore()
	results := ApplyBatch(context.Background(), db, []string{"prp_1"}, store.ExecutionPatch{}, "prf_gestor")
	if results[0].Err == "" {
		t.Fatal("empty patch must be reported per row, not applied")
	}
	if db.calls != 0 {
		t.Fatal("empty patch must not reach storage")
	}
}
