package revisions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestProposalRevisionLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{
		Title:       "Requalificação do parque infantil",
		Description: "Substituir o equipamento degradado do parque da Quinta das Flores.",
		Category:    "espaco_publico",
		BudgetCents: 2500000,
		Locality:    "Benfica",
	}

	if err := svc.EnsureProposalRepo("prp_1", initial, "Ana Costa"); err != nil {
		t.Fatalf("EnsureProposalRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prp_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Resubmission after a needs_revision decision.
	updated := initial
	updated.Description = "Substituir o equipamento e adicionar piso amortecedor."
	updated.BudgetCents = 3000000
	revision, err := svc.CommitRevision("prp_1", updated, "Ana Costa", "Resubmissão após pedido de revisão")
	if err != nil {
		t.Fatalf("CommitRevision() error = %v", err)
	}
	if revision.Hash == "" {
		t.Fatal("expected revision hash")
	}

	history, err := svc.History("prp_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Author != "Ana Costa" {
		t.Fatalf("unexpected author: %s", history[0].Author)
	}

	head, headInfo, err := svc.HeadContent("prp_1")
	if err != nil {
		t.Fatalf("HeadContent() error = %v", err)
	}
	if head.BudgetCents != 3000000 {
		t.Fatalf("head content stale: %+v", head)
	}
	if headInfo.Hash != revision.Hash {
		t.Fatalf("head hash mismatch: %s vs %s", headInfo.Hash, revision.Hash)
	}

	// The original submission is still reachable at its revision.
	first, err := svc.ContentAt("prp_1", history[1].Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if first.BudgetCents != 2500000 {
		t.Fatalf("unexpected first revision: %+v", first)
	}
}

func TestEnsureProposalRepoIsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{Title: "Proposta", Locality: "Alvalade"}
	if err := svc.EnsureProposalRepo("prp_1", initial, "Ana"); err != nil {
		t.Fatalf("first EnsureProposalRepo() error = %v", err)
	}
	if err := svc.EnsureProposalRepo("prp_1", initial, "Ana"); err != nil {
		t.Fatalf("second EnsureProposalRepo() error = %v", err)
	}

	history, err := svc.History("prp_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("re-ensuring must not add revisions, got %d", len(history))
	}
}

func TestHasChanges(t *testing.T) {
	a := Content{Title: "Proposta", BudgetCents: 100}
	b := a
	if HasChanges(a, b) {
		t.Fatal("identical content must report no changes")
	}
	b.BudgetCents = 200
	if !HasChanges(a, b) {
		t.Fatal("changed budget must report changes")
	}
}

func TestConcurrentCommitsSerialized(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProposalRepo("prp_1", Content{Title: "Proposta"}, "Ana"); err != nil {
		t.Fatalf("EnsureProposalRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			content := Content{Title: "Proposta", BudgetCents: int64(n)}
			if _, err := svc.CommitRevision("prp_1", content, "Ana", "edit"); err != nil {
				t.Errorf("CommitRevision() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History("prp_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("expected committed revisions, got %d", len(history))
	}
}
