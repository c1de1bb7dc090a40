package store

import (
	"strings"
	"testing"
)

func TestListProposalsQueryBindsSearchTerm(t *testing.T) {
	if !strings.Contains(listProposalsQuery, "$6") {
		t.Fatal("expected the search term to be bound as the sixth argument")
	}
	if !strings.Contains(listProposalsQuery, "ILIKE") {
		t.Fatal("expected a case-insensitive match on title and description")
	}
}

func TestDistinctQueryScopedToTrackingStatuses(t *testing.T) {
	query := distinctQuery("locality")
	if !strings.Contains(query, "status IN") {
		t.Fatal("expected dropdown values to be scoped by status")
	}
	for _, status := range trackingStatuses {
		if !strings.Contains(query, "'"+status+"'") {
			t.Errorf("status %q missing from scope", status)
		}
	}
	for _, status := range []string{ProposalDraft, ProposalSubmitted, ProposalApproved} {
		if strings.Contains(query, "'"+status+"'") {
			t.Errorf("status %q must not feed the dropdowns", status)
		}
	}
}
