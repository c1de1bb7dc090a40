package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "citizen read", role: RoleCitizen, action: ActionRead, allow: true},
		{name: "citizen submit", role: RoleCitizen, action: ActionSubmit, allow: true},
		{name: "citizen review", role: RoleCitizen, action: ActionReview, allow: false},
		{name: "entity vote", role: RoleEntity, action: ActionVote, allow: true},
		{name: "entity admin", role: RoleEntity, action: ActionAdmin, allow: false},
		{name: "gestor review", role: RoleGestor, action: ActionReview, allow: true},
		{name: "gestor track", role: RoleGestor, action: ActionTrack, allow: true},
		{name: "gestor submit", role: RoleGestor, action: ActionSubmit, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("mystery"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeDefaultsToLeastPrivilege(t *testing.T) {
	if got := Normalize("superuser"); got != RoleCitizen {
		t.Fatalf("Normalize(superuser) = %q, want citizen", got)
	}
	if got := Normalize("gestor"); got != RoleGestor {
		t.Fatalf("Normalize(gestor) = %q, want gestor", got)
	}
}

func TestDefaultRoute(t *testing.T) {
	cases := []struct {
		role Role
		want string
	}{
		{RoleAdmin, RouteAdminConfig},
		{RoleGestor, RouteManagerAnalysis},
		{RoleCitizen, RouteCitizenHome},
		{RoleEntity, RouteCitizenHome},
		{Role("mystery"), RouteCitizenHome},
	}
	for _, tc := range cases {
		if got := DefaultRoute(tc.role); got != tc.want {
			t.Fatalf("DefaultRoute(%q) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func TestNavigationForUnauthenticatedIsEmpty(t *testing.T) {
	if items := NavigationFor(RoleAdmin, false); len(items) != 0 {
		t.Fatalf("expected empty navigation, got %d items", len(items))
	}
}

func TestNavigationFiltersByRole(t *testing.T) {
	citizen := NavigationFor(RoleCitizen, true)
	for _, item := range citizen {
		if item.Path == RouteAdminConfig || item.Path == RouteManagerAnalysis {
			t.Fatalf("citizen navigation must not contain %s", item.Path)
		}
	}
	if len(citizen) == 0 {
		t.Fatal("expected citizen navigation entries")
	}

	admin := NavigationFor(RoleAdmin, true)
	var hasConfig bool
	for _, item := range admin {
		if item.Path == RouteAdminConfig {
			hasConfig = true
		}
	}
	if !hasConfig {
		t.Fatal("admin navigation must contain the configuration entry")
	}
}
