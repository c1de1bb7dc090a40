// Package guard evaluates route access for the SPA: who may enter a route,
// where to send those who may not, and which visits get audited.
package guard

import (
	"context"

	"participa/api/internal/audit"
	"participa/api/internal/ratelimit"
	"participa/api/internal/rbac"
	"participa/api/internal/store"
)

// Policy is one row of the route access table.
type Policy struct {
	Route        string
	RequireAuth  bool
	AllowedRoles []rbac.Role
	RateLimit    string
	LogActivity  bool
	Fallback     string
}

// Policies is the canonical route table. Routes not listed here do not exist.
var Policies = []Policy{
	{Route: rbac.RouteLogin},
	// Anonymous visitors carry no profile id, so the guard never counts this
	// route; the registration endpoint throttles by client address instead.
	{Route: rbac.RouteRegistration, RateLimit: ratelimit.ActionRegistration},
	{Route: rbac.RouteAdminConfig, RequireAuth: true, AllowedRoles: []rbac.Role{rbac.RoleAdmin}, LogActivity: true},
	{Route: rbac.RouteManagerAnalysis, RequireAuth: true, AllowedRoles: []rbac.Role{rbac.RoleGestor, rbac.RoleAdmin}, LogActivity: true},
	{Route: rbac.RouteManagerTracking, RequireAuth: true, AllowedRoles: []rbac.Role{rbac.RoleGestor, rbac.RoleAdmin}, LogActivity: true},
	{Route: rbac.RouteCitizenHome, RequireAuth: true},
	{Route: rbac.RouteSubmission, RequireAuth: true, AllowedRoles: []rbac.Role{rbac.RoleCitizen, rbac.RoleEntity}, RateLimit: ratelimit.ActionSubmission, LogActivity: true},
	{Route: rbac.RouteVoting, RequireAuth: true, AllowedRoles: []rbac.Role{rbac.RoleCitizen, rbac.RoleEntity}, RateLimit: ratelimit.ActionVote},
	{Route: rbac.RouteCitizenTracking, RequireAuth: true},
	{Route: rbac.RouteRoot, RequireAuth: true},
}

// Actor is the session state of whoever is asking.
type Actor struct {
	Authenticated bool
	Expired       bool
	// Unresolved marks a session whose state could not be determined yet
	// (for example a transient store failure during lookup). The guard
	// answers "loading" so the client renders a placeholder instead of
	// bouncing the visitor to the login page.
	Unresolved bool
	ProfileID  string
	Name       string
	Role       rbac.Role
}

// Decision outcomes.
const (
	OutcomeGrant    = "grant"
	OutcomeRedirect = "redirect"
	OutcomeDeny     = "deny"
	OutcomeNotFound = "not_found"
	OutcomeLoading  = "loading"
)

// Decision is the guard's answer for one route visit.
type Decision struct {
	Route      string `json:"route"`
	Outcome    string `json:"outcome"`
	RedirectTo string `json:"redirectTo,omitempty"`
	// From carries the originally requested path on login redirects so the
	// SPA can return there after authentication.
	From    string `json:"from,omitempty"`
	Message string `json:"message,omitempty"`
}

type limiter interface {
	Remaining(ctx context.Context, actorID, action string) (int, error)
}

type recorder interface {
	Record(event store.AuditEvent)
}

// Guard evaluates the policy table.
type Guard struct {
	policies map[string]Policy
	limits   limiter
	audit    recorder
}

func New(limits limiter, auditor recorder) *Guard {
	byRoute := make(map[string]Policy, len(Policies))
	for _, policy := range Policies {
		byRoute[policy.Route] = policy
	}
	return &Guard{policies: byRoute, limits: limits, audit: auditor}
}

// Evaluate decides whether the actor may enter the route. Authorization
// denials are normal outcomes, never errors.
func (g *Guard) Evaluate(ctx context.Context, route string, actor Actor) Decision {
	policy, ok := g.policies[route]
	if !ok {
		return Decision{Route: route, Outcome: OutcomeNotFound}
	}

	if actor.Unresolved {
		return Decision{Route: route, Outcome: OutcomeLoading}
	}

	decision := g.evaluate(ctx, policy, actor)
	if policy.LogActivity {
		g.audit.Record(store.AuditEvent{
			Kind:      audit.KindRouteAccess,
			ActorID:   actor.ProfileID,
			ActorName: actor.Name,
			Path:      route,
			Decision:  decision.Outcome,
			Metadata: map[string]any{
				"role":       string(actor.Role),
				"redirectTo": decision.RedirectTo,
			},
		})
	}
	return decision
}

func (g *Guard) evaluate(ctx context.Context, policy Policy, actor Actor) Decision {
	if policy.RequireAuth && !actor.Authenticated {
		decision := Decision{
			Route:      policy.Route,
			Outcome:    OutcomeRedirect,
			RedirectTo: rbac.RouteLogin,
			From:       policy.Route,
		}
		if actor.Expired {
			decision.Message = "A sessão expirou. Inicie sessão novamente."
		}
		return decision
	}

	// Authenticated visitors have no business on the entry routes.
	if !policy.RequireAuth && actor.Authenticated &&
		(policy.Route == rbac.RouteLogin || policy.Route == rbac.RouteRegistration) {
		return Decision{
			Route:      policy.Route,
			Outcome:    OutcomeRedirect,
			RedirectTo: rbac.DefaultRoute(actor.Role),
		}
	}

	if len(policy.AllowedRoles) > 0 && !roleAllowed(policy.AllowedRoles, actor.Role) {
		target := policy.Fallback
		if target == "" {
			target = rbac.DefaultRoute(actor.Role)
		}
		return Decision{
			Route:      policy.Route,
			Outcome:    OutcomeRedirect,
			RedirectTo: target,
			Message:    "Não tem permissões para aceder a esta página.",
		}
	}

	if policy.Route == rbac.RouteRoot && actor.Authenticated {
		return Decision{
			Route:      policy.Route,
			Outcome:    OutcomeRedirect,
			RedirectTo: rbac.DefaultRoute(actor.Role),
		}
	}

	if policy.RateLimit != "" && actor.ProfileID != "" && g.limits != nil {
		remaining, err := g.limits.Remaining(ctx, actor.ProfileID, policy.RateLimit)
		// A broken counter never blocks access.
		if err == nil && remaining == 0 {
			return Decision{
				Route:   policy.Route,
				Outcome: OutcomeDeny,
				Message: "Atingiu o limite diário para esta ação. Tente novamente amanhã.",
			}
		}
	}

	return Decision{Route: policy.Route, Outcome: OutcomeGrant}
}

func roleAllowed(allowed []rbac.Role, role rbac.Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}
