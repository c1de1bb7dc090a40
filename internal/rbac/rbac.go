// Package rbac holds the canonical role model: which role may perform which
// action, which navigation entries a role sees, and which route a role lands
// on by default. Every consumer (guard, login flow, navigation endpoint) goes
// through this package so the mappings cannot drift apart.
package rbac

type Role string
type Action string

const (
	RoleCitizen Role = "citizen"
	RoleEntity  Role = "entity"
	RoleGestor  Role = "gestor"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionSubmit Action = "submit"
	ActionVote   Action = "vote"
	ActionReview Action = "review"
	ActionTrack  Action = "track"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleGestor:
		return action == ActionRead || action == ActionReview || action == ActionTrack
	case RoleCitizen, RoleEntity:
		return action == ActionRead || action == ActionSubmit || action == ActionVote
	default:
		return false
	}
}

// Normalize maps unknown role values to least privilege.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleCitizen, RoleEntity, RoleGestor, RoleAdmin:
		return Role(role)
	default:
		return RoleCitizen
	}
}

const (
	RouteLogin           = "/login"
	RouteRegistration    = "/user-registration"
	RouteAdminConfig     = "/admin-configuration"
	RouteManagerAnalysis = "/manager-analysis"
	RouteManagerTracking = "/manager-tracking-dashboard"
	RouteCitizenHome     = "/citizen-dashboard"
	RouteSubmission      = "/proposal-submission"
	RouteVoting          = "/proposal-voting"
	RouteCitizenTracking = "/proposal-tracking-citizen-view"
	RouteRoot            = "/"
)

// DefaultRoute is the single source of truth for the role → landing-route
// mapping. Admins land on platform configuration, gestores on the analysis
// home, everyone else on the citizen dashboard.
func DefaultRoute(role Role) string {
	switch role {
	case RoleAdmin:
		return RouteAdminConfig
	case RoleGestor:
		return RouteManagerAnalysis
	default:
		return RouteCitizenHome
	}
}

type NavItem struct {
	Label       string `json:"label"`
	Path        string `json:"path"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

type navEntry struct {
	item  NavItem
	roles []Role
}

var navTable = []navEntry{
	{
		item:  NavItem{Label: "Painel do cidadão", Path: RouteCitizenHome, Icon: "home", Description: "Resumo das propostas e votações abertas"},
		roles: []Role{RoleCitizen, RoleEntity, RoleGestor, RoleAdmin},
	},
	{
		item:  NavItem{Label: "Submeter proposta", Path: RouteSubmission, Icon: "plus-circle", Description: "Apresentar uma nova proposta de orçamento"},
		roles: []Role{RoleCitizen, RoleEntity},
	},
	{
		item:  NavItem{Label: "Votação", Path: RouteVoting, Icon: "check-square", Description: "Votar nas propostas em avaliação"},
		roles: []Role{RoleCitizen, RoleEntity},
	},
	{
		item:  NavItem{Label: "Execução", Path: RouteCitizenTracking, Icon: "activity", Description: "Acompanhar a execução das propostas aprovadas"},
		roles: []Role{RoleCitizen, RoleEntity, RoleGestor, RoleAdmin},
	},
	{
		item:  NavItem{Label: "Análise", Path: RouteManagerAnalysis, Icon: "bar-chart", Description: "Rever e decidir propostas submetidas"},
		roles: []Role{RoleGestor, RoleAdmin},
	},
	{
		item:  NavItem{Label: "Acompanhamento", Path: RouteManagerTracking, Icon: "clipboard", Description: "Atualizar o estado de execução das propostas"},
		roles: []Role{RoleGestor, RoleAdmin},
	},
	{
		item:  NavItem{Label: "Configuração", Path: RouteAdminConfig, Icon: "settings", Description: "Configurar a plataforma"},
		roles: []Role{RoleAdmin},
	},
}

// NavigationFor returns the ordered navigation set visible to a role. The
// list is empty when the caller is not authenticated.
func NavigationFor(role Role, authenticated bool) []NavItem {
	if !authenticated {
		return []NavItem{}
	}
	items := make([]NavItem, 0, len(navTable))
	for _, entry := range navTable {
		for _, allowed := range entry.roles {
			if allowed == role {
				items = append(items, entry.item)
				break
			}
		}
	}
	return items
}
