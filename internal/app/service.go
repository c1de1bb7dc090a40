// Package app wires the platform services behind the HTTP API: sessions,
// route guarding, proposals and voting, execution tracking, search, exports
// and administration.
package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"participa/api/internal/accounts"
	"participa/api/internal/audit"
	"participa/api/internal/auth"
	"participa/api/internal/config"
	"participa/api/internal/email"
	"participa/api/internal/guard"
	"participa/api/internal/rbac"
	"participa/api/internal/revisions"
	"participa/api/internal/search"
	"participa/api/internal/store"
	"participa/api/internal/util"
)

// Session is an authenticated profile with its issued tokens.
type Session struct {
	Token        string
	RefreshToken string
	ProfileID    string
	DisplayName  string
	Email        string
	Role         rbac.Role
	Locality     string
	JTI          string
	ExpiresAt    time.Time
}

// Actor converts the session into the guard's view of the caller.
func (s Session) Actor() guard.Actor {
	return guard.Actor{
		Authenticated: true,
		ProfileID:     s.ProfileID,
		Name:          s.DisplayName,
		Role:          s.Role,
	}
}

type dataStore interface {
	GetProfileByID(context.Context, string) (store.Profile, error)
	ListProfiles(context.Context) ([]store.Profile, error)
	UpdateProfileRole(context.Context, string, string) (bool, error)
	SetProfileActive(context.Context, string, bool) (bool, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Profile, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	SweepExpired(context.Context) error
	InsertProposal(context.Context, store.Proposal) error
	GetProposal(context.Context, string) (store.Proposal, error)
	ListProposals(context.Context, store.ProposalFilters) ([]store.Proposal, error)
	ListProposalsByCreator(context.Context, string) ([]store.Proposal, error)
	UpdateProposalContent(context.Context, string, string, string, string, int64) (bool, error)
	TransitionProposal(context.Context, string, string, ...string) (bool, error)
	InsertVote(context.Context, store.Vote) (bool, error)
	HasVoted(context.Context, string, string) (bool, error)
	VotedProposalIDs(context.Context, string) ([]string, error)
	DistinctLocalities(context.Context) ([]string, error)
	DistinctCategories(context.Context) ([]string, error)
	SummaryCounts(context.Context) (int, int, int, int, error)
	ListExecutionForCitizens(context.Context, store.ExecutionFilters) ([]store.ExecutionRow, error)
	ListExecutionForManagers(context.Context, store.ExecutionFilters) ([]store.ExecutionRow, error)
	GetExecutionStatus(context.Context, string) (store.ExecutionStatus, error)
	ApplyExecutionPatch(context.Context, string, store.ExecutionPatch, string) (store.ExecutionStatus, error)
	GetSetting(context.Context, string) (store.PlatformSetting, error)
	UpsertSetting(context.Context, store.PlatformSetting) error
	ListSettings(context.Context) ([]store.PlatformSetting, error)
	ListAuditEvents(context.Context, string, string, int) ([]store.AuditEvent, error)
	Ping(ctx context.Context) error
}

// refreshSessions is the Redis-backed token store. May be absent; the
// Postgres refresh_sessions table then takes over.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, profile store.Profile, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Profile, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type revisionStore interface {
	EnsureProposalRepo(proposalID string, initial revisions.Content, author string) error
	CommitRevision(proposalID string, content revisions.Content, author, message string) (store.RevisionInfo, error)
	HeadContent(proposalID string) (revisions.Content, store.RevisionInfo, error)
	ContentAt(proposalID, hash string) (revisions.Content, error)
	History(proposalID string, limit int) ([]store.RevisionInfo, error)
}

type changePublisher interface {
	Publish(ctx context.Context, topic, kind, entityID string)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexProposal(record search.ProposalRecord)
	DeleteProposal(id string)
}

type rateLimiter interface {
	Allow(ctx context.Context, actorID, action string) bool
}

type auditRecorder interface {
	Record(event store.AuditEvent)
}

// Deps bundles everything the service needs. Store, Accounts and Guard are
// required; the rest degrade gracefully when absent.
type Deps struct {
	Store     dataStore
	Sessions  refreshSessions
	Accounts  *accounts.Service
	Email     *email.Service
	Guard     *guard.Guard
	Limiter   rateLimiter
	Hub       changePublisher
	Search    searchIndex
	Revisions revisionStore
	Audit     auditRecorder
}

type Service struct {
	cfg       config.Config
	logger    *zap.Logger
	store     dataStore
	sessions  refreshSessions
	accounts  *accounts.Service
	email     *email.Service
	guard     *guard.Guard
	limits    rateLimiter
	hub       changePublisher
	search    searchIndex
	revisions revisionStore
	audit     auditRecorder
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		sessions:  deps.Sessions,
		accounts:  deps.Accounts,
		email:     deps.Email,
		guard:     deps.Guard,
		limits:    deps.Limiter,
		hub:       deps.Hub,
		search:    deps.Search,
		revisions: deps.Revisions,
		audit:     deps.Audit,
	}
}

// Login authenticates by email and password and issues a token pair.
func (s *Service) Login(ctx context.Context, loginEmail, password string) (Session, error) {
	result, err := s.accounts.SignIn(ctx, loginEmail, password)
	if err != nil {
		return Session{}, domainError(401, "INVALID_CREDENTIALS", "Email ou palavra-passe inválidos", nil)
	}
	if result.RequiresVerify {
		return Session{}, domainError(403, "EMAIL_NOT_VERIFIED", "Confirme o seu email antes de iniciar sessão", nil)
	}

	session, err := s.issueSession(ctx, result.Profile)
	if err != nil {
		return Session{}, err
	}
	s.recordAuth(session, "login")
	return session, nil
}

// Refresh rotates the refresh token and issues a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	profile, found := s.lookupRefresh(ctx, tokenHash)
	if !found {
		return Session{}, domainError(401, "UNAUTHORIZED", "Sessão inválida", nil)
	}
	s.revokeRefresh(ctx, tokenHash)

	// The stored snapshot may be stale; re-read the profile when possible so
	// role changes and deactivation take effect on refresh.
	if current, err := s.store.GetProfileByID(ctx, profile.ID); err == nil {
		profile = current
	} else if !store.IsNotFound(err) {
		s.logger.Warn("profile refresh lookup failed, using session snapshot", zap.Error(err))
	}
	if profile.DeactivatedAt != nil {
		return Session{}, domainError(401, "UNAUTHORIZED", "Conta desativada", nil)
	}

	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub:  profile.ID,
		Name: profile.DisplayName,
		Role: profile.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	tokenHash := auth.HashToken(refresh)

	saved := false
	if s.sessions != nil {
		if err := s.sessions.SaveRefreshSession(ctx, tokenHash, profile, refreshExpires); err != nil {
			s.logger.Warn("redis refresh save failed, falling back to postgres", zap.Error(err))
		} else {
			saved = true
		}
	}
	if !saved {
		if err := s.store.SaveRefreshSession(ctx, tokenHash, profile.ID, refreshExpires); err != nil {
			return Session{}, err
		}
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ProfileID:    profile.ID,
		DisplayName:  profile.DisplayName,
		Email:        profile.Email,
		Role:         rbac.Normalize(profile.Role),
		Locality:     profile.Locality,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) lookupRefresh(ctx context.Context, tokenHash string) (store.Profile, bool) {
	if s.sessions != nil {
		if profile, err := s.sessions.LookupRefreshSession(ctx, tokenHash); err == nil {
			return profile, true
		}
	}
	profile, err := s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return store.Profile{}, false
	}
	return profile, true
}

func (s *Service) revokeRefresh(ctx context.Context, tokenHash string) {
	if s.sessions != nil {
		if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
			s.logger.Warn("redis refresh revoke failed", zap.Error(err))
		}
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		s.logger.Warn("postgres refresh revoke failed", zap.Error(err))
	}
}

// SessionFromToken validates an access token and resolves its profile.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if profile.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:       token,
		ProfileID:   profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Role:        rbac.Normalize(profile.Role),
		Locality:    profile.Locality,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// ActorFromToken resolves a token to the guard's actor model. Malformed or
// foreign tokens are treated as an absent session, never an error.
func (s *Service) ActorFromToken(ctx context.Context, token string) guard.Actor {
	if token == "" {
		return guard.Actor{}
	}
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if errors.Is(err, auth.ErrExpiredToken) {
		return guard.Actor{Expired: true}
	}
	if err != nil {
		return guard.Actor{}
	}

	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return guard.Actor{Unresolved: true}
	}
	if revoked {
		return guard.Actor{}
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		if store.IsNotFound(err) {
			return guard.Actor{}
		}
		return guard.Actor{Unresolved: true}
	}
	if profile.DeactivatedAt != nil {
		return guard.Actor{}
	}

	return guard.Actor{
		Authenticated: true,
		ProfileID:     profile.ID,
		Name:          profile.DisplayName,
		Role:          rbac.Normalize(profile.Role),
	}
}

// Logout revokes both halves of the token pair. Best effort: a failed revoke
// still counts as logged out from the caller's perspective.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("access token revoke failed", zap.Error(err))
		}
	}
	if refreshToken != "" {
		s.revokeRefresh(ctx, auth.HashToken(refreshToken))
	}
	if session.ProfileID != "" {
		s.recordAuth(session, "logout")
	}
	return nil
}

// EvaluateRoute runs the guard policy table for a route visit.
func (s *Service) EvaluateRoute(ctx context.Context, route, token string) guard.Decision {
	return s.guard.Evaluate(ctx, route, s.ActorFromToken(ctx, token))
}

// EvaluateRouteForSession is the middleware variant for already-resolved
// sessions.
func (s *Service) EvaluateRouteForSession(ctx context.Context, route string, session Session) guard.Decision {
	return s.guard.Evaluate(ctx, route, session.Actor())
}

// NavigationPayload is what the SPA renders its menu and landing from.
type NavigationPayload struct {
	Authenticated bool           `json:"authenticated"`
	Role          string         `json:"role,omitempty"`
	DefaultRoute  string         `json:"defaultRoute"`
	Items         []rbac.NavItem `json:"items"`
}

// Navigation returns the role-scoped navigation set plus the default route.
func (s *Service) Navigation(ctx context.Context, token string) NavigationPayload {
	actor := s.ActorFromToken(ctx, token)
	payload := NavigationPayload{
		Authenticated: actor.Authenticated,
		DefaultRoute:  rbac.RouteLogin,
		Items:         rbac.NavigationFor(actor.Role, actor.Authenticated),
	}
	if actor.Authenticated {
		payload.Role = string(actor.Role)
		payload.DefaultRoute = rbac.DefaultRoute(actor.Role)
	}
	return payload
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// RunSweeper purges expired refresh sessions, revoked-token entries and
// password resets from Postgres until the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.SweepExpired(ctx); err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) recordAuth(session Session, action string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(store.AuditEvent{
		Kind:      audit.KindAuth,
		ActorID:   session.ProfileID,
		ActorName: session.DisplayName,
		Decision:  action,
		Metadata:  map[string]any{"role": string(session.Role)},
	})
}
