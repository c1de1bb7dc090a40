package app

import (
	"context"
	"strings"
	"time"

	"participa/api/internal/accounts"
	"participa/api/internal/audit"
	"participa/api/internal/rbac"
	"participa/api/internal/store"
)

// ProfileView is the admin's listing of a platform account.
type ProfileView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName"`
	Role          string     `json:"role"`
	Locality      string     `json:"locality"`
	EmailVerified bool       `json:"emailVerified"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func profileView(p store.Profile) ProfileView {
	return ProfileView{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Locality:      p.Locality,
		EmailVerified: p.IsEmailVerified,
		DeactivatedAt: p.DeactivatedAt,
		CreatedAt:     p.CreatedAt,
	}
}

func (s *Service) requireAdmin(session Session) error {
	if !rbac.Can(session.Role, rbac.ActionAdmin) {
		return domainError(403, "FORBIDDEN", "Apenas administradores", nil)
	}
	return nil
}

// ListUsers returns every platform account.
func (s *Service) ListUsers(ctx context.Context, session Session) ([]ProfileView, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProfileView, 0, len(profiles))
	for _, profile := range profiles {
		views = append(views, profileView(profile))
	}
	return views, nil
}

// CreateUser provisions a pre-verified account with any role, gestor and
// admin included.
func (s *Service) CreateUser(ctx context.Context, session Session, req accounts.RegisterRequest) (ProfileView, error) {
	if err := s.requireAdmin(session); err != nil {
		return ProfileView{}, err
	}
	if rbac.Normalize(req.Role) != rbac.Role(req.Role) {
		return ProfileView{}, validationError(map[string]string{"role": "função desconhecida"})
	}
	profile, err := s.accounts.CreateByAdmin(ctx, req)
	if err != nil {
		return ProfileView{}, validationError(map[string]string{"account": err.Error()})
	}
	s.recordAdmin(session, "user_created", map[string]any{"profile_id": profile.ID, "role": profile.Role})
	return profileView(profile), nil
}

// ChangeUserRole reassigns an account's role.
func (s *Service) ChangeUserRole(ctx context.Context, session Session, profileID, role string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	if rbac.Normalize(role) != rbac.Role(role) {
		return validationError(map[string]string{"role": "função desconhecida"})
	}
	updated, err := s.store.UpdateProfileRole(ctx, profileID, role)
	if err != nil {
		return err
	}
	if !updated {
		return domainError(404, "NOT_FOUND", "Conta não encontrada", nil)
	}
	s.recordAdmin(session, "role_changed", map[string]any{"profile_id": profileID, "role": role})
	return nil
}

// SetUserActive deactivates or reactivates an account. Deactivated accounts
// fail sign-in and token resolution immediately.
func (s *Service) SetUserActive(ctx context.Context, session Session, profileID string, active bool) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	if profileID == session.ProfileID && !active {
		return validationError(map[string]string{"profileId": "não pode desativar a própria conta"})
	}
	updated, err := s.store.SetProfileActive(ctx, profileID, active)
	if err != nil {
		return err
	}
	if !updated {
		return domainError(404, "NOT_FOUND", "Conta não encontrada", nil)
	}
	action := "user_deactivated"
	if active {
		action = "user_reactivated"
	}
	s.recordAdmin(session, action, map[string]any{"profile_id": profileID})
	return nil
}

// ListSettings returns the platform configuration entries.
func (s *Service) ListSettings(ctx context.Context, session Session) ([]store.PlatformSetting, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	return s.store.ListSettings(ctx)
}

// UpdateSetting writes one configuration entry.
func (s *Service) UpdateSetting(ctx context.Context, session Session, key, value string) (store.PlatformSetting, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.PlatformSetting{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return store.PlatformSetting{}, validationError(map[string]string{"key": "a chave é obrigatória"})
	}
	setting := store.PlatformSetting{Key: key, Value: value, UpdatedBy: session.ProfileID}
	if err := s.store.UpsertSetting(ctx, setting); err != nil {
		return store.PlatformSetting{}, err
	}
	s.recordAdmin(session, "setting_updated", map[string]any{"key": key})
	return setting, nil
}

// AuditLog returns recent audit events, optionally narrowed by kind or actor.
func (s *Service) AuditLog(ctx context.Context, session Session, kind, actorID string, limit int) ([]store.AuditEvent, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	return s.store.ListAuditEvents(ctx, kind, actorID, limit)
}

func (s *Service) recordAdmin(session Session, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(store.AuditEvent{
		Kind:      audit.KindAdminAction,
		ActorID:   session.ProfileID,
		ActorName: session.DisplayName,
		Decision:  action,
		Metadata:  metadata,
	})
}
