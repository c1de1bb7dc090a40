package app

import (
	"context"

	"go.uber.org/zap"

	"participa/api/internal/accounts"
	"participa/api/internal/audit"
	"participa/api/internal/ratelimit"
	"participa/api/internal/store"
)

// RegisterResult is what the registration endpoint answers with. The
// verification token is only exposed when no SMTP transport is configured,
// so local development works without a mail server.
type RegisterResult struct {
	ProfileID         string `json:"profileId"`
	RequiresVerify    bool   `json:"requiresEmailVerification"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// RegisterAccount self-registers a citizen or entity. Registrations are
// throttled per client address since there is no profile to key on yet.
func (s *Service) RegisterAccount(ctx context.Context, req accounts.RegisterRequest, clientAddr string) (*RegisterResult, error) {
	if s.limits != nil && clientAddr != "" {
		if !s.limits.Allow(ctx, clientAddr, ratelimit.ActionRegistration) {
			return nil, domainError(429, "RATE_LIMITED", "Atingiu o limite diário de registos. Tente novamente amanhã.", nil)
		}
	}

	result, err := s.accounts.Register(ctx, req)
	if err != nil {
		return nil, validationError(map[string]string{"account": err.Error()})
	}

	out := &RegisterResult{ProfileID: result.ProfileID, RequiresVerify: result.RequiresEmailVerify}
	if s.email != nil && s.email.IsConfigured() {
		verifyURL := s.cfg.PublicBaseURL + "/verify-email?token=" + result.VerificationToken
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, verifyURL); err != nil {
			s.logger.Warn("verification email failed", zap.String("profile_id", result.ProfileID), zap.Error(err))
		}
	} else {
		out.VerificationToken = result.VerificationToken
	}

	if s.audit != nil {
		s.audit.Record(store.AuditEvent{
			Kind:     audit.KindAuth,
			ActorID:  result.ProfileID,
			Decision: "register",
			Metadata: map[string]any{"role": req.Role, "locality": req.Locality},
		})
	}
	return out, nil
}

// VerifyEmail confirms an address from the emailed token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	profile, err := s.accounts.VerifyEmail(ctx, token)
	if err != nil {
		return validationError(map[string]string{"token": "token de verificação inválido ou expirado"})
	}
	if s.audit != nil {
		s.audit.Record(store.AuditEvent{
			Kind:      audit.KindAuth,
			ActorID:   profile.ID,
			ActorName: profile.DisplayName,
			Decision:  "email_verified",
		})
	}
	return nil
}

// RequestPasswordReset issues a reset token. Unknown addresses get the same
// answer as known ones. The token is returned only in the no-SMTP dev setup.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.accounts.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	if s.email != nil && s.email.IsConfigured() {
		resetURL := s.cfg.PublicBaseURL + "/reset-password?token=" + token
		if err := s.email.SendPasswordResetEmail(emailAddr, "", resetURL); err != nil {
			s.logger.Warn("password reset email failed", zap.Error(err))
		}
		return "", nil
	}
	return token, nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.accounts.ResetPassword(ctx, token, newPassword); err != nil {
		return validationError(map[string]string{"token": err.Error()})
	}
	return nil
}
