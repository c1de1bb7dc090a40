// Package accounts provides email/password registration and authentication
// for citizens and local entities.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"participa/api/internal/auth"
	"participa/api/internal/store"
	"participa/api/internal/util"
)

// ProfileStore defines the storage interface for account management
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	GetProfileByID(ctx context.Context, id string) (store.Profile, error)
	InsertProfile(ctx context.Context, profile store.Profile) error
	MarkEmailVerified(ctx context.Context, token string) (store.Profile, error)
	UpdatePasswordHash(ctx context.Context, profileID, hash string) error
	SavePasswordReset(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error)
}

// Service provides registration, sign-in and credential recovery
type Service struct {
	store ProfileStore
}

func NewService(store ProfileStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains self-registration parameters. Role is restricted
// to the self-service roles; gestor and admin accounts are created by an
// administrator.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	Locality    string
}

// RegisterResponse contains registration result
type RegisterResponse struct {
	ProfileID           string
	VerificationToken   string
	RequiresEmailVerify bool
}

var selfServiceRoles = map[string]bool{
	"citizen": true,
	"entity":  true,
}

// Register creates a new citizen or entity account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	role := req.Role
	if role == "" {
		role = "citizen"
	}
	if !selfServiceRoles[role] {
		return nil, errors.New("role must be citizen or entity")
	}

	if _, err := s.store.GetProfileByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	expiresAt := time.Now().Add(24 * time.Hour)

	profile := store.Profile{
		ID:                    util.NewID("prf"),
		Email:                 req.Email,
		DisplayName:           req.DisplayName,
		PasswordHash:          string(hash),
		Role:                  role,
		Locality:              req.Locality,
		IsEmailVerified:       false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}

	if err := s.store.InsertProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	return &RegisterResponse{
		ProfileID:           profile.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// CreateByAdmin creates a pre-verified account with an arbitrary role.
func (s *Service) CreateByAdmin(ctx context.Context, req RegisterRequest) (store.Profile, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" || req.Role == "" {
		return store.Profile{}, errors.New("email, password, display name, and role are required")
	}
	if len(req.Password) < 8 {
		return store.Profile{}, errors.New("password must be at least 8 characters")
	}
	if _, err := s.store.GetProfileByEmail(ctx, req.Email); err == nil {
		return store.Profile{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile := store.Profile{
		ID:              util.NewID("prf"),
		Email:           req.Email,
		DisplayName:     req.DisplayName,
		PasswordHash:    string(hash),
		Role:            req.Role,
		Locality:        req.Locality,
		IsEmailVerified: true,
	}
	if err := s.store.InsertProfile(ctx, profile); err != nil {
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	Profile        store.Profile
	RequiresVerify bool
}

// SignIn authenticates a profile by email and password
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}
	if profile.DeactivatedAt != nil {
		return nil, errors.New("account deactivated")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !profile.IsEmailVerified {
		return &SignInResponse{Profile: profile, RequiresVerify: true}, nil
	}

	return &SignInResponse{Profile: profile}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.Profile, error) {
	if token == "" {
		return store.Profile{}, errors.New("verification token required")
	}
	profile, err := s.store.MarkEmailVerified(ctx, token)
	if err != nil {
		return store.Profile{}, errors.New("invalid or expired verification token")
	}
	return profile, nil
}

// RequestPasswordReset creates a password reset token. The empty return for
// unknown emails keeps account existence private.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.SavePasswordReset(ctx, auth.HashToken(token), profile.ID, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword resets a profile's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	profileID, err := s.store.ConsumePasswordReset(ctx, auth.HashToken(token))
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, profileID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
