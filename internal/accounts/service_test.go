package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"participa/api/internal/store"
)

// mockProfileStore is a mock implementation of ProfileStore for testing
type mockProfileStore struct {
	profiles   map[string]store.Profile
	emailIndex map[string]string // email -> profileID
	resets     map[string]struct {
		profileID string
		expiresAt time.Time
		used      bool
	}
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{
		profiles:   make(map[string]store.Profile),
		emailIndex: make(map[string]string),
		resets: make(map[string]struct {
			profileID string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockProfileStore) GetProfileByEmail(_ context.Context, email string) (store.Profile, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.profiles[id], nil
	}
	return store.Profile{}, errors.New("profile not found")
}

func (m *mockProfileStore) GetProfileByID(_ context.Context, id string) (store.Profile, error) {
	if profile, ok := m.profiles[id]; ok {
		return profile, nil
	}
	return store.Profile{}, errors.New("profile not found")
}

func (m *mockProfileStore) InsertProfile(_ context.Context, profile store.Profile) error {
	m.profiles[profile.ID] = profile
	m.emailIndex[profile.Email] = profile.ID
	return nil
}

func (m *mockProfileStore) MarkEmailVerified(_ context.Context, token string) (store.Profile, error) {
	for id, profile := range m.profiles {
		if profile.VerificationToken == token && profile.VerificationExpiresAt != nil && time.Now().Before(*profile.VerificationExpiresAt) {
			profile.IsEmailVerified = true
			profile.VerificationToken = ""
			profile.VerificationExpiresAt = nil
			m.profiles[id] = profile
			return profile, nil
		}
	}
	return store.Profile{}, errors.New("invalid token")
}

func (m *mockProfileStore) UpdatePasswordHash(_ context.Context, profileID, hash string) error {
	if profile, ok := m.profiles[profileID]; ok {
		profile.PasswordHash = hash
		m.profiles[profileID] = profile
		return nil
	}
	return errors.New("profile not found")
}

func (m *mockProfileStore) SavePasswordReset(_ context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	m.resets[tokenHash] = struct {
		profileID string
		expiresAt time.Time
		used      bool
	}{profileID: profileID, expiresAt: expiresAt}
	return nil
}

func (m *mockProfileStore) ConsumePasswordReset(_ context.Context, tokenHash string) (string, error) {
	if reset, ok := m.resets[tokenHash]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		reset.used = true
		m.resets[tokenHash] = reset
		return reset.profileID, nil
	}
	return "", errors.New("invalid or expired token")
}

func TestRegisterCitizen(t *testing.T) {
	svc := NewService(newMockProfileStore())

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "ana@example.pt",
		Password:    "correct-horse",
		DisplayName: "Ana Costa",
		Locality:    "Benfica",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if resp.ProfileID == "" || resp.VerificationToken == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if !resp.RequiresEmailVerify {
		t.Fatal("new accounts must require email verification")
	}
}

func TestRegisterRejectsPrivilegedRoles(t *testing.T) {
	svc := NewService(newMockProfileStore())

	for _, role := range []string{"gestor", "admin", "superuser"} {
		_, err := svc.Register(context.Background(), RegisterRequest{
			Email:       "x@example.pt",
			Password:    "correct-horse",
			DisplayName: "X",
			Role:        role,
		})
		if err == nil {
			t.Fatalf("self-registration with role %q must be rejected", role)
		}
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMockProfileStore())
	ctx := context.Background()

	req := RegisterRequest{Email: "ana@example.pt", Password: "correct-horse", DisplayName: "Ana"}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, err := svc.Register(ctx, req); err == nil {
		t.Fatal("duplicate email must be rejected")
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(newMockProfileStore())
	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "ana@example.pt",
		Password:    "short",
		DisplayName: "Ana",
	})
	if err == nil {
		t.Fatal("short password must be rejected")
	}
}

func TestSignInFlow(t *testing.T) {
	db := newMockProfileStore()
	svc := NewService(db)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{
		Email:       "ana@example.pt",
		Password:    "correct-horse",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Before verification, sign-in succeeds but flags the pending verify.
	signIn, err := svc.SignIn(ctx, "ana@example.pt", "correct-horse")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !signIn.RequiresVerify {
		t.Fatal("unverified account must be flagged")
	}

	if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	signIn, err = svc.SignIn(ctx, "ana@example.pt", "correct-horse")
	if err != nil {
		t.Fatalf("SignIn() after verify error = %v", err)
	}
	if signIn.RequiresVerify {
		t.Fatal("verified account must not be flagged")
	}
	if signIn.Profile.Role != "citizen" {
		t.Fatalf("expected default citizen role, got %s", signIn.Profile.Role)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := NewService(newMockProfileStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.pt", Password: "correct-horse", DisplayName: "Ana"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "ana@example.pt", "wrong-password"); err == nil {
		t.Fatal("wrong password must be rejected")
	}
}

func TestSignInDeactivatedAccount(t *testing.T) {
	db := newMockProfileStore()
	svc := NewService(db)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	now := time.Now()
	_ = db.InsertProfile(ctx, store.Profile{
		ID:              "prf_1",
		Email:           "ana@example.pt",
		DisplayName:     "Ana",
		PasswordHash:    string(hash),
		Role:            "citizen",
		IsEmailVerified: true,
		DeactivatedAt:   &now,
	})

	if _, err := svc.SignIn(ctx, "ana@example.pt", "correct-horse"); err == nil {
		t.Fatal("deactivated account must be rejected")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	db := newMockProfileStore()
	svc := NewService(db)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.pt", Password: "correct-horse", DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "ana@example.pt")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := svc.ResetPassword(ctx, token, "new-password-123"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, "ana@example.pt", "new-password-123"); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "ana@example.pt", "correct-horse"); err == nil {
		t.Fatal("old password must stop working")
	}

	// A consumed token cannot be replayed.
	if err := svc.ResetPassword(ctx, token, "another-password"); err == nil {
		t.Fatal("used reset token must be rejected")
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc := NewService(newMockProfileStore())

	token, err := svc.RequestPasswordReset(context.Background(), "nobody@example.pt")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not produce a token")
	}
}

func TestCreateByAdmin(t *testing.T) {
	svc := NewService(newMockProfileStore())

	profile, err := svc.CreateByAdmin(context.Background(), RegisterRequest{
		Email:       "gestor@cm-lisboa.pt",
		Password:    "correct-horse",
		DisplayName: "Marta Silva",
		Role:        "gestor",
	})
	if err != nil {
		t.Fatalf("CreateByAdmin() error = %v", err)
	}
	if profile.Role != "gestor" || !profile.IsEmailVerified {
		t.Fatalf("admin-created account should be verified with the given role: %+v", profile)
	}
}
