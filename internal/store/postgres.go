package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InsertProfile(ctx context.Context, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, password_hash, role, locality, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, profile.ID, profile.Email, profile.DisplayName, profile.PasswordHash, profile.Role, profile.Locality,
		profile.IsEmailVerified, profile.VerificationToken, profile.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	var item Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, locality, is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at, deactivated_at, created_at, updated_at
		FROM profiles
		WHERE email = LOWER($1)
	`, email).Scan(
		&item.ID,
		&item.Email,
		&item.DisplayName,
		&item.PasswordHash,
		&item.Role,
		&item.Locality,
		&item.IsEmailVerified,
		&item.VerificationToken,
		&item.VerificationExpiresAt,
		&item.DeactivatedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetProfileByID(ctx context.Context, profileID string) (Profile, error) {
	var item Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, locality, is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at, deactivated_at, created_at, updated_at
		FROM profiles
		WHERE id=$1
	`, profileID).Scan(
		&item.ID,
		&item.Email,
		&item.DisplayName,
		&item.PasswordHash,
		&item.Role,
		&item.Locality,
		&item.IsEmailVerified,
		&item.VerificationToken,
		&item.VerificationExpiresAt,
		&item.DeactivatedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, token string) (Profile, error) {
	var item Profile
	err := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
		RETURNING id, email, display_name, role, locality
	`, token).Scan(&item.ID, &item.Email, &item.DisplayName, &item.Role, &item.Locality)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateProfileRole(ctx context.Context, profileID, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET role=$2, updated_at=NOW() WHERE id=$1
	`, profileID, role)
	if err != nil {
		return false, fmt.Errorf("update profile role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update profile role rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetProfileActive(ctx context.Context, profileID string, active bool) (bool, error) {
	query := `UPDATE profiles SET deactivated_at=NOW(), updated_at=NOW() WHERE id=$1 AND deactivated_at IS NULL`
	if active {
		query = `UPDATE profiles SET deactivated_at=NULL, updated_at=NOW() WHERE id=$1 AND deactivated_at IS NOT NULL`
	}
	result, err := s.db.ExecContext(ctx, query, profileID)
	if err != nil {
		return false, fmt.Errorf("set profile active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set profile active rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, role, locality, is_email_verified, deactivated_at, created_at, updated_at
		FROM profiles
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		var item Profile
		if err := rows.Scan(
			&item.ID,
			&item.Email,
			&item.DisplayName,
			&item.Role,
			&item.Locality,
			&item.IsEmailVerified,
			&item.DeactivatedAt,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, profileID, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, profileID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePasswordReset(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token_hash, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET profile_id=EXCLUDED.profile_id, expires_at=EXCLUDED.expires_at, used_at=NULL
	`, tokenHash, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("save password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_resets
		SET used_at=NOW()
		WHERE token_hash=$1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING profile_id
	`, tokenHash).Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET profile_id=EXCLUDED.profile_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Profile, error) {
	const query = `
		SELECT p.id, p.email, p.display_name, p.role, p.locality, p.is_email_verified, p.deactivated_at
		FROM refresh_sessions rs
		JOIN profiles p ON p.id = rs.profile_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var item Profile
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&item.ID,
		&item.Email,
		&item.DisplayName,
		&item.Role,
		&item.Locality,
		&item.IsEmailVerified,
		&item.DeactivatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// SweepExpired removes rows other code only ever checks for freshness, so
// they never need to live past their expiry.
func (s *PostgresStore) SweepExpired(ctx context.Context) error {
	statements := []string{
		`DELETE FROM refresh_sessions WHERE expires_at < NOW()`,
		`DELETE FROM revoked_access_tokens WHERE expires_at < NOW()`,
		`DELETE FROM password_resets WHERE expires_at < NOW()`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sweep expired: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (PlatformSetting, error) {
	var item PlatformSetting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, COALESCE(updated_by, ''), updated_at
		FROM platform_settings
		WHERE key=$1
	`, key).Scan(&item.Key, &item.Value, &item.UpdatedBy, &item.UpdatedAt)
	if err != nil {
		return PlatformSetting{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpsertSetting(ctx context.Context, setting PlatformSetting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_settings (key, value, updated_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_by=EXCLUDED.updated_by, updated_at=NOW()
	`, setting.Key, setting.Value, setting.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSettings(ctx context.Context) ([]PlatformSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, COALESCE(updated_by, ''), updated_at
		FROM platform_settings
		ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	items := make([]PlatformSetting, 0)
	for rows.Next() {
		var item PlatformSetting
		if err := rows.Scan(&item.Key, &item.Value, &item.UpdatedBy, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsNotFound reports whether err is the driver's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
