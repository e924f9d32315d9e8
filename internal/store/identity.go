package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventdesk/accounts/internal/db"
	"github.com/eventdesk/accounts/types"
	"github.com/google/uuid"
)

const identityColumns = `id, email, password_hash, primary_role, email_verified,
		       verification_token, token_expires_at, verified_at, created_at, last_login_at`

// IdentityStore handles persistence for identities.
type IdentityStore struct {
	db db.DBTX
}

func NewIdentityRepository(q db.DBTX) *IdentityStore {
	return &IdentityStore{db: q}
}

func (r *IdentityStore) GetByID(ctx context.Context, id string) (types.Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *IdentityStore) GetByEmail(ctx context.Context, email string) (types.Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *IdentityStore) GetByEmailForUpdate(ctx context.Context, email string) (types.Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE email = $1
		FOR UPDATE`
	return r.getOne(ctx, query, email)
}

func (r *IdentityStore) GetByVerificationToken(ctx context.Context, token string) (types.Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE verification_token = $1`
	return r.getOne(ctx, query, token)
}

func (r *IdentityStore) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO identities (
			id, email, password_hash, primary_role, email_verified,
			verification_token, token_expires_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		string(identity.PrimaryRole),
		identity.EmailVerified,
		nullString(identity.VerificationToken),
		nullTime(identity.TokenExpiresAt),
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Identity{}, ErrDuplicate
		}
		return types.Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return identity, nil
}

func (r *IdentityStore) MarkVerified(ctx context.Context, id, token string, at time.Time) (bool, error) {
	const query = `
		UPDATE identities
		SET email_verified = TRUE,
			verified_at = $3,
			verification_token = NULL,
			token_expires_at = NULL
		WHERE id = $1
			AND email_verified = FALSE
			AND verification_token = $2`
	return r.execAffected(ctx, "mark identity verified", query, id, token, at)
}

func (r *IdentityStore) ReplaceVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) (bool, error) {
	const query = `
		UPDATE identities
		SET verification_token = $2,
			token_expires_at = $3
		WHERE id = $1
			AND email_verified = FALSE`
	return r.execAffected(ctx, "replace verification token", query, id, token, expiresAt)
}

func (r *IdentityStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE identities
		SET last_login_at = $2
		WHERE id = $1`
	affected, err := r.execAffected(ctx, "update last login", query, id, at)
	if err != nil {
		return err
	}
	if !affected {
		return ErrNotFound
	}
	return nil
}

func (r *IdentityStore) getOne(ctx context.Context, query string, arg any) (types.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, fmt.Errorf("select identity: %w", err)
	}
	return identity, nil
}

func (r *IdentityStore) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (types.Identity, error) {
	var (
		identity    types.Identity
		primaryRole string
		token       sql.NullString
		expiresAt   sql.NullTime
		verifiedAt  sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&primaryRole,
		&identity.EmailVerified,
		&token,
		&expiresAt,
		&verifiedAt,
		&identity.CreatedAt,
		&lastLoginAt,
	)
	if err != nil {
		return types.Identity{}, err
	}

	identity.PrimaryRole, err = types.ParseRole(primaryRole)
	if err != nil {
		return types.Identity{}, fmt.Errorf("identity %s: %w", identity.ID, err)
	}
	if token.Valid {
		identity.VerificationToken = &token.String
	}
	identity.TokenExpiresAt = timePtr(expiresAt)
	identity.VerifiedAt = timePtr(verifiedAt)
	identity.LastLoginAt = timePtr(lastLoginAt)
	return identity, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
