package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventdesk/accounts/internal/db"
	"github.com/eventdesk/accounts/types"
)

const verificationLogSavepoint = "verification_log"

// VerificationLogStore appends to the verification audit trail. Inside a
// transaction each write runs under a savepoint so a failed audit statement
// does not poison the enclosing transaction.
type VerificationLogStore struct {
	db db.DBTX
}

func NewVerificationLogRepository(q db.DBTX) *VerificationLogStore {
	return &VerificationLogStore{db: q}
}

func (r *VerificationLogStore) Record(ctx context.Context, attempt types.VerificationAttempt) error {
	if attempt.IssuedAt.IsZero() {
		attempt.IssuedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO verification_attempts (identity_id, email, token, expires_at, succeeded, issued_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`
	return r.savepoint(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, query,
			attempt.IdentityID,
			attempt.Email,
			attempt.Token,
			attempt.ExpiresAt,
			attempt.IssuedAt,
		); err != nil {
			return fmt.Errorf("insert verification attempt: %w", err)
		}
		return nil
	})
}

func (r *VerificationLogStore) MarkSucceeded(ctx context.Context, identityID, token string, at time.Time) error {
	const query = `
		UPDATE verification_attempts
		SET succeeded = TRUE,
			verified_at = $3
		WHERE identity_id = $1
			AND token = $2`
	return r.savepoint(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, identityID, token, at)
		if err != nil {
			return fmt.Errorf("mark verification attempt: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark verification attempt: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SucceededWithToken returns the identity that token already verified, or
// ErrNotFound.
func (r *VerificationLogStore) SucceededWithToken(ctx context.Context, token string) (string, error) {
	const query = `
		SELECT identity_id
		FROM verification_attempts
		WHERE token = $1 AND succeeded = TRUE
		LIMIT 1`
	var identityID string
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&identityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select verification attempt: %w", err)
	}
	return identityID, nil
}

func (r *VerificationLogStore) savepoint(ctx context.Context, fn func() error) error {
	if !db.InTx(r.db) {
		return fn()
	}

	if _, err := r.db.ExecContext(ctx, "SAVEPOINT "+verificationLogSavepoint); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := r.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+verificationLogSavepoint); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := r.db.ExecContext(ctx, "RELEASE SAVEPOINT "+verificationLogSavepoint); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
