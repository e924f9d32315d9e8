package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eventdesk/accounts/internal/db"
	"github.com/eventdesk/accounts/types"
)

// ProfileStore handles persistence for attendee and organizer profiles.
type ProfileStore struct {
	db db.DBTX
}

func NewProfileRepository(q db.DBTX) *ProfileStore {
	return &ProfileStore{db: q}
}

// Roles lists the roles attached to the identity, attendee first.
func (r *ProfileStore) Roles(ctx context.Context, identityID string) ([]types.Role, error) {
	const query = `
		SELECT 'attendee' AS role FROM attendee_profiles WHERE identity_id = $1
		UNION ALL
		SELECT 'organizer' AS role FROM organizer_profiles WHERE identity_id = $1`
	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	defer rows.Close()

	var roles []types.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, types.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	return roles, nil
}

func (r *ProfileStore) CreateAttendee(ctx context.Context, profile types.AttendeeProfile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO attendee_profiles (identity_id, full_name, phone, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query,
		profile.IdentityID,
		profile.FullName,
		profile.Phone,
		profile.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert attendee profile: %w", err)
	}
	return nil
}

func (r *ProfileStore) CreateOrganizer(ctx context.Context, profile types.OrganizerProfile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO organizer_profiles (
			identity_id, full_name, phone, company_id,
			business_address, contact_person, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		profile.IdentityID,
		profile.FullName,
		profile.Phone,
		profile.CompanyID,
		profile.BusinessAddress,
		profile.ContactPerson,
		profile.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert organizer profile: %w", err)
	}
	return nil
}
