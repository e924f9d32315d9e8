package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventdesk/accounts/internal/db"
	"github.com/eventdesk/accounts/types"
)

// IdentityRepository persists identities.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (types.Identity, error)
	GetByEmail(ctx context.Context, email string) (types.Identity, error)
	// GetByEmailForUpdate locks the row until the surrounding transaction ends.
	GetByEmailForUpdate(ctx context.Context, email string) (types.Identity, error)
	GetByVerificationToken(ctx context.Context, token string) (types.Identity, error)
	Create(ctx context.Context, identity types.Identity) (types.Identity, error)
	// MarkVerified flips the identity to verified and clears its token, but
	// only while it is still unverified and still holds token. It reports
	// whether a row changed.
	MarkVerified(ctx context.Context, id, token string, at time.Time) (bool, error)
	// ReplaceVerificationToken overwrites the token of an unverified identity.
	ReplaceVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// ProfileRepository persists the role profiles attached to identities.
type ProfileRepository interface {
	Roles(ctx context.Context, identityID string) ([]types.Role, error)
	CreateAttendee(ctx context.Context, profile types.AttendeeProfile) error
	CreateOrganizer(ctx context.Context, profile types.OrganizerProfile) error
}

// CompanyRepository persists companies referenced by organizer profiles.
type CompanyRepository interface {
	GetOrCreate(ctx context.Context, name, address string) (types.Company, error)
}

// VerificationLogRepository writes the verification audit trail.
type VerificationLogRepository interface {
	Record(ctx context.Context, attempt types.VerificationAttempt) error
	MarkSucceeded(ctx context.Context, identityID, token string, at time.Time) error
	SucceededWithToken(ctx context.Context, token string) (string, error)
}

// Repositories groups repositories bound to the same handle, either the pool
// or a single transaction.
type Repositories interface {
	Identities() IdentityRepository
	Profiles() ProfileRepository
	Companies() CompanyRepository
	VerificationLog() VerificationLogRepository
}

// Manager vends repositories over a connection pool and runs transactional
// units of work.
type Manager struct {
	db *sql.DB
}

func NewManager(conn *sql.DB) *Manager {
	return &Manager{db: conn}
}

// Repositories returns repositories bound to the pool.
func (m *Manager) Repositories() Repositories {
	return Bind(m.db)
}

// WithTx runs fn inside a single transaction. Repositories handed to fn are
// bound to that transaction, which commits if fn returns nil.
func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return db.WithTx(ctx, m.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, Bind(tx))
	})
}

// Bind returns repositories that execute through q.
func Bind(q db.DBTX) Repositories {
	return boundRepositories{q: q}
}

type boundRepositories struct {
	q db.DBTX
}

func (b boundRepositories) Identities() IdentityRepository {
	return NewIdentityRepository(b.q)
}

func (b boundRepositories) Profiles() ProfileRepository {
	return NewProfileRepository(b.q)
}

func (b boundRepositories) Companies() CompanyRepository {
	return NewCompanyRepository(b.q)
}

func (b boundRepositories) VerificationLog() VerificationLogRepository {
	return NewVerificationLogRepository(b.q)
}
