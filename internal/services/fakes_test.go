package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/eventdesk/accounts/config"
	"github.com/eventdesk/accounts/internal/logging"
	"github.com/eventdesk/accounts/internal/mailer"
	"github.com/eventdesk/accounts/internal/store"
	"github.com/eventdesk/accounts/types"
	"golang.org/x/crypto/bcrypt"
)

// memoryDB is an in-memory stand-in for Postgres. WithTx holds a single
// lock for the whole unit of work and restores a snapshot on error, which
// gives the same all-or-nothing behavior as a serialized transaction.
type memoryDB struct {
	mu sync.Mutex

	seq        int
	identities map[string]types.Identity
	attendees  map[string]types.AttendeeProfile
	organizers map[string]types.OrganizerProfile
	companies  map[string]types.Company
	attempts   []types.VerificationAttempt

	failCreateIdentity error
	failRecord         error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		identities: map[string]types.Identity{},
		attendees:  map[string]types.AttendeeProfile{},
		organizers: map[string]types.OrganizerProfile{},
		companies:  map[string]types.Company{},
	}
}

func (m *memoryDB) Repositories() store.Repositories {
	return memoryRepos{db: m}
}

func (m *memoryDB) WithTx(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, memoryRepos{db: m, locked: true}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	seq        int
	identities map[string]types.Identity
	attendees  map[string]types.AttendeeProfile
	organizers map[string]types.OrganizerProfile
	companies  map[string]types.Company
	attempts   []types.VerificationAttempt
}

func (m *memoryDB) snapshot() memorySnapshot {
	s := memorySnapshot{
		seq:        m.seq,
		identities: make(map[string]types.Identity, len(m.identities)),
		attendees:  make(map[string]types.AttendeeProfile, len(m.attendees)),
		organizers: make(map[string]types.OrganizerProfile, len(m.organizers)),
		companies:  make(map[string]types.Company, len(m.companies)),
		attempts:   slices.Clone(m.attempts),
	}
	for k, v := range m.identities {
		s.identities[k] = v
	}
	for k, v := range m.attendees {
		s.attendees[k] = v
	}
	for k, v := range m.organizers {
		s.organizers[k] = v
	}
	for k, v := range m.companies {
		s.companies[k] = v
	}
	return s
}

func (m *memoryDB) restore(s memorySnapshot) {
	m.seq = s.seq
	m.identities = s.identities
	m.attendees = s.attendees
	m.organizers = s.organizers
	m.companies = s.companies
	m.attempts = s.attempts
}

// identityByEmail scans without locking; callers hold the lock.
func (m *memoryDB) identityByEmail(email string) (types.Identity, bool) {
	for _, identity := range m.identities {
		if identity.Email == email {
			return identity, true
		}
	}
	return types.Identity{}, false
}

// Snapshot helpers used by assertions.

func (m *memoryDB) identityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}

func (m *memoryDB) get(email string) types.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, _ := m.identityByEmail(email)
	return identity
}

func (m *memoryDB) setTokenExpiry(email string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identityByEmail(email)
	if !ok {
		return
	}
	identity.TokenExpiresAt = &at
	m.identities[identity.ID] = identity
}

func (m *memoryDB) attemptsFor(identityID string) []types.VerificationAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.VerificationAttempt
	for _, a := range m.attempts {
		if a.IdentityID == identityID {
			out = append(out, a)
		}
	}
	return out
}

type memoryRepos struct {
	db     *memoryDB
	locked bool
}

func (r memoryRepos) run(fn func()) {
	if !r.locked {
		r.db.mu.Lock()
		defer r.db.mu.Unlock()
	}
	fn()
}

func (r memoryRepos) Identities() store.IdentityRepository { return memoryIdentities(r) }

func (r memoryRepos) Profiles() store.ProfileRepository { return memoryProfiles(r) }

func (r memoryRepos) Companies() store.CompanyRepository { return memoryCompanies(r) }

func (r memoryRepos) VerificationLog() store.VerificationLogRepository { return memoryLog(r) }

type memoryIdentities memoryRepos

func (r memoryIdentities) GetByID(_ context.Context, id string) (out types.Identity, err error) {
	memoryRepos(r).run(func() {
		identity, ok := r.db.identities[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = identity
	})
	return out, err
}

func (r memoryIdentities) GetByEmail(_ context.Context, email string) (out types.Identity, err error) {
	memoryRepos(r).run(func() {
		identity, ok := r.db.identityByEmail(email)
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = identity
	})
	return out, err
}

func (r memoryIdentities) GetByEmailForUpdate(ctx context.Context, email string) (types.Identity, error) {
	return r.GetByEmail(ctx, email)
}

func (r memoryIdentities) GetByVerificationToken(_ context.Context, token string) (out types.Identity, err error) {
	memoryRepos(r).run(func() {
		for _, identity := range r.db.identities {
			if identity.VerificationToken != nil && *identity.VerificationToken == token {
				out = identity
				return
			}
		}
		err = store.ErrNotFound
	})
	return out, err
}

func (r memoryIdentities) Create(_ context.Context, identity types.Identity) (out types.Identity, err error) {
	memoryRepos(r).run(func() {
		if r.db.failCreateIdentity != nil {
			err = r.db.failCreateIdentity
			return
		}
		if _, exists := r.db.identityByEmail(identity.Email); exists {
			err = store.ErrDuplicate
			return
		}
		r.db.seq++
		identity.ID = fmt.Sprintf("identity-%d", r.db.seq)
		r.db.identities[identity.ID] = identity
		out = identity
	})
	return out, err
}

func (r memoryIdentities) MarkVerified(_ context.Context, id, token string, at time.Time) (changed bool, err error) {
	memoryRepos(r).run(func() {
		identity, ok := r.db.identities[id]
		if !ok || identity.EmailVerified || identity.VerificationToken == nil || *identity.VerificationToken != token {
			return
		}
		identity.EmailVerified = true
		identity.VerifiedAt = &at
		identity.VerificationToken = nil
		identity.TokenExpiresAt = nil
		r.db.identities[id] = identity
		changed = true
	})
	return changed, nil
}

func (r memoryIdentities) ReplaceVerificationToken(_ context.Context, id, token string, expiresAt time.Time) (changed bool, err error) {
	memoryRepos(r).run(func() {
		identity, ok := r.db.identities[id]
		if !ok || identity.EmailVerified {
			return
		}
		identity.VerificationToken = &token
		identity.TokenExpiresAt = &expiresAt
		r.db.identities[id] = identity
		changed = true
	})
	return changed, nil
}

func (r memoryIdentities) UpdateLastLogin(_ context.Context, id string, at time.Time) (err error) {
	memoryRepos(r).run(func() {
		identity, ok := r.db.identities[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		identity.LastLoginAt = &at
		r.db.identities[id] = identity
	})
	return err
}

type memoryProfiles memoryRepos

func (r memoryProfiles) Roles(_ context.Context, identityID string) (roles []types.Role, err error) {
	memoryRepos(r).run(func() {
		if _, ok := r.db.attendees[identityID]; ok {
			roles = append(roles, types.RoleAttendee)
		}
		if _, ok := r.db.organizers[identityID]; ok {
			roles = append(roles, types.RoleOrganizer)
		}
	})
	return roles, nil
}

func (r memoryProfiles) CreateAttendee(_ context.Context, profile types.AttendeeProfile) (err error) {
	memoryRepos(r).run(func() {
		if _, ok := r.db.attendees[profile.IdentityID]; ok {
			err = store.ErrDuplicate
			return
		}
		r.db.attendees[profile.IdentityID] = profile
	})
	return err
}

func (r memoryProfiles) CreateOrganizer(_ context.Context, profile types.OrganizerProfile) (err error) {
	memoryRepos(r).run(func() {
		if _, ok := r.db.organizers[profile.IdentityID]; ok {
			err = store.ErrDuplicate
			return
		}
		r.db.organizers[profile.IdentityID] = profile
	})
	return err
}

type memoryCompanies memoryRepos

func (r memoryCompanies) GetOrCreate(_ context.Context, name, address string) (out types.Company, err error) {
	memoryRepos(r).run(func() {
		if company, ok := r.db.companies[name]; ok {
			out = company
			return
		}
		out = types.Company{ID: int64(len(r.db.companies) + 1), Name: name, Address: address}
		r.db.companies[name] = out
	})
	return out, nil
}

type memoryLog memoryRepos

func (r memoryLog) Record(_ context.Context, attempt types.VerificationAttempt) (err error) {
	memoryRepos(r).run(func() {
		if r.db.failRecord != nil {
			err = r.db.failRecord
			return
		}
		attempt.ID = int64(len(r.db.attempts) + 1)
		r.db.attempts = append(r.db.attempts, attempt)
	})
	return err
}

func (r memoryLog) MarkSucceeded(_ context.Context, identityID, token string, at time.Time) (err error) {
	memoryRepos(r).run(func() {
		for i, a := range r.db.attempts {
			if a.IdentityID == identityID && a.Token == token {
				r.db.attempts[i].Succeeded = true
				r.db.attempts[i].VerifiedAt = &at
				return
			}
		}
		err = store.ErrNotFound
	})
	return err
}

func (r memoryLog) SucceededWithToken(_ context.Context, token string) (id string, err error) {
	memoryRepos(r).run(func() {
		for _, a := range r.db.attempts {
			if a.Token == token && a.Succeeded {
				id = a.IdentityID
				return
			}
		}
		err = store.ErrNotFound
	})
	return id, err
}

// recordingGateway captures outgoing mail.
type recordingGateway struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail error
}

func (g *recordingGateway) Send(_ context.Context, msg mailer.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) last() (mailer.Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return mailer.Message{}, false
	}
	return g.sent[len(g.sent)-1], true
}

func (g *recordingGateway) count(kind mailer.Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, msg := range g.sent {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

// testClock is a settable clock shared by the service and its token issuer.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc   *AuthService
	db    *memoryDB
	mail  *recordingGateway
	clock *testClock
}

var errSMTPDown = errors.New("smtp down")

func newHarness() *harness {
	db := newMemoryDB()
	mail := &recordingGateway{}
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewAuthService(db, mail, logging.Discard(), config.AuthConfig{
		JWTSecret:       "test-secret",
		BearerTTL:       time.Hour,
		VerificationTTL: 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
		TxTimeout:       time.Second,
		WelcomeEmail:    true,
	})
	svc.now = clock.Now
	svc.tokens.now = clock.Now
	svc.credentials.now = clock.Now

	return &harness{svc: svc, db: db, mail: mail, clock: clock}
}

func attendeeSignup(email string) SignupRequest {
	return SignupRequest{
		Email:    email,
		Password: "correct-horse",
		FullName: "Ann Attendee",
		Phone:    "+1 555 0100",
		Role:     "attendee",
	}
}

func organizerSignup(email string) SignupRequest {
	return SignupRequest{
		Email:         email,
		Password:      "correct-horse",
		FullName:      "Olga Organizer",
		Role:          "organizer",
		CompanyName:   "Acme Events",
		ContactPerson: "Olga",
		Location:      "1 Main St",
	}
}

// verifyPending consumes the outstanding token of email.
func (h *harness) verifyPending(email string) (VerifyResult, error) {
	identity := h.db.get(email)
	if identity.VerificationToken == nil {
		return VerifyResult{}, errors.New("no pending token for " + email)
	}
	return h.svc.Verify(context.Background(), *identity.VerificationToken)
}

// interleavingDB runs beforeMarkVerified inside the unit of work, after the
// token has been read and before the conditional update executes. The hook
// mutates memoryDB directly, standing in for a transaction that committed in
// between.
type interleavingDB struct {
	*memoryDB
	beforeMarkVerified func(identityID string)
}

func (d *interleavingDB) WithTx(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	return d.memoryDB.WithTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		return fn(ctx, interleavingRepos{Repositories: repos, hook: d.beforeMarkVerified})
	})
}

type interleavingRepos struct {
	store.Repositories
	hook func(identityID string)
}

func (r interleavingRepos) Identities() store.IdentityRepository {
	return interleavingIdentities{IdentityRepository: r.Repositories.Identities(), hook: r.hook}
}

type interleavingIdentities struct {
	store.IdentityRepository
	hook func(identityID string)
}

func (r interleavingIdentities) MarkVerified(ctx context.Context, id, token string, at time.Time) (bool, error) {
	if r.hook != nil {
		r.hook(id)
	}
	return r.IdentityRepository.MarkVerified(ctx, id, token, at)
}

// mutate edits a stored identity. Callers already hold the lock.
func (m *memoryDB) mutate(id string, fn func(*types.Identity)) {
	identity := m.identities[id]
	fn(&identity)
	m.identities[id] = identity
}
