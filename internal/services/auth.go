package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventdesk/accounts/config"
	"github.com/eventdesk/accounts/internal/logging"
	"github.com/eventdesk/accounts/internal/mailer"
	"github.com/eventdesk/accounts/internal/store"
	"github.com/eventdesk/accounts/types"
)

const (
	defaultTxTimeout = 10 * time.Second

	// WarningEmailNotSent is returned when an account change committed but
	// its verification email could not be handed off.
	WarningEmailNotSent = "verification email could not be sent; request a new one to finish signing up"
)

// Transactor vends repositories and runs units of work in one transaction.
type Transactor interface {
	Repositories() store.Repositories
	WithTx(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error
}

// EmailGateway delivers account notifications.
type EmailGateway interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// SignupOutcome distinguishes the two ways a signup can succeed.
type SignupOutcome string

const (
	SignupPendingVerification SignupOutcome = "pending_verification"
	SignupRoleAdded           SignupOutcome = "role_added"
)

type SignupResult struct {
	Outcome   SignupOutcome
	IsNewUser bool
	EmailSent bool
	Identity  types.Summary
	Roles     []types.Role
	Warnings  []string
}

// VerifyOutcome distinguishes a fresh verification from a replay.
type VerifyOutcome string

const (
	VerifySucceeded       VerifyOutcome = "verified"
	VerifyAlreadyVerified VerifyOutcome = "already_verified"
)

type VerifyResult struct {
	Outcome  VerifyOutcome
	Identity types.Summary
}

type ResendResult struct {
	EmailSent bool
	Warnings  []string
}

type LoginResult struct {
	Token            string
	ExpiresAt        time.Time
	Identity         types.Summary
	Roles            []types.Role
	HasMultipleRoles bool
}

// AuthService runs the signup, verification, resend and login workflows.
type AuthService struct {
	tx          Transactor
	roles       *RoleAttachmentManager
	tokens      *TokenService
	passwords   *PasswordHasher
	credentials *CredentialIssuer
	mail        EmailGateway
	log         logging.Logger

	now          func() time.Time
	txTimeout    time.Duration
	welcomeEmail bool

	// roleAddRequiresPassword makes a role attachment prove the stored password.
	roleAddRequiresPassword bool
}

func NewAuthService(tx Transactor, mail EmailGateway, log logging.Logger, cfg config.AuthConfig) *AuthService {
	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &AuthService{
		tx:           tx,
		roles:        NewRoleAttachmentManager(),
		tokens:       NewTokenService(cfg.VerificationTTL),
		passwords:    NewPasswordHasher(cfg.BcryptCost),
		credentials:  NewCredentialIssuer(cfg.JWTSecret, cfg.BearerTTL),
		mail:         mail,
		log:          log.With("component", "auth"),
		now:          func() time.Time { return time.Now().UTC() },
		txTimeout:    txTimeout,
		welcomeEmail: cfg.WelcomeEmail,

		roleAddRequiresPassword: cfg.RoleAddRequiresPassword,
	}
}

// Credentials exposes the issuer so transports can authenticate bearers.
func (s *AuthService) Credentials() *CredentialIssuer {
	return s.credentials
}

// Signup registers a new identity with its first role, or attaches an
// additional role to an already verified identity.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return SignupResult{}, err
	}
	role, err := types.ParseRole(req.Role)
	if err != nil {
		return SignupResult{}, &ValidationError{Fields: map[string]string{"role": err.Error()}}
	}

	result, issued, err := s.signup(ctx, req, role)
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent signup for the same email committed first.
		err = s.conflictAfterRace(ctx, req.Email, role)
	}
	if err != nil {
		if KindOf(err) == KindInfrastructure {
			s.log.Error(ctx, "signup failed", "role", role, "error", err)
		}
		return SignupResult{}, err
	}

	if issued != nil {
		result.EmailSent, result.Warnings = s.sendVerification(ctx, result.Identity, *issued)
	}

	s.log.Info(ctx, "signup completed",
		"identity_id", result.Identity.ID, "role", role, "outcome", result.Outcome, "email_sent", result.EmailSent)
	return result, nil
}

func (s *AuthService) signup(ctx context.Context, req SignupRequest, role types.Role) (SignupResult, *VerificationToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		result SignupResult
		issued *VerificationToken
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		resolution, err := s.roles.Resolve(ctx, repos, req.Email, role)
		if err != nil {
			return err
		}

		now := s.now()
		identity := resolution.Identity

		switch resolution.Attachment {
		case AttachNewIdentity:
			hash, err := s.passwords.Hash(req.Password)
			if err != nil {
				return err
			}
			token, err := s.tokens.Generate()
			if err != nil {
				return err
			}

			identity, err = repos.Identities().Create(ctx, types.Identity{
				Email:             req.Email,
				PasswordHash:      hash,
				PrimaryRole:       role,
				VerificationToken: &token.Value,
				TokenExpiresAt:    &token.ExpiresAt,
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			s.recordAttempt(ctx, repos, identity, token, now)

			issued = &token
			result.Outcome = SignupPendingVerification
			result.IsNewUser = true

		case AttachExistingIdentity:
			if s.roleAddRequiresPassword {
				if err := s.passwords.Compare(identity.PasswordHash, req.Password); err != nil {
					return err
				}
			}
			result.Outcome = SignupRoleAdded

		default:
			return fmt.Errorf("unexpected attachment %d", resolution.Attachment)
		}

		if err := s.attachProfile(ctx, repos, identity.ID, role, req, now); err != nil {
			return err
		}

		result.Identity = identity.Summary()
		result.Roles = append(resolution.Roles, role)
		return nil
	})
	if err != nil {
		return SignupResult{}, nil, err
	}
	return result, issued, nil
}

func (s *AuthService) attachProfile(ctx context.Context, repos store.Repositories, identityID string, role types.Role, req SignupRequest, now time.Time) error {
	var err error
	switch role {
	case types.RoleAttendee:
		err = repos.Profiles().CreateAttendee(ctx, types.AttendeeProfile{
			IdentityID: identityID,
			FullName:   req.FullName,
			Phone:      req.Phone,
			CreatedAt:  now,
		})
	case types.RoleOrganizer:
		address := req.CompanyAddress
		if address == "" {
			address = req.Location
		}
		company, cerr := repos.Companies().GetOrCreate(ctx, req.CompanyName, address)
		if cerr != nil {
			return cerr
		}
		err = repos.Profiles().CreateOrganizer(ctx, types.OrganizerProfile{
			IdentityID:      identityID,
			FullName:        req.FullName,
			Phone:           req.Phone,
			CompanyID:       company.ID,
			BusinessAddress: req.Location,
			ContactPerson:   req.ContactPerson,
			CreatedAt:       now,
		})
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if errors.Is(err, store.ErrDuplicate) {
		return ErrRoleAlreadyAttached
	}
	return err
}

// conflictAfterRace re-resolves once the losing transaction has rolled back,
// so the caller sees the same conflict a sequential request would.
func (s *AuthService) conflictAfterRace(ctx context.Context, email string, role types.Role) error {
	_, err := s.roles.Resolve(ctx, s.tx.Repositories(), email, role)
	if err != nil {
		return err
	}
	return ErrRoleAlreadyAttached
}

// Verify consumes a verification token.
func (s *AuthService) Verify(ctx context.Context, token string) (VerifyResult, error) {
	if err := s.tokens.ValidateFormat(token); err != nil {
		return VerifyResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		result   VerifyResult
		verified types.Identity
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, repos store.Repositories) error {
		identity, err := repos.Identities().GetByVerificationToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return s.replayedToken(ctx, repos, token, &result)
		}
		if err != nil {
			return err
		}

		if identity.EmailVerified {
			result = VerifyResult{Outcome: VerifyAlreadyVerified, Identity: identity.Summary()}
			return nil
		}

		now := s.now()
		if identity.TokenExpiresAt == nil || s.tokens.Expired(*identity.TokenExpiresAt, now) {
			return ErrTokenExpired
		}

		changed, err := repos.Identities().MarkVerified(ctx, identity.ID, token, now)
		if err != nil {
			return err
		}
		if !changed {
			// Another request consumed the token between our read and update.
			current, err := repos.Identities().GetByID(ctx, identity.ID)
			if err != nil {
				return err
			}
			if current.EmailVerified {
				result = VerifyResult{Outcome: VerifyAlreadyVerified, Identity: current.Summary()}
				return nil
			}
			return ErrInvalidOrConsumedToken
		}

		if err := repos.VerificationLog().MarkSucceeded(ctx, identity.ID, token, now); err != nil {
			s.log.Warn(ctx, "verification attempt not marked", "identity_id", identity.ID, "error", err)
		}

		identity.EmailVerified = true
		identity.VerifiedAt = &now
		identity.VerificationToken = nil
		identity.TokenExpiresAt = nil
		verified = identity
		result = VerifyResult{Outcome: VerifySucceeded, Identity: identity.Summary()}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInfrastructure {
			s.log.Error(ctx, "verification failed", "error", err)
		}
		return VerifyResult{}, err
	}

	if result.Outcome == VerifySucceeded {
		s.log.Info(ctx, "email verified", "identity_id", verified.ID)
		if s.welcomeEmail {
			s.sendWelcome(ctx, verified)
		}
	}
	return result, nil
}

// replayedToken handles a token that no identity currently holds. Tokens are
// cleared on success, so the audit log tells a replay apart from garbage.
func (s *AuthService) replayedToken(ctx context.Context, repos store.Repositories, token string, result *VerifyResult) error {
	identityID, err := repos.VerificationLog().SucceededWithToken(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn(ctx, "verification log lookup failed", "error", err)
		}
		return ErrInvalidOrConsumedToken
	}

	identity, err := repos.Identities().GetByID(ctx, identityID)
	if err != nil || !identity.EmailVerified {
		return ErrInvalidOrConsumedToken
	}
	*result = VerifyResult{Outcome: VerifyAlreadyVerified, Identity: identity.Summary()}
	return nil
}

// ResendVerification issues a fresh token for an unverified identity,
// invalidating the previous one.
func (s *AuthService) ResendVerification(ctx context.Context, req ResendRequest) (ResendResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return ResendResult{}, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		identity types.Identity
		issued   VerificationToken
	)
	err := s.tx.WithTx(txCtx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		identity, err = repos.Identities().GetByEmailForUpdate(ctx, req.Email)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFoundOrAlreadyVerified
		}
		if err != nil {
			return err
		}
		if identity.EmailVerified {
			return ErrNotFoundOrAlreadyVerified
		}

		issued, err = s.tokens.Generate()
		if err != nil {
			return err
		}
		replaced, err := repos.Identities().ReplaceVerificationToken(ctx, identity.ID, issued.Value, issued.ExpiresAt)
		if err != nil {
			return err
		}
		if !replaced {
			return ErrNotFoundOrAlreadyVerified
		}

		s.recordAttempt(ctx, repos, identity, issued, s.now())
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInfrastructure {
			s.log.Error(ctx, "resend verification failed", "error", err)
		}
		return ResendResult{}, err
	}

	var result ResendResult
	result.EmailSent, result.Warnings = s.sendVerification(ctx, identity.Summary(), issued)
	return result, nil
}

// Login checks credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return LoginResult{}, err
	}

	repos := s.tx.Repositories()
	identity, err := repos.Identities().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.passwords.CompareDummy(req.Password)
			return LoginResult{}, ErrInvalidCredentials
		}
		s.log.Error(ctx, "login lookup failed", "error", err)
		return LoginResult{}, err
	}

	if !identity.EmailVerified {
		return LoginResult{}, ErrVerificationRequired
	}
	if err := s.passwords.Compare(identity.PasswordHash, req.Password); err != nil {
		return LoginResult{}, err
	}

	roles, err := repos.Profiles().Roles(ctx, identity.ID)
	if err != nil {
		s.log.Error(ctx, "login roles lookup failed", "identity_id", identity.ID, "error", err)
		return LoginResult{}, err
	}
	if len(roles) == 0 {
		roles = []types.Role{identity.PrimaryRole}
	}

	now := s.now()
	if err := repos.Identities().UpdateLastLogin(ctx, identity.ID, now); err != nil {
		s.log.Warn(ctx, "last login not recorded", "identity_id", identity.ID, "error", err)
	} else {
		identity.LastLoginAt = &now
	}

	token, expiresAt, err := s.credentials.Issue(identity, roles)
	if err != nil {
		s.log.Error(ctx, "bearer token not issued", "identity_id", identity.ID, "error", err)
		return LoginResult{}, fmt.Errorf("issue bearer token: %w", err)
	}

	return LoginResult{
		Token:            token,
		ExpiresAt:        expiresAt,
		Identity:         identity.Summary(),
		Roles:            roles,
		HasMultipleRoles: len(roles) > 1,
	}, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, repos store.Repositories, identity types.Identity, token VerificationToken, now time.Time) {
	err := repos.VerificationLog().Record(ctx, types.VerificationAttempt{
		IdentityID: identity.ID,
		Email:      identity.Email,
		Token:      token.Value,
		ExpiresAt:  token.ExpiresAt,
		IssuedAt:   now,
	})
	if err != nil {
		s.log.Warn(ctx, "verification attempt not recorded", "identity_id", identity.ID, "error", err)
	}
}

func (s *AuthService) sendVerification(ctx context.Context, identity types.Summary, token VerificationToken) (bool, []string) {
	err := s.mail.Send(ctx, mailer.Message{
		Kind:       mailer.KindVerification,
		To:         identity.Email,
		IdentityID: identity.ID,
		Token:      token.Value,
		ExpiresAt:  token.ExpiresAt,
	})
	if err != nil {
		s.log.Warn(ctx, "verification email not sent", "identity_id", identity.ID, "error", err)
		return false, []string{WarningEmailNotSent}
	}
	return true, nil
}

func (s *AuthService) sendWelcome(ctx context.Context, identity types.Identity) {
	err := s.mail.Send(ctx, mailer.Message{
		Kind:       mailer.KindWelcome,
		To:         identity.Email,
		IdentityID: identity.ID,
	})
	if err != nil {
		s.log.Warn(ctx, "welcome email not sent", "identity_id", identity.ID, "error", err)
	}
}
