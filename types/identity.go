package types

import "time"

// Identity is the single credential record behind every role a person holds.
// Exactly one Identity exists per normalized email address.
type Identity struct {
	// ID is the opaque, stable identifier of the identity.
	ID string `json:"id" db:"id"`

	// Email is the lower-cased, trimmed email address. It is globally unique.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// PrimaryRole is the first role ever attached to the identity.
	PrimaryRole Role `json:"primary_role" db:"primary_role"`

	// EmailVerified is set once the holder proved control of Email.
	EmailVerified bool `json:"email_verified" db:"email_verified"`

	// VerificationToken is the outstanding verification token, if any.
	VerificationToken *string `json:"-" db:"verification_token"`

	// TokenExpiresAt is the instant VerificationToken stops being accepted.
	TokenExpiresAt *time.Time `json:"-" db:"token_expires_at"`

	// VerifiedAt is when the email was verified.
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`

	// CreatedAt is when the identity was first registered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastLoginAt is the time of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Summary is the outward view of an identity returned by the API.
type Summary struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PrimaryRole   Role       `json:"primary_role"`
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Summary strips credential material from the identity.
func (i Identity) Summary() Summary {
	return Summary{
		ID:            i.ID,
		Email:         i.Email,
		PrimaryRole:   i.PrimaryRole,
		EmailVerified: i.EmailVerified,
		VerifiedAt:    i.VerifiedAt,
		CreatedAt:     i.CreatedAt,
	}
}

// AttendeeProfile attaches the attendee role to an identity.
type AttendeeProfile struct {
	IdentityID string    `json:"identity_id" db:"identity_id"`
	FullName   string    `json:"full_name" db:"full_name"`
	Phone      string    `json:"phone,omitempty" db:"phone"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// OrganizerProfile attaches the organizer role to an identity.
type OrganizerProfile struct {
	IdentityID      string    `json:"identity_id" db:"identity_id"`
	FullName        string    `json:"full_name" db:"full_name"`
	Phone           string    `json:"phone,omitempty" db:"phone"`
	CompanyID       int64     `json:"company_id" db:"company_id"`
	BusinessAddress string    `json:"business_address" db:"business_address"`
	ContactPerson   string    `json:"contact_person" db:"contact_person"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Company is the organizer-side business entity, deduplicated by name.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VerificationAttempt is one row of the append-only verification audit log.
// A row is written for every token issued, including resends.
type VerificationAttempt struct {
	ID         int64      `json:"id" db:"id"`
	IdentityID string     `json:"identity_id" db:"identity_id"`
	Email      string     `json:"email" db:"email"`
	Token      string     `json:"-" db:"token"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	Succeeded  bool       `json:"succeeded" db:"succeeded"`
	IssuedAt   time.Time  `json:"issued_at" db:"issued_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
}
