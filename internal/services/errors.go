package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Conflict errors.
var (
	ErrRoleAlreadyAttached            = errors.New("role already attached to this account")
	ErrUnverifiedIdentityCannotExpand = errors.New("verify your email before adding another role")
)

// Token errors.
var (
	ErrMalformedToken         = errors.New("malformed verification token")
	ErrInvalidOrConsumedToken = errors.New("invalid or already used verification token")
	ErrTokenExpired           = errors.New("verification token expired")
)

// Credential errors.
var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrVerificationRequired = errors.New("email verification required")
)

// ErrNotFoundOrAlreadyVerified is deliberately coarse so unauthenticated
// callers cannot learn whether an account exists.
var ErrNotFoundOrAlreadyVerified = errors.New("no pending verification for this email")

// ValidationError aggregates field-level input problems found before any I/O.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Kind classifies workflow errors for callers that map them onto a transport.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindConflict
	KindToken
	KindCredential
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindToken:
		return "token"
	case KindCredential:
		return "credential"
	default:
		return "infrastructure"
	}
}

// KindOf classifies err. Anything unrecognised is infrastructure.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrRoleAlreadyAttached),
		errors.Is(err, ErrUnverifiedIdentityCannotExpand):
		return KindConflict
	case errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrInvalidOrConsumedToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrNotFoundOrAlreadyVerified):
		return KindToken
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrVerificationRequired):
		return KindCredential
	default:
		return KindInfrastructure
	}
}
