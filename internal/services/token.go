package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	tokenBytes       = 32
	TokenLength      = tokenBytes * 2
	DefaultVerifyTTL = 24 * time.Hour
)

// VerificationToken is a freshly issued token and the instant it lapses.
type VerificationToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and checks email verification tokens. Tokens are
// single-use only because the verification workflow clears them.
type TokenService struct {
	ttl  time.Duration
	now  func() time.Time
	rand func([]byte) (int, error)
}

func NewTokenService(ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultVerifyTTL
	}
	return &TokenService{
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
		rand: rand.Read,
	}
}

// Generate draws 32 random bytes and renders them as 64 lowercase hex chars.
func (s *TokenService) Generate() (VerificationToken, error) {
	buf := make([]byte, tokenBytes)
	if _, err := s.rand(buf); err != nil {
		return VerificationToken{}, fmt.Errorf("generate verification token: %w", err)
	}
	return VerificationToken{
		Value:     hex.EncodeToString(buf),
		ExpiresAt: s.now().Add(s.ttl),
	}, nil
}

// ValidateFormat is a syntactic check only; it never touches storage.
func (s *TokenService) ValidateFormat(token string) error {
	if len(token) != TokenLength {
		return ErrMalformedToken
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ErrMalformedToken
		}
	}
	return nil
}

// Expired is fail-closed: a token presented exactly at its expiry instant is
// already expired.
func (s *TokenService) Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
