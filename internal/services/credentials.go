package services

import (
	"errors"
	"strings"
	"time"

	"github.com/eventdesk/accounts/types"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultBearerTTL = 24 * time.Hour

// Claims is the payload of an issued bearer token. The subject is the
// identity id.
type Claims struct {
	Email string       `json:"email"`
	Role  types.Role   `json:"role"`
	Roles []types.Role `json:"roles"`
	jwt.RegisteredClaims
}

// CredentialIssuer signs and verifies HS256 bearer tokens.
type CredentialIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCredentialIssuer(secret string, ttl time.Duration) *CredentialIssuer {
	if ttl <= 0 {
		ttl = DefaultBearerTTL
	}
	return &CredentialIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for identity carrying every attached role.
func (c *CredentialIssuer) Issue(identity types.Identity, roles []types.Role) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Email: identity.Email,
		Role:  identity.PrimaryRole,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies a bearer token and returns its claims.
func (c *CredentialIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}
