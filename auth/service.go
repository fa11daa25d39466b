package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals a bearer token that is malformed, expired,
	// badly signed or carries unusable claims.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret signals a verifier built without a signing key.
	ErrMissingSecret = errors.New("auth: jwt secret is empty")
)

// DefaultTokenTTL is the lifetime of tokens minted by Issue.
const DefaultTokenTTL = 24 * time.Hour

// Verifier checks HS256 bearer tokens presented by API callers.
type Verifier struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier keyed with jwtSecret.
func NewVerifier(jwtSecret string) (*Verifier, error) {
	if jwtSecret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		jwtSecret: []byte(jwtSecret),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}, nil
}

// WithClock overrides the time used to stamp and validate tokens.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify validates tokenString and returns the caller it identifies.
func (v *Verifier) Verify(tokenString string) (Caller, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.jwtSecret, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	subject, _ := claims.GetSubject()
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Caller{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}

	agencyID, _ := claims["agency_id"].(string)
	if role == RoleAgency && agencyID == "" {
		return Caller{}, fmt.Errorf("%w: agency token without agency_id", ErrInvalidToken)
	}

	return Caller{Subject: subject, Role: role, AgencyID: agencyID}, nil
}

// Issue mints a token for c. The API never calls it; operators and tests use
// it to obtain caller tokens signed with the shared secret.
func (v *Verifier) Issue(c Caller) (string, error) {
	if !isValidRole(c.Role) {
		return "", fmt.Errorf("auth: invalid role %q", c.Role)
	}

	now := v.now()
	claims := jwt.MapClaims{
		"sub":  c.Subject,
		"role": string(c.Role),
		"exp":  now.Add(v.ttl).Unix(),
		"iat":  now.Unix(),
	}
	if c.AgencyID != "" {
		claims["agency_id"] = c.AgencyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleCustomer, RoleAgency, RoleAdmin:
		return true
	default:
		return false
	}
}
