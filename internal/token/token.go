// Package token issues and validates the signed session tokens carried in the
// jwtToken cookie.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validity is the fixed lifetime of an issued token.
const Validity = time.Hour

var (
	// ErrMissingToken is returned by callers that found no token to validate.
	ErrMissingToken = errors.New("missing token")
	// ErrMalformed is returned when a token cannot be parsed.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature check fails.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned when the current time is past the token expiry.
	ErrExpired = errors.New("token expired")
)

// Principal is the verified identity carried by a valid token.
type Principal struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 tokens. It keeps no state besides its key.
type Service struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a token Service signing with secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token: empty signing secret")
	}
	s := &Service{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a signed token for subject valid for one hour from now.
func (s *Service) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token: empty subject")
	}
	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Validity)),
		},
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies raw and returns its Principal. Every failure matches
// exactly one of ErrMalformed, ErrInvalidSignature or ErrExpired.
func (s *Service) Validate(raw string) (Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	c := &claims{}
	_, err := parser.ParseWithClaims(raw, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return Principal{}, classify(err)
	}
	if c.Subject == "" || c.IssuedAt == nil {
		return Principal{}, ErrMalformed
	}

	return Principal{
		Subject:   c.Subject,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// classify maps jwt parser errors onto the package sentinels. The parser
// verifies the signature before the claims, so an expired token only reports
// ErrExpired once its signature has been accepted.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
