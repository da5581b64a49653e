// Package auth registers accounts and exchanges credentials for session
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/picshelf/service/internal/account"
)

var (
	// ErrInvalidCredentials is returned when the username or password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = account.ErrUsernameTaken
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = account.ErrEmailTaken
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = bcrypt.ErrPasswordTooLong
)

// Issuer signs session tokens.
type Issuer interface {
	Issue(subject string) (string, error)
}

// Service contains the business logic for registration and login.
type Service struct {
	accounts account.Repository
	tokens   Issuer
	cost     int
	log      *slog.Logger

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewService creates a new auth Service hashing with the given bcrypt cost.
func NewService(accounts account.Repository, tokens Issuer, cost int, log *slog.Logger) (*Service, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("picshelf"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}
	return &Service{accounts: accounts, tokens: tokens, cost: cost, log: log, dummyHash: dummy}, nil
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*account.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a, err := s.accounts.Create(ctx, username, email, string(hash))
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			s.log.Warn("auth: registration rejected", "username", username, "reason", err)
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info("auth: account registered", "username", username)
	return a, nil
}

// Login verifies the credentials and returns a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	a, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	t, err := s.tokens.Issue(a.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return t, nil
}
