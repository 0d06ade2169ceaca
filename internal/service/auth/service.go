package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/repository"
	"github.com/splax/technews/pkg/config"
	"github.com/splax/technews/pkg/crypto"
	jwtpkg "github.com/splax/technews/pkg/jwt"
	"github.com/splax/technews/pkg/locale"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

var (
	// ErrMissingFields is returned when any signup field is blank.
	ErrMissingFields = errors.New("auth: all fields are required")
	// ErrPasswordMismatch is returned when the confirmation differs from the password.
	ErrPasswordMismatch = errors.New("auth: passwords do not match")
	// ErrPasswordTooShort is returned for passwords under MinPasswordLength characters.
	ErrPasswordTooShort = errors.New("auth: password too short")
	// ErrTokenRevoked is returned when a signed-out token is presented again.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrTokenRequired is returned when no bearer token was supplied.
	ErrTokenRequired = errors.New("auth: token required")
	// ErrInvalidToken covers bad signatures, expiry and tokens for deleted users.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ProviderError carries an identity-provider error code such as auth/email-already-in-use.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderCode extracts the provider code from err, or "" when err carries none.
func ProviderCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// SignupInput is the raw signup form.
type SignupInput struct {
	DisplayName     string
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate applies the signup checks in order: presence, confirmation, length.
func (in SignupInput) Validate() error {
	if strings.TrimSpace(in.DisplayName) == "" || strings.TrimSpace(in.Email) == "" ||
		in.Password == "" || in.ConfirmPassword == "" {
		return ErrMissingFields
	}
	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Session is an issued token with its identity.
type Session struct {
	Identity    domain.Identity
	AccessToken string
	ExpiresAt   time.Time
}

// Service handles authentication workflows.
type Service struct {
	users       repository.UserRepository
	revocations Revocations
	logger      *slog.Logger
	cfg         config.APIConfig
}

// New constructs a Service. A nil revocation store falls back to an in-memory one.
func New(users repository.UserRepository, revocations Revocations, logger *slog.Logger, cfg config.APIConfig) Service {
	if revocations == nil {
		revocations = NewMemoryRevocations()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, revocations: revocations, logger: logger, cfg: cfg}
}

// Signup validates the form, registers the user and signs them in.
func (s Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, &ProviderError{Code: locale.CodeInvalidEmail, Err: err}
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, &ProviderError{Code: locale.CodeWeakPassword, Err: err}
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		DisplayName:  locale.Normalize(in.DisplayName),
		Email:        email,
		Role:         domain.RoleUser,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, &ProviderError{Code: locale.CodeEmailInUse, Err: err}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return session, nil
}

// Login authenticates by email and password.
func (s Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ProviderError{Code: locale.CodeInvalidCredential, Err: err}
		}
		return nil, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return nil, &ProviderError{Code: locale.CodeInvalidCredential, Err: err}
		}
		return nil, err
	}
	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return session, nil
}

// Logout revokes the token described by claims until it would have expired anyway.
func (s Service) Logout(ctx context.Context, claims *jwtpkg.Claims) error {
	if claims == nil || claims.TokenID() == "" {
		return ErrTokenRequired
	}
	if err := s.revocations.Revoke(ctx, claims.TokenID(), claims.Expiry()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

// Authorize validates a bearer token and returns the associated identity and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.Identity, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, ErrTokenRequired
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown user %s", ErrInvalidToken, claims.UserID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	identity := user.Identity()
	return &identity, claims, nil
}

func (s Service) issue(user *domain.User) (*Session, error) {
	ttl := s.cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := jwtpkg.GenerateToken(user.ID, user.Role, s.cfg.JWTSecret, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Identity: user.Identity(), AccessToken: token, ExpiresAt: time.Now().Add(ttl)}, nil
}
