package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventhub-app/eventhub/internal/model"
	"github.com/eventhub-app/eventhub/internal/notify"
	"github.com/eventhub-app/eventhub/internal/repository"
)

// ErrInvalidCredentials is returned when login email/password do not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore is the persistence surface the auth service depends on.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// CodeStore manages one-time reset codes and their redemption tickets.
type CodeStore interface {
	Issue(recipient string) (string, error)
	Verify(recipient, submitted string) (string, error)
	RedeemTicket(recipient, ticket string) error
}

// TokenIssuer mints bearer tokens for authenticated identities.
type TokenIssuer interface {
	IssueToken(identity model.Identity) (string, error)
}

// AuthService orchestrates accounts, login, and the password-reset flow.
type AuthService struct {
	users    UserStore
	codes    CodeStore
	tokens   TokenIssuer
	notifier Notifier
	logger   *zap.Logger
}

// NewAuthService constructs an AuthService with its dependencies.
func NewAuthService(users UserStore, codes CodeStore, tokens TokenIssuer, notifier Notifier, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, codes: codes, tokens: tokens, notifier: notifier, logger: logger}
}

// Signup creates an account and returns a bearer token for it.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if req.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	if !isValidEmail(req.Email) {
		return "", fmt.Errorf("email is not a valid email address")
	}
	if len(req.Password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, req.Name, req.Email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return "", err
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return s.tokens.IssueToken(model.Identity{UserID: user.ID, Email: user.Email})
}

// Login exchanges credentials for a bearer token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (string, error) {
	email := normalizeEmail(req.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.IssueToken(model.Identity{UserID: user.ID, Email: user.Email})
}

// SendCode issues a fresh reset code for a known account and dispatches it
// out-of-band. Delivery failure does not roll back the stored code: the
// store and the notification are independent failure domains.
func (s *AuthService) SendCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("look up user: %w", err)
	}

	code, err := s.codes.Issue(email)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}

	s.notifier.Send(notify.KindResetCode, email, notify.Payload{Code: code})
	s.logger.Info("reset code issued", zap.String("email", email))
	return nil
}

// VerifyCode consumes the outstanding code on match and returns the
// single-use ticket that authorizes the subsequent password reset.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	return s.codes.Verify(normalizeEmail(email), strings.TrimSpace(code))
}

// ResetPassword replaces the account credential. The ticket must have been
// minted by a successful VerifyCode for the same email; resetting without
// a prior verify is rejected.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	email := normalizeEmail(req.Email)
	if len(req.NewPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if err := s.codes.RedeemTicket(email, req.ResetTicket); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, email, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password reset", zap.String("email", email))
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
