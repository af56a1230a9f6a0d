package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/cryptox"
	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/auth"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/cateringhub/backoffice/internal/server/repositories/repomanager"
)

// MinPasswordLength is enforced on registration and password reset.
const MinPasswordLength = 8

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordLink(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct {
	Log logging.Logger
}

func (m LogMailer) SendPasswordLink(ctx context.Context, email, link string) error {
	m.Log.Info(ctx, "password reset link", "email", email, "link", link)
	return nil
}

// UserService provides account operations: register, login, principal
// lookup and password reset.
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	tokens      *RefreshTokenService
	mailer      Mailer
	log         logging.Logger

	passwordResetValidityDuration time.Duration
	passwordResetURL              string

	// dummyHash is compared against when the user does not exist so that
	// login timing does not reveal registered emails.
	dummyHash string
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, codec *auth.Codec, tokens *RefreshTokenService, mailer Mailer, cfg *config.Config, log logging.Logger) *UserService {
	dummy, _ := cryptox.HashPassword([]byte("not-a-real-password"))
	return &UserService{
		tx:                            tx,
		repomanager:                   m,
		codec:                         codec,
		tokens:                        tokens,
		mailer:                        mailer,
		log:                           log.With("module", "users"),
		passwordResetValidityDuration: cfg.PasswordResetValidityDuration,
		passwordResetURL:              cfg.PasswordResetURL,
		dummyHash:                     dummy,
	}
}

// Register creates a user with the given email, password and roles.
func (s *UserService) Register(ctx context.Context, email, password string, roles []string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	user := &models.User{Email: email, PasswordHash: hash, RolesText: models.JoinRoles(roles)}
	u, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login verifies the credentials and returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.tx.Conn()).GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.CheckPassword(s.dummyHash, []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	if !cryptox.CheckPassword(user.PasswordHash, []byte(password)) {
		return nil, common.ErrorUnauthorized
	}
	if user.Disabled {
		return nil, common.ErrUserDisabled
	}
	return s.tokens.NewPair(ctx, user)
}

// Principal returns the user with the given id.
func (s *UserService) Principal(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetByID(ctx, userID)
}

// SetDisabled enables or disables the account with the given email.
// Disabling also revokes every refresh token of the account.
func (s *UserService) SetDisabled(ctx context.Context, email string, disabled bool) error {
	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).SetDisabled(ctx, user.ID, disabled); err != nil {
			return err
		}
		if disabled {
			if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, user.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// SendPasswordLink mails a single-purpose reset link. The link is bound to
// the current password and stops working once the password changes. Unknown
// emails are silently ignored so the endpoint does not reveal which accounts
// exist.
func (s *UserService) SendPasswordLink(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.tx.Conn()).GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "password link requested for unknown email")
			return nil
		}
		return fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	if user.Disabled {
		return nil
	}

	claims := auth.Claims{
		Purpose:  common.PurposePasswordReset,
		Password: cryptox.PasswordFingerprint(user.PasswordHash),
	}
	tok, err := s.codec.Encode(user.ID, claims, s.passwordResetValidityDuration)
	if err != nil {
		return fmt.Errorf("%w: sign reset token: %w", common.ErrorInternal, err)
	}

	link, err := url.Parse(s.passwordResetURL)
	if err != nil {
		return fmt.Errorf("%w: bad password reset url: %w", common.ErrorInternal, err)
	}
	q := link.Query()
	q.Set("token", tok)
	link.RawQuery = q.Encode()

	return s.mailer.SendPasswordLink(ctx, user.Email, link.String())
}

// ResetPassword sets a new password using a reset token and revokes every
// refresh token of the account, signing out all sessions.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return err
	}
	if claims.Purpose != common.PurposePasswordReset || claims.Password == "" {
		return common.ErrInvalidToken
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		user, err := users.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		if subtle.ConstantTimeCompare([]byte(cryptox.PasswordFingerprint(user.PasswordHash)), []byte(claims.Password)) != 1 {
			return common.ErrInvalidToken
		}
		// a concurrent reset with the same link loses here
		if err := users.UpdatePassword(ctx, user.ID, user.PasswordHash, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		n, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, claims.Subject)
		if err != nil {
			return err
		}
		s.log.Info(ctx, "password reset", "user_id", claims.Subject, "revoked_refresh_tokens", n)
		return nil
	})
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return "", fmt.Errorf("%w: invalid email %q", common.ErrorValidation, email)
	}
	return addr.Address, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	return nil
}
