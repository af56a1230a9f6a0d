// Package services contains server-side business logic: refresh token
// issue and rotation, user login and password reset, and recurring event
// generation.
package services

import (
	"context"
	"errors"
	"fmt"
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

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshTokenService issues, rotates and revokes refresh tokens and mints
// the access tokens that go with them.
type RefreshTokenService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	log         logging.Logger

	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	maxTokensPerUser             int

	now func() time.Time
}

func NewRefreshTokenService(tx dbx.Transactor, m repomanager.RepositoryManager, codec *auth.Codec, cfg *config.Config, log logging.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		tx:                           tx,
		repomanager:                  m,
		codec:                        codec,
		log:                          log.With("module", "refreshtokens"),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		maxTokensPerUser:             cfg.MaxRefreshTokensPerUser,
		now:                          time.Now,
	}
}

// Issue stores a new refresh token for userID and returns its raw value.
// Older tokens beyond the per-user cap are evicted, oldest first.
func (s *RefreshTokenService) Issue(ctx context.Context, userID string) (string, *models.RefreshToken, error) {
	var (
		raw string
		rt  *models.RefreshToken
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		raw, rt, err = s.issue(ctx, tx, userID)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return raw, rt, nil
}

// NewPair issues a refresh token and an access token for user. Used at login.
func (s *RefreshTokenService) NewPair(ctx context.Context, user *models.User) (*TokenPair, error) {
	raw, rt, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.AccessToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: raw, RefreshExpiresAt: rt.ExpiresAt}, nil
}

// AccessToken mints an access token carrying user's roles.
func (s *RefreshTokenService) AccessToken(user *models.User) (string, error) {
	tok, err := s.codec.Encode(user.ID, auth.Claims{Roles: user.Roles()}, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("%w: sign access token: %w", common.ErrorInternal, err)
	}
	return tok, nil
}

// ValidateAndRotate consumes the refresh token and issues a replacement
// plus a fresh access token, all in one transaction. The consume is a
// compare-and-delete, so of several callers presenting the same token at
// most one succeeds; the rest get ErrRefreshTokenNotFound.
func (s *RefreshTokenService) ValidateAndRotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrRefreshTokenNotFound
	}

	var pair *TokenPair
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		old, err := s.repomanager.RefreshTokens(tx).Consume(ctx, cryptox.HashToken(refreshToken))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrRefreshTokenNotFound
			}
			return fmt.Errorf("%w: %w", common.ErrRotationFailed, err)
		}
		if old.Expired(s.now()) {
			return common.ErrRefreshTokenExpired
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, old.UserID)
		if err != nil {
			return fmt.Errorf("%w: load user: %w", common.ErrRotationFailed, err)
		}
		if user.Disabled {
			return common.ErrUserDisabled
		}

		raw, rt, err := s.issue(ctx, tx, user.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrRotationFailed, err)
		}
		access, err := s.AccessToken(user)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrRotationFailed, err)
		}
		pair = &TokenPair{AccessToken: access, RefreshToken: raw, RefreshExpiresAt: rt.ExpiresAt}
		return nil
	})
	if err != nil {
		s.log.Debug(ctx, "refresh token rotation failed", "error", err)
		return nil, err
	}
	return pair, nil
}

// Revoke deletes the refresh token. Revoking an unknown token is not an error.
func (s *RefreshTokenService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repomanager.RefreshTokens(s.tx.Conn()).Delete(ctx, cryptox.HashToken(refreshToken))
}

// RevokeAll deletes every refresh token of userID.
func (s *RefreshTokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.repomanager.RefreshTokens(s.tx.Conn()).DeleteByUser(ctx, userID)
}

// FindExpired lists tokens that are expired as of asOf.
func (s *RefreshTokenService) FindExpired(ctx context.Context, asOf time.Time) ([]models.RefreshToken, error) {
	return s.repomanager.RefreshTokens(s.tx.Conn()).FindExpired(ctx, asOf)
}

// CleanupExpired deletes tokens expired as of asOf and returns how many
// were removed. Running it again with nothing new to remove returns 0.
func (s *RefreshTokenService) CleanupExpired(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.tx.Conn()).DeleteExpired(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	s.log.Info(ctx, "expired refresh tokens removed", "removed", n)
	return n, nil
}

func (s *RefreshTokenService) issue(ctx context.Context, tx dbx.DBTX, userID string) (string, *models.RefreshToken, error) {
	if s.refreshTokenValidityDuration <= 0 {
		return "", nil, fmt.Errorf("%w: refresh token validity must be positive", common.ErrorValidation)
	}

	raw, hash, err := cryptox.NewOpaqueToken()
	if err != nil {
		return "", nil, fmt.Errorf("%w: generate refresh token: %w", common.ErrorInternal, err)
	}

	repo := s.repomanager.RefreshTokens(tx)
	rt := &models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.refreshTokenValidityDuration),
	}
	if err := repo.Create(ctx, rt); err != nil {
		return "", nil, fmt.Errorf("store refresh token: %w", err)
	}

	if s.maxTokensPerUser > 0 {
		evicted, err := repo.TrimUser(ctx, userID, s.maxTokensPerUser)
		if err != nil {
			return "", nil, fmt.Errorf("evict refresh tokens: %w", err)
		}
		if evicted > 0 {
			s.log.Debug(ctx, "evicted refresh tokens over cap", "user_id", userID, "evicted", evicted)
		}
	}
	return raw, rt, nil
}
