// Package httpapi serves the security endpoints and the bearer-token
// authentication middleware of the back office.
package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/auth"
	"github.com/cateringhub/backoffice/internal/server/metrics"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/cateringhub/backoffice/internal/server/services"
)

// maxRefreshAttempts bounds how many times an expired access token is
// replaced through the refresh token during one request.
const maxRefreshAttempts = 1

type TokenDecoder interface {
	Decode(token string) (*auth.Claims, error)
}

type TokenRotator interface {
	ValidateAndRotate(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type PrincipalLoader interface {
	Principal(ctx context.Context, userID string) (*models.User, error)
}

type OutcomeRecorder interface {
	AuthOutcome(outcome string)
}

// Authentication is a successful authentication. Rotated is set when the
// refresh token was exchanged on the way.
type Authentication struct {
	User    *models.User
	Claims  *auth.Claims
	Rotated *services.TokenPair
}

type Authenticator struct {
	decoder    TokenDecoder
	rotator    TokenRotator
	principals PrincipalLoader
	outcomes   OutcomeRecorder
	log        logging.Logger
}

func NewAuthenticator(d TokenDecoder, r TokenRotator, p PrincipalLoader, o OutcomeRecorder, log logging.Logger) *Authenticator {
	return &Authenticator{
		decoder:    d,
		rotator:    r,
		principals: p,
		outcomes:   o,
		log:        log.With("module", "authenticator"),
	}
}

// Authenticate resolves the principal behind accessToken. An expired access
// token is exchanged through refreshToken at most maxRefreshAttempts times.
//
// Failures are one of common.ErrMissingCredentials, common.ErrInvalidToken,
// common.ErrRefreshFailed or common.ErrUserDisabled. Storage failures while
// loading the principal are wrapped in common.ErrorInternal.
func (a *Authenticator) Authenticate(ctx context.Context, accessToken, refreshToken string) (*Authentication, error) {
	if accessToken == "" {
		a.outcome(metrics.AuthMissing)
		return nil, common.ErrMissingCredentials
	}

	var rotated *services.TokenPair
	for attempt := 0; ; attempt++ {
		claims, err := a.decoder.Decode(accessToken)
		switch {
		case err == nil:
			return a.principal(ctx, claims, rotated)

		case errors.Is(err, common.ErrTokenExpired):
			if attempt >= maxRefreshAttempts {
				a.log.Warn(ctx, "Rotated access token is already expired")
				a.outcome(metrics.AuthRefreshErr)
				return nil, common.ErrRefreshFailed
			}
			pair, err := a.rotator.ValidateAndRotate(ctx, refreshToken)
			if err != nil {
				if errors.Is(err, common.ErrUserDisabled) {
					a.outcome(metrics.AuthDisabled)
					return nil, common.ErrUserDisabled
				}
				a.log.Debug(ctx, "Refresh failed", "error", err)
				a.outcome(metrics.AuthRefreshErr)
				return nil, fmt.Errorf("%w: %w", common.ErrRefreshFailed, err)
			}
			rotated = pair
			accessToken, refreshToken = pair.AccessToken, pair.RefreshToken

		default:
			a.outcome(metrics.AuthInvalid)
			return nil, common.ErrInvalidToken
		}
	}
}

func (a *Authenticator) principal(ctx context.Context, claims *auth.Claims, rotated *services.TokenPair) (*Authentication, error) {
	if claims.Purpose != "" {
		a.outcome(metrics.AuthInvalid)
		return nil, common.ErrInvalidToken
	}

	user, err := a.principals.Principal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.outcome(metrics.AuthInvalid)
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: load principal: %w", common.ErrorInternal, err)
	}
	if user.Disabled {
		a.outcome(metrics.AuthDisabled)
		return nil, common.ErrUserDisabled
	}

	if rotated != nil {
		a.outcome(metrics.AuthRefreshed)
	} else {
		a.outcome(metrics.AuthOK)
	}
	return &Authentication{User: user, Claims: claims, Rotated: rotated}, nil
}

func (a *Authenticator) outcome(o string) {
	if a.outcomes != nil {
		a.outcomes.AuthOutcome(o)
	}
}
