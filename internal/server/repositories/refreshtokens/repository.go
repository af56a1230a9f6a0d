// Package refreshtokens persists refresh tokens. Tokens are addressed by the
// SHA-256 hash of their opaque value; the raw value never reaches storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/cateringhub/backoffice/internal/server/models"
)

type Repository interface {
	// Create inserts t and fills in its ID and CreatedAt.
	Create(ctx context.Context, t *models.RefreshToken) error
	// Find returns the token with the given hash or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// Consume atomically deletes and returns the token with the given hash.
	// Of several concurrent callers at most one gets the row; the others
	// get common.ErrorNotFound.
	Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// Delete removes the token if present. Deleting a missing token is not an error.
	Delete(ctx context.Context, tokenHash string) error
	// DeleteByUser removes every token of userID and returns the count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// TrimUser keeps the newest keep tokens of userID, deleting the rest.
	TrimUser(ctx context.Context, userID string, keep int) (int64, error)
	// CountByUser returns the number of stored tokens of userID.
	CountByUser(ctx context.Context, userID string) (int, error)
	// FindExpired lists tokens whose expiry is at or before asOf.
	FindExpired(ctx context.Context, asOf time.Time) ([]models.RefreshToken, error)
	// DeleteExpired removes tokens whose expiry is at or before asOf.
	DeleteExpired(ctx context.Context, asOf time.Time) (int64, error)
}
