// Package users stores back-office accounts for login and principal lookup.
package users

import (
	"context"

	"github.com/cateringhub/backoffice/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdatePassword replaces the password hash only while it still equals
	// oldHash; otherwise it returns common.ErrorNotFound.
	UpdatePassword(ctx context.Context, id string, oldHash, newHash string) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
