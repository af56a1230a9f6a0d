package httpapi

import (
	"context"

	"github.com/cateringhub/backoffice/internal/server/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

func withPrincipal(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, principalKey, u)
}

// PrincipalFromContext returns the authenticated user stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(principalKey).(*models.User)
	return u, ok && u != nil
}
