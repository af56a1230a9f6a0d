package services

import (
	"context"
	"testing"
	"time"

	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/auth"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/cateringhub/backoffice/internal/server/repositories/refreshtokens"
	"github.com/cateringhub/backoffice/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.SecretKey = "k"
	c.MaxRefreshTokensPerUser = 3
	return &c
}

type fixture struct {
	cfg    *config.Config
	rm     *repomanager.MemoryRepositoryManager
	codec  *auth.Codec
	tokens *RefreshTokenService
	users  *UserService
	mailer *captureMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := newTestConfig()
	rm := repomanager.NewMemoryRepositoryManager()
	codec := auth.NewCodec([]byte(cfg.SecretKey))
	tokens := NewRefreshTokenService(dbx.NopTransactor{}, rm, codec, cfg, logging.Nop())
	mailer := &captureMailer{}
	users := NewUserService(dbx.NopTransactor{}, rm, codec, tokens, mailer, cfg, logging.Nop())
	return &fixture{cfg: cfg, rm: rm, codec: codec, tokens: tokens, users: users, mailer: mailer}
}

func (f *fixture) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), email, "correct horse", []string{models.RoleAdmin})
	require.NoError(t, err)
	return u
}

type captureMailer struct {
	email, link string
}

func (m *captureMailer) SendPasswordLink(_ context.Context, email, link string) error {
	m.email, m.link = email, link
	return nil
}

// failingTokens wraps a repository and fails selected calls.
type failingTokens struct {
	refreshtokens.Repository
	createErr error
}

func (f *failingTokens) Create(ctx context.Context, t *models.RefreshToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Repository.Create(ctx, t)
}

type fakeRepoManager struct {
	*repomanager.MemoryRepositoryManager
	tokens refreshtokens.Repository
}

func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }
