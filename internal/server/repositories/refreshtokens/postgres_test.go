package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenColumns = []string{"id", "user_id", "token_hash", "expires_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	expires := time.Now().Add(time.Hour)
	created := time.Now()
	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s+\(user_id,\s*token_hash,\s*expires_at\)\s+VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s+RETURNING\s+id,\s*created_at\s*$`
	mock.ExpectQuery(q).
		WithArgs("u1", "h1", expires).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("t1", created))

	tok := &models.RefreshToken{UserID: "u1", TokenHash: "h1", ExpiresAt: expires}
	require.NoError(t, repo.Create(context.Background(), tok))
	assert.Equal(t, "t1", tok.ID)
	assert.True(t, tok.CreatedAt.Equal(created))
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.RefreshToken{UserID: "u1", TokenHash: "h1"})
	require.ErrorContains(t, err, "db error: db down")
}

func TestFind(t *testing.T) {
	q := `(?s)SELECT\s+id,\s*user_id,\s*token_hash,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		expires := time.Now().Add(10 * time.Minute)
		mock.ExpectQuery(q).WithArgs("h1").
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("t1", "u1", "h1", expires, time.Now()))

		got, err := repo.Find(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.True(t, got.ExpiresAt.Equal(expires))
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.Find(context.Background(), "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("h1").WillReturnError(errors.New("boom"))

		_, err := repo.Find(context.Background(), "h1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestConsume(t *testing.T) {
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+RETURNING\s+id,\s*user_id,\s*token_hash,\s*expires_at,\s*created_at`

	t.Run("consumed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("h1").
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("t1", "u1", "h1", time.Now(), time.Now()))

		got, err := repo.Consume(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, "t1", got.ID)
	})

	t.Run("already consumed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("h1").WillReturnError(sql.ErrNoRows)

		_, err := repo.Consume(context.Background(), "h1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s*$`).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), "h1"))
}

func TestDeleteByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTrimUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+id\s+IN\s+\(\s*SELECT\s+id\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC\s+OFFSET\s+\$2\s*\)`
	mock.ExpectExec(q).
		WithArgs("u1", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.TrimUser(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT\s+COUNT\(\*\)\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFindExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	asOf := time.Now()
	mock.ExpectQuery(`(?s)SELECT\s+id,\s*user_id,\s*token_hash,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(asOf).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow("t1", "u1", "h1", asOf.Add(-time.Hour), asOf.Add(-2*time.Hour)).
			AddRow("t2", "u2", "h2", asOf.Add(-time.Second), asOf.Add(-time.Hour)))

	got, err := repo.FindExpired(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "h2", got[1].TokenHash)
}

func TestFindExpired_Empty(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+refresh_tokens\s+WHERE\s+expires_at`).
		WillReturnRows(sqlmock.NewRows(tokenColumns))

	got, err := repo.FindExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	asOf := time.Now()
	mock.ExpectExec(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(asOf).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens`).
		WillReturnError(errors.New("boom"))

	_, err := repo.DeleteExpired(context.Background(), time.Now())
	require.ErrorContains(t, err, "db error")
}
