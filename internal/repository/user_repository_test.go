package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/contacts-auth/internal/model"
)

var (
	selectByEmail = regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE email=? LIMIT 1")
	selectByID    = regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1")
	columns       = []string{"id", "username", "email", "password_hash", "role", "confirmed", "refresh_token", "created_at", "updated_at"}
	stamp         = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
)

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows(columns).
		AddRow(int64(7), "alice", "a@x.com", "hash", "moderator", true, "digest", stamp, stamp)
	mock.ExpectQuery(selectByEmail).WithArgs("a@x.com").WillReturnRows(rows)

	u, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, model.RoleModerator, u.Role)
	assert.True(t, u.Confirmed)
	require.NotNil(t, u.RefreshToken)
	assert.Equal(t, "digest", *u.RefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NullRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows(columns).
		AddRow(int64(7), "alice", "a@x.com", "hash", "user", false, nil, stamp, stamp)
	mock.ExpectQuery(selectByEmail).WithArgs("a@x.com").WillReturnRows(rows)

	u, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Nil(t, u.RefreshToken)
}

func TestFindByEmail_Absent(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectByEmail).WithArgs("nobody@x.com").WillReturnError(sql.ErrNoRows)

	u, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFindByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectByID).WithArgs(int64(1)).WillReturnError(errors.New("db down"))

	u, err := repo.FindByID(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, u)
	assert.Contains(t, err.Error(), "db down")
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)")).
		WithArgs("alice", "a@x.com", "hash", "user").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(selectByID).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(42), "alice", "a@x.com", "hash", "user", false, nil, stamp, stamp))

	u, err := repo.Create(context.Background(), model.NewUser{
		Username: "alice", Email: "a@x.com", PasswordHash: "hash", Role: model.RoleUser,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.False(t, u.Confirmed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.Create(context.Background(), model.NewUser{Email: "a@x.com", PasswordHash: "h", Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUpdateRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := regexp.QuoteMeta("UPDATE users SET refresh_token=? WHERE id=?")

	digest := "abc"
	mock.ExpectExec(q).WithArgs("abc", int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(nil, int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateRefreshToken(context.Background(), 3, &digest))
	require.NoError(t, repo.UpdateRefreshToken(context.Background(), 3, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConfirmedRoleDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET confirmed=TRUE WHERE id=?")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role=? WHERE id=?")).
		WithArgs("admin", int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id=?")).
		WithArgs(int64(5)).WillReturnError(errors.New("locked"))

	require.NoError(t, repo.UpdateConfirmed(ctx, 5))
	require.NoError(t, repo.UpdateRole(ctx, 5, model.RoleAdmin))
	err := repo.Delete(ctx, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete user")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()
	q := regexp.QuoteMeta("UPDATE users SET email=?, role=? WHERE id=?")

	mock.ExpectExec(q).WithArgs("admin@ex.ua", "admin", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("taken@x.com", "user", int64(4)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectExec(q).WithArgs("b@x.com", "user", int64(4)).
		WillReturnError(errors.New("gone away"))

	require.NoError(t, repo.UpdateEmail(ctx, 4, "admin@ex.ua", model.RoleAdmin))
	assert.ErrorIs(t, repo.UpdateEmail(ctx, 4, "taken@x.com", model.RoleUser), ErrEmailExists)
	err := repo.UpdateEmail(ctx, 4, "b@x.com", model.RoleUser)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
