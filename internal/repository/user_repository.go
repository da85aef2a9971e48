package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/contacts-auth/internal/model"
)

const mysqlDuplicateEntry = 1062

const userColumns = "id,username,email,password_hash,role,confirmed,refresh_token,created_at,updated_at"

// UserRepo is the MySQL-backed identity store. Lookups return nil, nil when
// no row matches.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo returns a repo over an open pool.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and reads back the stored row.
func (r *UserRepo) Create(ctx context.Context, u model.NewUser) (*model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, string(u.Role))
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	created, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("insert user: row %d not found after insert", id)
	}
	return created, nil
}

// FindByEmail fetches a user by exact email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// UpdateRefreshToken stores the digest of the current refresh token. A nil
// token clears it.
func (r *UserRepo) UpdateRefreshToken(ctx context.Context, id int64, token *string) error {
	var v sql.NullString
	if token != nil {
		v = sql.NullString{String: *token, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=? WHERE id=?", v, id)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	return nil
}

// UpdateConfirmed marks the account confirmed. There is no way back.
func (r *UserRepo) UpdateConfirmed(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET confirmed=TRUE WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("update confirmed: %w", err)
	}
	return nil
}

// UpdateRole stores role as given; callers apply the bootstrap rule.
func (r *UserRepo) UpdateRole(ctx context.Context, id int64, role model.Role) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET role=? WHERE id=?", string(role), id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// UpdateEmail changes the address and stores role alongside it, so the
// bootstrap-address rule is applied in the same statement. A taken address
// yields ErrEmailExists.
func (r *UserRepo) UpdateEmail(ctx context.Context, id int64, email string, role model.Role) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET email=?, role=? WHERE id=?", email, string(role), id)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("update email: %w", err)
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u       model.User
		role    string
		refresh sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role,
		&u.Confirmed, &refresh, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	if refresh.Valid {
		s := refresh.String
		u.RefreshToken = &s
	}
	return &u, nil
}
