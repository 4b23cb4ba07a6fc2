package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geochat/models"
	"geochat/utils"
)

const userColumns = "id, username, password, is_admin, logged_in, created_at"

func scanUser(row interface{ Scan(...any) error }, u *models.User) error {
	return row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.LoggedIn, &u.CreatedAt)
}

// CreateUser inserts a new account. The first account ever created is made admin.
func (ds *DatabaseService) CreateUser(ctx context.Context, username string, passwordHash []byte) (models.User, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, storageErr("create user", err)
	}
	defer ds.rollback(tx, "create user")

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return models.User{}, storageErr("create user", err)
	}

	u := models.User{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      count == 0,
		CreatedAt:    utils.GetSQLTime(),
	}
	err = tx.QueryRowContext(ctx, ds.q("INSERT INTO users (username, password, is_admin, logged_in, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		u.Username, u.PasswordHash, u.IsAdmin, false, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("%q: %w", username, models.ErrUsernameTaken)
		}
		return models.User{}, storageErr("create user", err)
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, storageErr("create user", err)
	}
	return u, nil
}

func (ds *DatabaseService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var u models.User
	err := scanUser(ds.DB.QueryRowContext(ctx, ds.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, storageErr("get user", err)
	}
	return u, nil
}

func (ds *DatabaseService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var u models.User
	err := scanUser(ds.DB.QueryRowContext(ctx, ds.q("SELECT "+userColumns+" FROM users WHERE username = ?"), username), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, storageErr("get user", err)
	}
	return u, nil
}

// UpdateUsername renames an account and the author name on its non-anonymous comments.
func (ds *DatabaseService) UpdateUsername(ctx context.Context, id int64, username string) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("update username", err)
	}
	defer ds.rollback(tx, "update username")

	res, err := tx.ExecContext(ctx, ds.q("UPDATE users SET username = ? WHERE id = ?"), username, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", username, models.ErrUsernameTaken)
		}
		return storageErr("update username", err)
	}
	if err := requireOneRow(res, fmt.Sprintf("user %d", id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ds.q("UPDATE comments SET username = ? WHERE user_id = ? AND is_anonymous = ?"), username, id, false); err != nil {
		return storageErr("update username", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("update username", err)
	}
	return nil
}

func (ds *DatabaseService) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	res, err := ds.DB.ExecContext(ctx, ds.q("UPDATE users SET password = ? WHERE id = ?"), passwordHash, id)
	if err != nil {
		return storageErr("update password", err)
	}
	return requireOneRow(res, fmt.Sprintf("user %d", id))
}

func (ds *DatabaseService) SetLoggedIn(ctx context.Context, id int64, loggedIn bool) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	res, err := ds.DB.ExecContext(ctx, ds.q("UPDATE users SET logged_in = ? WHERE id = ?"), loggedIn, id)
	if err != nil {
		return storageErr("set logged in", err)
	}
	return requireOneRow(res, fmt.Sprintf("user %d", id))
}

// DeleteUser removes an account together with its comments and messages.
func (ds *DatabaseService) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete user", err)
	}
	defer ds.rollback(tx, "delete user")

	if _, err := tx.ExecContext(ctx, ds.q("DELETE FROM comments WHERE user_id = ?"), id); err != nil {
		return storageErr("delete user", err)
	}
	if _, err := tx.ExecContext(ctx, ds.q("DELETE FROM messages WHERE sender_id = ? OR receiver_id = ?"), id, id); err != nil {
		return storageErr("delete user", err)
	}
	res, err := tx.ExecContext(ctx, ds.q("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return storageErr("delete user", err)
	}
	if err := requireOneRow(res, fmt.Sprintf("user %d", id)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("delete user", err)
	}
	return nil
}

// requireOneRow turns a zero-row update into models.ErrNotFound.
func requireOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}
