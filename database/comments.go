package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geochat/config"
	"geochat/models"
)

const commentColumns = "id, user_id, topic, body, location, is_private, is_encrypted, is_anonymous, anonymous_username, username, posted_at"

func scanComment(row interface{ Scan(...any) error }, c *models.StoredComment) error {
	var anon sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Topic, &c.Body, &c.Location,
		&c.IsPrivate, &c.IsEncrypted, &c.IsAnonymous, &anon, &c.Username, &c.PostedAt)
	if err != nil {
		return err
	}
	if anon.Valid {
		c.AnonymousUsername = &anon.String
	}
	return nil
}

// InsertComment persists one comment. The author name is resolved from UserID
// inside the same transaction unless the comment is anonymous.
func (ds *DatabaseService) InsertComment(ctx context.Context, c models.StoredComment) (models.StoredComment, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.StoredComment{}, storageErr("insert comment", err)
	}
	defer ds.rollback(tx, "insert comment")

	var username string
	err = tx.QueryRowContext(ctx, ds.q("SELECT username FROM users WHERE id = ?"), c.UserID).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredComment{}, fmt.Errorf("user %d: %w", c.UserID, models.ErrNotFound)
	}
	if err != nil {
		return models.StoredComment{}, storageErr("insert comment", err)
	}
	if c.IsAnonymous {
		username = config.AnonymousUsername
	}
	c.Username = username

	err = tx.QueryRowContext(ctx, ds.q(`
		INSERT INTO comments (user_id, topic, body, location, is_private, is_encrypted, is_anonymous, anonymous_username, username, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		c.UserID, c.Topic, c.Body, c.Location, c.IsPrivate, c.IsEncrypted, c.IsAnonymous, c.AnonymousUsername, c.Username, c.PostedAt).Scan(&c.ID)
	if err != nil {
		return models.StoredComment{}, storageErr("insert comment", err)
	}
	if err := tx.Commit(); err != nil {
		return models.StoredComment{}, storageErr("insert comment", err)
	}
	return c, nil
}

func (ds *DatabaseService) GetComment(ctx context.Context, id int64) (models.StoredComment, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var c models.StoredComment
	err := scanComment(ds.DB.QueryRowContext(ctx, ds.q("SELECT "+commentColumns+" FROM comments WHERE id = ?"), id), &c)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredComment{}, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.StoredComment{}, storageErr("get comment", err)
	}
	return c, nil
}

// GetVisibleComments returns every public comment plus the requester's own private ones.
func (ds *DatabaseService) GetVisibleComments(ctx context.Context, requesterID int64) ([]models.StoredComment, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	rows, err := ds.DB.QueryContext(ctx, ds.q("SELECT "+commentColumns+" FROM comments WHERE is_private = ? OR user_id = ? ORDER BY id ASC"), false, requesterID)
	if err != nil {
		return nil, storageErr("list comments", err)
	}
	defer ds.closeRows(rows, "list comments")

	comments := []models.StoredComment{}
	for rows.Next() {
		var c models.StoredComment
		if err := scanComment(rows, &c); err != nil {
			return nil, storageErr("list comments", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list comments", err)
	}
	return comments, nil
}

// UpdateCommentPrivacy loads one comment owned by ownerID, lets mutate rewrite its
// body and flags, and stores the result, all in one transaction.
func (ds *DatabaseService) UpdateCommentPrivacy(ctx context.Context, commentID, ownerID int64, mutate func(*models.StoredComment) error) (models.StoredComment, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.StoredComment{}, storageErr("update comment privacy", err)
	}
	defer ds.rollback(tx, "update comment privacy")

	var c models.StoredComment
	err = scanComment(tx.QueryRowContext(ctx, ds.q("SELECT "+commentColumns+" FROM comments WHERE id = ?"), commentID), &c)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredComment{}, fmt.Errorf("comment %d: %w", commentID, models.ErrNotFound)
	}
	if err != nil {
		return models.StoredComment{}, storageErr("update comment privacy", err)
	}
	if c.UserID != ownerID {
		return models.StoredComment{}, fmt.Errorf("comment %d: %w", commentID, models.ErrForbidden)
	}

	if err := mutate(&c); err != nil {
		return models.StoredComment{}, err
	}

	_, err = tx.ExecContext(ctx, ds.q("UPDATE comments SET body = ?, is_private = ?, is_encrypted = ? WHERE id = ?"),
		c.Body, c.IsPrivate, c.IsEncrypted, c.ID)
	if err != nil {
		return models.StoredComment{}, storageErr("update comment privacy", err)
	}
	if err := tx.Commit(); err != nil {
		return models.StoredComment{}, storageErr("update comment privacy", err)
	}
	return c, nil
}
