package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geochat/models"
)

const messageColumns = "id, sender_id, receiver_id, thread_id, body, sent_at"

func scanMessage(row interface{ Scan(...any) error }, m *models.StoredMessage) error {
	return row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.ThreadID, &m.Ciphertext, &m.Timestamp)
}

// InsertMessage persists one message row and returns it with its generated id.
func (ds *DatabaseService) InsertMessage(ctx context.Context, m models.StoredMessage) (models.StoredMessage, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	err := ds.DB.QueryRowContext(ctx, ds.q("INSERT INTO messages (sender_id, receiver_id, body, sent_at, thread_id) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		m.SenderID, m.ReceiverID, m.Ciphertext, m.Timestamp, m.ThreadID).Scan(&m.ID)
	if err != nil {
		return models.StoredMessage{}, storageErr("insert message", err)
	}
	return m, nil
}

func (ds *DatabaseService) GetMessage(ctx context.Context, id int64) (models.StoredMessage, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var m models.StoredMessage
	err := scanMessage(ds.DB.QueryRowContext(ctx, ds.q("SELECT "+messageColumns+" FROM messages WHERE id = ?"), id), &m)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredMessage{}, fmt.Errorf("message %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.StoredMessage{}, storageErr("get message", err)
	}
	return m, nil
}

// GetThreadMessages returns the rows of threadID exchanged between a and b, oldest first.
func (ds *DatabaseService) GetThreadMessages(ctx context.Context, threadID, a, b int64) ([]models.StoredMessage, error) {
	return ds.queryMessages(ctx, "list thread messages", `
		SELECT `+messageColumns+` FROM messages
		WHERE thread_id = ?
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		ORDER BY sent_at ASC, id ASC`, threadID, a, b, b, a)
}

// GetRecentMessages returns the rows of threadID that userID sent or received, newest first.
// A non-positive limit returns every row.
func (ds *DatabaseService) GetRecentMessages(ctx context.Context, userID, threadID int64, limit int) ([]models.StoredMessage, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE thread_id = ? AND (sender_id = ? OR receiver_id = ?)
		ORDER BY sent_at DESC, id DESC`
	args := []any{threadID, userID, userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return ds.queryMessages(ctx, "list recent messages", query, args...)
}

func (ds *DatabaseService) queryMessages(ctx context.Context, op, query string, args ...any) ([]models.StoredMessage, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	rows, err := ds.DB.QueryContext(ctx, ds.q(query), args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer ds.closeRows(rows, op)

	msgs := []models.StoredMessage{}
	for rows.Next() {
		var m models.StoredMessage
		if err := scanMessage(rows, &m); err != nil {
			return nil, storageErr(op, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return msgs, nil
}

// DeleteMessage removes exactly one row and returns its ids. Body and timestamp are not returned.
func (ds *DatabaseService) DeleteMessage(ctx context.Context, id int64) (models.StoredMessage, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var m models.StoredMessage
	err := ds.DB.QueryRowContext(ctx, ds.q("DELETE FROM messages WHERE id = ? RETURNING id, sender_id, receiver_id, thread_id"), id).
		Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.ThreadID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredMessage{}, fmt.Errorf("message %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.StoredMessage{}, storageErr("delete message", err)
	}
	return m, nil
}

func (ds *DatabaseService) CountMessages(ctx context.Context) (int, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var n int
	if err := ds.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, storageErr("count messages", err)
	}
	return n, nil
}
