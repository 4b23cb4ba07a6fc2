package database

import (
	"context"
	"database/sql"
	"errors"

	"geochat/models"
	"geochat/utils"
)

// ResolveThread returns the thread of the most recent message exchanged between
// a and b, in either direction. found is false when the pair has never talked.
func (ds *DatabaseService) ResolveThread(ctx context.Context, a, b int64) (threadID int64, found bool, err error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	err = ds.DB.QueryRowContext(ctx, ds.q(`
		SELECT thread_id FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`), a, b, b, a).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("resolve thread", err)
	}
	return threadID, true, nil
}

// AllocateThread creates a new, empty thread and returns its id.
func (ds *DatabaseService) AllocateThread(ctx context.Context) (int64, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var id int64
	if err := ds.DB.QueryRowContext(ctx, ds.q("INSERT INTO threads (created_at) VALUES (?) RETURNING id"), utils.GetSQLTime()).Scan(&id); err != nil {
		return 0, storageErr("allocate thread", err)
	}
	return id, nil
}

// GetThreadIDsForUser lists the threads a user has sent or received messages in,
// most recently active first.
func (ds *DatabaseService) GetThreadIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	rows, err := ds.DB.QueryContext(ctx, ds.q(`
		SELECT thread_id FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		GROUP BY thread_id
		ORDER BY MAX(sent_at) DESC, thread_id DESC`), userID, userID)
	if err != nil {
		return nil, storageErr("list threads", err)
	}
	defer ds.closeRows(rows, "list threads")

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("list threads", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list threads", err)
	}
	return ids, nil
}

// GetConversationPartners lists the users userID has exchanged messages with,
// most recently active first.
func (ds *DatabaseService) GetConversationPartners(ctx context.Context, userID int64) ([]models.User, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	rows, err := ds.DB.QueryContext(ctx, ds.q(`
		SELECT u.id, u.username, u.password, u.is_admin, u.logged_in, u.created_at
		FROM users u
		JOIN (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner_id,
			       MAX(id) AS last_id
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
		) p ON p.partner_id = u.id
		ORDER BY p.last_id DESC`), userID, userID, userID, userID)
	if err != nil {
		return nil, storageErr("list partners", err)
	}
	defer ds.closeRows(rows, "list partners")

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			return nil, storageErr("list partners", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list partners", err)
	}
	return users, nil
}

// GetThreadParticipants lists the distinct users with messages in threadID.
// A thread that was never allocated yields models.ErrNotFound.
func (ds *DatabaseService) GetThreadParticipants(ctx context.Context, threadID int64) ([]int64, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var id int64
	err := ds.DB.QueryRowContext(ctx, ds.q("SELECT id FROM threads WHERE id = ?"), threadID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("thread participants", err)
	}

	rows, err := ds.DB.QueryContext(ctx, ds.q(`
		SELECT sender_id FROM messages WHERE thread_id = ?
		UNION
		SELECT receiver_id FROM messages WHERE thread_id = ?`), threadID, threadID)
	if err != nil {
		return nil, storageErr("thread participants", err)
	}
	defer ds.closeRows(rows, "thread participants")

	ids := []int64{}
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, storageErr("thread participants", err)
		}
		ids = append(ids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("thread participants", err)
	}
	return ids, nil
}
