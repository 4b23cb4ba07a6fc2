// geochat/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version     uint
	Description string
	Query       string
}

// allMigrations holds all schema changes in order. Queries must be valid in both dialects.
var allMigrations = []migration{
	{
		Version:     1,
		Description: "conversation lookup indexes",
		Query: `
CREATE INDEX IF NOT EXISTS idx_messages_thread_sent ON messages(thread_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_messages_pair_sent ON messages(sender_id, receiver_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);
`,
	},
	{
		Version:     2,
		Description: "comment visibility index",
		Query:       `CREATE INDEX IF NOT EXISTS idx_comments_visibility ON comments(is_private, user_id);`,
	},
}
