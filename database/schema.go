package database

// schema is written in the SQLite dialect. Postgres types are substituted by schema().
const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password BLOB NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	logged_in BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL
);
-- A thread is one conversation between an unordered pair of users. Rows are never deleted.
CREATE TABLE IF NOT EXISTS threads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL
);
-- body is always ciphertext
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body BLOB NOT NULL,
	sent_at DATETIME NOT NULL,
	thread_id BIGINT NOT NULL REFERENCES threads(id)
);
-- body is ciphertext exactly when is_encrypted is set
CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	topic TEXT NOT NULL,
	body BLOB NOT NULL,
	location TEXT NOT NULL,
	is_private BOOLEAN NOT NULL DEFAULT FALSE,
	is_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
	is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
	anonymous_username TEXT,
	username TEXT NOT NULL,
	posted_at DATETIME NOT NULL
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_comments_user ON comments(user_id);
`

// schema returns the base schema in the active driver's dialect.
func (ds *DatabaseService) schema() string {
	if ds.driver == DriverPostgres {
		return postgresSchema.Replace(schema)
	}
	return schema
}
