// geochat/config/config.go
package config

import "time"

const (
	AppVersion = "0.9.0"

	// Account Limits
	MinUsernameLen = 3
	MaxUsernameLen = 20
	MaxPasswordLen = 72 // bcrypt ignores anything past 72 bytes

	// Comment & Message Limits
	MaxTopicLen    = 100
	MaxCommentLen  = 500 // characters, not bytes
	MaxLocationLen = 150
	MaxMessageLen  = 4000

	// AnonymousUsername is stored in the username column and displayed in place of the author for anonymous comments.
	AnonymousUsername = "Anonymous"
	// CommentTimeFormat renders comment timestamps as day/month/year hour:minute.
	CommentTimeFormat = "02/01/06 15:04"

	// Database Defaults
	DefaultDBDriver  = "sqlite3"
	DefaultDBPath    = "./geochat.db?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	DefaultDBTimeout = "5s"

	// Geocoding Defaults
	DefaultOpenCageURL = "https://api.opencagedata.com"
	GeocodeTimeout     = 10 * time.Second
	GeocodeWorkers     = 4
	MaxSuggestions     = 10

	// Lock Defaults
	DefaultLockTTL    = "10s"
	LockRetryInterval = 25 * time.Millisecond

	// Rate Limiting Defaults
	DefaultRateLimitEvery  = "2s"
	DefaultRateLimitBurst  = 10
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"
)
