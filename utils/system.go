// geochat/utils/system.go
package utils

import (
	"time"

	"geochat/config"
)

// GetTime returns the current time. Useful for mocking in tests.
func GetTime() time.Time {
	return time.Now()
}

// GetSQLTime returns the current time in UTC for database storage.
func GetSQLTime() time.Time {
	return time.Now().UTC()
}

// CommentTimestamp renders t in the comment display format.
func CommentTimestamp(t time.Time) string {
	return t.Format(config.CommentTimeFormat)
}
