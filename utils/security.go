// geochat/utils/security.go
package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode"

	"geochat/config"
)

// GetIPAddress extracts the client IP address from a request. Forwarding headers
// are only read when trustProxy is set.
func GetIPAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
			return cf
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ValidateUsername checks length and that only ASCII letters and digits are used.
func ValidateUsername(username string) error {
	if len(username) < config.MinUsernameLen || len(username) > config.MaxUsernameLen {
		return fmt.Errorf("username must be between %d and %d characters", config.MinUsernameLen, config.MaxUsernameLen)
	}
	for _, r := range username {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return fmt.Errorf("username may only contain letters and digits")
		}
	}
	return nil
}

// ValidatePassword checks that a password is usable with bcrypt.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	if len(password) > config.MaxPasswordLen {
		return fmt.Errorf("password must be at most %d bytes", config.MaxPasswordLen)
	}
	return nil
}
