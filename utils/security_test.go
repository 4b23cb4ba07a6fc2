// geochat/utils/security_test.go
package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid", "alice42", false},
		{"Minimum Length", "abc", false},
		{"Maximum Length", strings.Repeat("a", 20), false},
		{"Too Short", "ab", true},
		{"Too Long", strings.Repeat("a", 21), true},
		{"Contains Space", "ali ce", true},
		{"Contains Symbol", "alice!", true},
		{"Non ASCII Letter", "alicé", true},
		{"Empty", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUsername(tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword(""); err == nil {
		t.Error("Expected empty password to be rejected")
	}
	if err := ValidatePassword(strings.Repeat("x", 73)); err == nil {
		t.Error("Expected over-long password to be rejected")
	}
	if err := ValidatePassword("hunter2"); err != nil {
		t.Errorf("Expected valid password, got %v", err)
	}
}

// TestGetIPAddress verifies header precedence when extracting the client address.
func TestGetIPAddress(t *testing.T) {
	testCases := []struct {
		name       string
		remoteAddr string
		trustProxy bool
		headers    map[string]string
		expected   string
	}{
		{"Remote Addr Only", "203.0.113.7:5555", true, nil, "203.0.113.7"},
		{"IPv6 Remote Addr", "[::1]:5555", false, nil, "::1"},
		{"Unparseable Remote Addr", "not-an-ip", false, nil, "not-an-ip"},
		{"X-Real-IP", "10.0.0.1:1", true, map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"X-Forwarded-For First Hop", "10.0.0.1:1", true, map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.2"}, "198.51.100.9"},
		{"Cloudflare Wins", "10.0.0.1:1", true, map[string]string{"CF-Connecting-IP": "192.0.2.44", "X-Real-IP": "198.51.100.2"}, "192.0.2.44"},
		{"Untrusted X-Forwarded-For", "10.0.0.1:1", false, map[string]string{"X-Forwarded-For": "198.51.100.9"}, "10.0.0.1"},
		{"Untrusted Cloudflare", "10.0.0.1:1", false, map[string]string{"CF-Connecting-IP": "192.0.2.44"}, "10.0.0.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := GetIPAddress(req, tc.trustProxy); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}
