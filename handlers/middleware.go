package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"geochat/models"
	"geochat/utils"

	"github.com/go-chi/chi/v5/middleware"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const UserKey ContextKey = "user"

// NewStructuredLogger logs one line per request with the outcome and timing.
func NewStructuredLogger(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := utils.GetTime()
			defer func() {
				logger.Info("Request handled",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
					"remote_ip", utils.GetIPAddress(r, trustProxy),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// BasicAuth verifies HTTP Basic credentials and stores the account in the request context.
// Failed attempts draw from a per-address budget; once it is spent the address gets 429
// until the budget refills, whatever credentials it sends.
func BasicAuth(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="geochat"`)
				respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"}, app)
				return
			}
			ip := clientIP(app, r)
			failures := app.RateLimiter().GetLimiter("auth:" + ip)
			if failures.Tokens() < 1 {
				app.Logger().Warn("Authentication throttled", "remote_ip", ip, "path", r.URL.Path)
				respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many failed attempts"}, app)
				return
			}
			user, err := app.Auth().Authenticate(r.Context(), username, password)
			if err != nil {
				if errors.Is(err, models.ErrAuthenticationFailed) {
					failures.Allow()
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="geochat"`)
				respondError(w, r, app, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the account BasicAuth attached to the request.
func currentUser(r *http.Request) models.User {
	u, _ := r.Context().Value(UserKey).(models.User)
	return u
}

// RequireAdmin rejects accounts without the admin flag. It must run after BasicAuth.
func RequireAdmin(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !currentUser(r).IsAdmin {
				respondError(w, r, app, models.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the caller's address, read from forwarding headers only behind a trusted proxy.
func clientIP(app App, r *http.Request) string { return utils.GetIPAddress(r, app.TrustProxy()) }

func ipKey(app App) func(*http.Request) string {
	return func(r *http.Request) string { return "ip:" + clientIP(app, r) }
}

func userKey(r *http.Request) string { return "user:" + strconv.FormatInt(currentUser(r).ID, 10) }

// RateLimit answers 429 once the caller identified by key has exhausted its budget.
func RateLimit(app App, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !app.RateLimiter().Allow(k) {
				app.Logger().Warn("Rate limit exceeded", "key", k, "path", r.URL.Path)
				respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"}, app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
