// geochat/handlers/handlers.go

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"geochat/auth"
	"geochat/comments"
	"geochat/config"
	"geochat/database"
	"geochat/messaging"
	"geochat/models"
	"geochat/realtime"
	"geochat/vault"

	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 20

// App is an interface that defines the dependencies our handlers need.
type App interface {
	DB() *database.DatabaseService
	Logger() *slog.Logger
	RateLimiter() *models.RateLimiter
	Auth() *auth.Service
	Threads() *messaging.ThreadRegistry
	Messages() *messaging.MessageStore
	Comments() *comments.Store
	Hub() *realtime.Hub
	Storage() models.StorageService
	// TrustProxy reports whether client addresses may be taken from forwarding headers.
	TrustProxy() bool
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// statusFor maps a domain error onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrPrecondition):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrAuthenticationFailed):
		return http.StatusUnauthorized, models.ErrAuthenticationFailed.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, models.ErrForbidden.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrNotFound.Error()
	case errors.Is(err, models.ErrUsernameTaken):
		return http.StatusConflict, models.ErrUsernameTaken.Error()
	case errors.Is(err, vault.ErrDecryption):
		return http.StatusInternalServerError, "stored data could not be decrypted"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondError(w http.ResponseWriter, r *http.Request, app App, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		app.Logger().Error("Request failed", "path", r.URL.Path, "storage", database.IsStorageError(err), "error", err)
	}
	respondJSON(w, status, errorResponse{Error: msg}, app)
}

// MakeHandler adapts an App-aware handler to http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrPrecondition, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", models.ErrPrecondition, name)
	}
	return id, nil
}

// HandleHealth reports liveness and whether the database answers.
func HandleHealth(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.DB().Ping(r.Context()); err != nil {
		app.Logger().Warn("Health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": config.AppVersion}, app)
}
