package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"geochat/models"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates an account from a JSON username and password.
func HandleRegister(w http.ResponseWriter, r *http.Request, app App) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	user, err := app.Auth().Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusCreated, user, app)
}

func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	user, err := app.Auth().Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrAuthenticationFailed) {
			app.Logger().Info("Failed login attempt", "remote_ip", clientIP(app, r))
		}
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, user, app)
}

func HandleLogout(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.Auth().Logout(r.Context(), currentUser(r).ID); err != nil {
		respondError(w, r, app, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accountUpdate struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// HandleUpdateMe changes the caller's username, password, or both.
func HandleUpdateMe(w http.ResponseWriter, r *http.Request, app App) {
	var req accountUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	if req.Username == nil && req.Password == nil {
		respondError(w, r, app, fmt.Errorf("%w: nothing to update", models.ErrPrecondition))
		return
	}

	me := currentUser(r)
	if req.Username != nil {
		if err := app.Auth().ChangeUsername(r.Context(), me.ID, *req.Username); err != nil {
			respondError(w, r, app, err)
			return
		}
	}
	if req.Password != nil {
		if err := app.Auth().ChangePassword(r.Context(), me.ID, *req.Password); err != nil {
			respondError(w, r, app, err)
			return
		}
	}

	user, err := app.Auth().GetUser(r.Context(), me.ID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, user, app)
}

// HandleDeleteMe removes the caller's account with all of its comments and messages.
func HandleDeleteMe(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.Auth().DeleteAccount(r.Context(), currentUser(r).ID); err != nil {
		respondError(w, r, app, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
