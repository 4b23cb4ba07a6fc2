package handlers

import (
	"net/http"
)

// HandleDatabaseBackup snapshots the database into the configured storage.
func HandleDatabaseBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDatabaseBackup")
	location, err := app.DB().BackupDatabase(r.Context(), app.Storage())
	if err != nil {
		logger.Error("Failed to create database backup", "error", err)
		respondError(w, r, app, err)
		return
	}
	logger.Info("Database backup created successfully", "location", location, "admin_id", currentUser(r).ID)
	respondJSON(w, http.StatusOK, map[string]string{"location": location}, app)
}

// HandleWebsocket attaches the caller to the realtime feed.
func HandleWebsocket(w http.ResponseWriter, r *http.Request, app App) {
	app.Hub().ServeWs(w, r, currentUser(r).ID)
}
