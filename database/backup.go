package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"geochat/models"
	"geochat/utils"
)

// BackupDatabase takes an online snapshot of the live SQLite database using
// VACUUM INTO and hands it to storage. It returns the stored location.
func (ds *DatabaseService) BackupDatabase(ctx context.Context, storage models.StorageService) (string, error) {
	if ds.driver != DriverSQLite {
		return "", fmt.Errorf("online backup is only supported for %s", DriverSQLite)
	}
	if storage == nil {
		return "", fmt.Errorf("backup storage is not configured")
	}

	stagingDir, err := os.MkdirTemp("", "geochat-backup-*")
	if err != nil {
		return "", fmt.Errorf("could not create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			ds.logger.Error("Failed to remove backup staging directory", "path", stagingDir, "error", err)
		}
	}()

	filename := fmt.Sprintf("geochat_backup_%s.db", utils.GetSQLTime().Format("2006-01-02_15-04-05"))
	stagingPath := filepath.Join(stagingDir, filename)

	ds.logger.Info("Starting database backup", "file", filename)

	if _, err := ds.DB.ExecContext(ctx, "VACUUM INTO ?", stagingPath); err != nil {
		return "", storageErr("backup", err)
	}
	data, err := os.ReadFile(stagingPath)
	if err != nil {
		return "", fmt.Errorf("could not read backup snapshot: %w", err)
	}
	location, err := storage.SaveFile(ctx, filename, data, "application/vnd.sqlite3")
	if err != nil {
		return "", fmt.Errorf("could not store backup: %w", err)
	}

	ds.logger.Info("Database backup complete", "location", location, "bytes", len(data))
	return location, nil
}
