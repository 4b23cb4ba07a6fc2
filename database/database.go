// geochat/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"geochat/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	defaultTimeout = 5 * time.Second
)

// DatabaseService is the central struct for all database operations.
type DatabaseService struct {
	DB      *sql.DB
	logger  *slog.Logger
	driver  string
	dsn     string
	timeout time.Duration
}

// InitDB connects to the database and brings the schema up to date.
// driver is either DriverSQLite or DriverPostgres.
func InitDB(driver, dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverPostgres {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	ds := &DatabaseService{
		DB:      db,
		logger:  logger.With("component", "database", "driver", driver),
		driver:  driver,
		dsn:     dataSourceName,
		timeout: defaultTimeout,
	}

	// Run the base schema to ensure all tables exist.
	if _, err := db.ExecContext(ctx, ds.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := ds.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	ds.logger.Info("Database initialized.")
	return ds, nil
}

// SetTimeout bounds every subsequent store operation. Non-positive values are ignored.
func (ds *DatabaseService) SetTimeout(d time.Duration) {
	if d > 0 {
		ds.timeout = d
	}
}

// Driver reports which driver the service was opened with.
func (ds *DatabaseService) Driver() string { return ds.driver }

// Ping checks that the database is reachable.
func (ds *DatabaseService) Ping(ctx context.Context) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()
	if err := ds.DB.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (ds *DatabaseService) Close() error {
	return ds.DB.Close()
}

// opContext derives the bounded context every store operation runs under.
func (ds *DatabaseService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ds.timeout)
}

// q adapts a query written with ? placeholders to the active driver.
func (ds *DatabaseService) q(query string) string {
	return rebind(ds.driver, query)
}

// rollback is deferred after every BeginTx. It is a no-op once the tx is committed.
func (ds *DatabaseService) rollback(tx *sql.Tx, op string) {
	if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
		ds.logger.Error("Failed to rollback transaction", "op", op, "error", rerr)
	}
}

func (ds *DatabaseService) closeRows(rows *sql.Rows, op string) {
	if err := rows.Close(); err != nil {
		ds.logger.Error("Failed to close rows", "op", op, "error", err)
	}
}

// runMigrations applies all un-applied migrations, each in its own transaction.
func (ds *DatabaseService) runMigrations(ctx context.Context) error {
	var latestVersion uint
	err := ds.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	ds.logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version <= latestVersion {
			continue
		}
		if err := ds.applyMigration(ctx, m); err != nil {
			return err
		}
		ds.logger.Info("Successfully applied migration", "version", m.Version, "description", m.Description)
	}
	return nil
}

func (ds *DatabaseService) applyMigration(ctx context.Context, m migration) error {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "migration")

	if _, err := tx.ExecContext(ctx, m.Query); err != nil {
		return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, ds.q("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"), m.Version, utils.GetSQLTime()); err != nil {
		return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
	}
	return nil
}
