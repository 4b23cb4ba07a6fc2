// geochat/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geochat/auth"
	"geochat/comments"
	"geochat/config"
	"geochat/database"
	"geochat/geo"
	"geochat/handlers"
	"geochat/locks"
	"geochat/messaging"
	"geochat/models"
	"geochat/realtime"
	"geochat/utils"
	"geochat/vault"

	"golang.org/x/crypto/bcrypt"
)

type Application struct {
	db          *database.DatabaseService
	logger      *slog.Logger
	rateLimiter *models.RateLimiter
	auth        *auth.Service
	threads     *messaging.ThreadRegistry
	messages    *messaging.MessageStore
	comments    *comments.Store
	hub         *realtime.Hub
	storage     models.StorageService
	trustProxy  bool
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService      { return a.db }
func (a *Application) Logger() *slog.Logger               { return a.logger }
func (a *Application) RateLimiter() *models.RateLimiter   { return a.rateLimiter }
func (a *Application) Auth() *auth.Service                { return a.auth }
func (a *Application) Threads() *messaging.ThreadRegistry { return a.threads }
func (a *Application) Messages() *messaging.MessageStore  { return a.messages }
func (a *Application) Comments() *comments.Store          { return a.comments }
func (a *Application) Hub() *realtime.Hub                 { return a.hub }
func (a *Application) Storage() models.StorageService     { return a.storage }
func (a *Application) TrustProxy() bool                   { return a.trustProxy }

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error("FATAL: "+msg, args...)
	os.Exit(1)
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(utils.GetEnv("GEOCHAT_LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func encryptionKey() string {
	if key := utils.GetEnv("GEOCHAT_ENCRYPTION_KEY", ""); key != "" {
		return key
	}
	return utils.GetEnv("ENCRYPTION_KEY", "")
}

func newLocker(logger *slog.Logger) (locks.Locker, func()) {
	redisURL := utils.GetEnv("REDIS_URL", "")
	if redisURL == "" {
		logger.Info("Using in-process locks")
		return locks.NewKeyedMutex(), func() {}
	}
	ttl := utils.GetEnvDuration(logger, "GEOCHAT_LOCK_TTL", config.DefaultLockTTL)
	locker, err := locks.NewRedisLocker(redisURL, ttl, config.LockRetryInterval, logger)
	if err != nil {
		fatal(logger, "Could not connect to Redis", "error", err)
	}
	logger.Info("Using Redis locks", "ttl", ttl)
	return locker, func() {
		if err := locker.Close(); err != nil {
			logger.Error("Failed to close Redis client", "error", err)
		}
	}
}

func newResolver(logger *slog.Logger) geo.Resolver {
	apiKey := utils.GetEnv("GEOCHAT_OPENCAGE_KEY", "")
	if apiKey == "" {
		logger.Warn("GEOCHAT_OPENCAGE_KEY not set, map view will be empty")
		return geo.Static{}
	}
	baseURL := utils.GetEnv("GEOCHAT_OPENCAGE_URL", config.DefaultOpenCageURL)
	return geo.NewCache(geo.NewOpenCage(baseURL, apiKey, config.GeocodeTimeout))
}

func newStorage(ctx context.Context, logger *slog.Logger) models.StorageService {
	if utils.GetEnvBool("GEOCHAT_S3_ENABLED", false) {
		endpoint := utils.GetEnv("GEOCHAT_S3_ENDPOINT", "")
		bucket := utils.GetEnv("GEOCHAT_S3_BUCKET", "")
		storage, err := utils.NewS3Storage(ctx,
			endpoint,
			utils.GetEnv("GEOCHAT_S3_ACCESS_KEY", ""),
			utils.GetEnv("GEOCHAT_S3_SECRET_KEY", ""),
			bucket,
			utils.GetEnv("GEOCHAT_S3_REGION", "us-east-1"),
			"backups",
			utils.GetEnvBool("GEOCHAT_S3_USE_SSL", true),
		)
		if err != nil {
			fatal(logger, "Failed to initialize S3 storage", "error", err)
		}
		logger.Info("S3 Storage initialized", "endpoint", endpoint, "bucket", bucket)
		return storage
	}

	dir := utils.GetEnv("GEOCHAT_BACKUP_DIR", "./backups")
	storage, err := utils.NewLocalStorage(dir)
	if err != nil {
		fatal(logger, "Could not create backup directory", "path", dir, "error", err)
	}
	logger.Info("Local Storage initialized", "dir", dir)
	return storage
}

// runBackups snapshots the database every interval until ctx is cancelled.
func runBackups(ctx context.Context, app *Application, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.db.BackupDatabase(ctx, app.storage); err != nil {
				app.logger.Error("Scheduled backup failed", "error", err)
			}
		}
	}
}

func main() {
	genKey := flag.Bool("genkey", false, "print a fresh encryption key and exit")
	flag.Parse()

	if *genKey {
		key, err := vault.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, "could not generate key:", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	logger := newLogger()
	slog.SetDefault(logger)

	// --- External Configuration ---
	port := utils.GetEnv("GEOCHAT_PORT", "8080")
	dbDriver := utils.GetEnv("GEOCHAT_DB_DRIVER", config.DefaultDBDriver)
	dbPath := utils.GetEnv("GEOCHAT_DB_PATH", config.DefaultDBPath)
	dbTimeout := utils.GetEnvDuration(logger, "GEOCHAT_DB_TIMEOUT", config.DefaultDBTimeout)

	rateLimitEvery := utils.GetEnvDuration(logger, "GEOCHAT_RATE_EVERY", config.DefaultRateLimitEvery)
	rateLimitBurst := utils.GetEnvInt(logger, "GEOCHAT_RATE_BURST", config.DefaultRateLimitBurst)
	rateLimitPrune := utils.GetEnvDuration(logger, "GEOCHAT_RATE_PRUNE", config.DefaultRateLimitPrune)
	rateLimitExpire := utils.GetEnvDuration(logger, "GEOCHAT_RATE_EXPIRE", config.DefaultRateLimitExpire)

	rawKey := encryptionKey()
	if rawKey == "" {
		fatal(logger, "GEOCHAT_ENCRYPTION_KEY is not set; generate one with -genkey")
	}
	cipher, err := vault.NewFromString(rawKey)
	if err != nil {
		fatal(logger, "Invalid encryption key", "error", err)
	}

	dbService, err := database.InitDB(dbDriver, dbPath, logger)
	if err != nil {
		fatal(logger, "Failed to initialize database", "error", err)
	}
	dbService.SetTimeout(dbTimeout)
	defer func() {
		if err := dbService.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	authService, err := auth.NewService(dbService, bcrypt.DefaultCost, logger)
	if err != nil {
		fatal(logger, "Failed to initialize auth", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	locker, closeLocker := newLocker(logger)
	defer closeLocker()

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	threads := messaging.NewThreadRegistry(dbService, locker)
	app := &Application{
		db:          dbService,
		logger:      logger,
		rateLimiter: models.NewRateLimiter(rateLimitEvery, rateLimitBurst, rateLimitPrune, rateLimitExpire),
		auth:        authService,
		threads:     threads,
		messages:    messaging.NewMessageStore(dbService, cipher, threads, locker, hub, logger),
		comments:    comments.NewStore(dbService, cipher, newResolver(logger), logger),
		hub:         hub,
		storage:     newStorage(ctx, logger),
		trustProxy:  utils.GetEnvBool("GEOCHAT_TRUST_PROXY", false),
	}
	defer app.rateLimiter.Stop()

	if raw := utils.GetEnv("GEOCHAT_BACKUP_EVERY", ""); raw != "" {
		if dbDriver != database.DriverSQLite {
			logger.Warn("Scheduled backups are only supported for SQLite", "driver", dbDriver)
		} else {
			every := utils.GetEnvDuration(logger, "GEOCHAT_BACKUP_EVERY", "24h")
			go runBackups(ctx, app, every)
			logger.Info("Scheduled backups enabled", "every", every)
		}
	}

	// --- Graceful Shutdown ---
	server := &http.Server{Addr: ":" + port, Handler: handlers.SetupRouter(app)}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "Server failed unexpectedly", "error", err)
		}
	}()

	logger.Info("geochat server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+port,
		"driver", dbDriver,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exiting")
}
