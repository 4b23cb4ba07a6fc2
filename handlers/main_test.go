package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"geochat/auth"
	"geochat/comments"
	"geochat/database"
	"geochat/geo"
	"geochat/locks"
	"geochat/messaging"
	"geochat/models"
	"geochat/realtime"
	"geochat/utils"
	"geochat/vault"

	"golang.org/x/crypto/bcrypt"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
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
	backupDir   string
}

func (a *MockApplication) DB() *database.DatabaseService      { return a.db }
func (a *MockApplication) Logger() *slog.Logger               { return a.logger }
func (a *MockApplication) RateLimiter() *models.RateLimiter   { return a.rateLimiter }
func (a *MockApplication) Auth() *auth.Service                { return a.auth }
func (a *MockApplication) Threads() *messaging.ThreadRegistry { return a.threads }
func (a *MockApplication) Messages() *messaging.MessageStore  { return a.messages }
func (a *MockApplication) Comments() *comments.Store          { return a.comments }
func (a *MockApplication) Hub() *realtime.Hub                 { return a.hub }
func (a *MockApplication) Storage() models.StorageService     { return a.storage }
func (a *MockApplication) TrustProxy() bool                   { return a.trustProxy }

// setupTestApp creates a full application stack backed by a temporary database.
func setupTestApp(t *testing.T, burst int) *MockApplication {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dbPath := filepath.Join(t.TempDir(), "test.db?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	db, err := database.InitDB(database.DriverSQLite, dbPath, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	cipher, err := vault.NewFromString(key)
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}

	authService, err := auth.NewService(db, bcrypt.MinCost, logger)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	backupDir := t.TempDir()
	storage, err := utils.NewLocalStorage(backupDir)
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	locker := locks.NewKeyedMutex()
	threads := messaging.NewThreadRegistry(db, locker)
	resolver := geo.Static{"new haven": {Lat: 41.31, Lon: -72.92}}

	app := &MockApplication{
		db:          db,
		logger:      logger,
		rateLimiter: models.NewRateLimiter(time.Minute, burst, time.Hour, 24*time.Hour),
		auth:        authService,
		threads:     threads,
		messages:    messaging.NewMessageStore(db, cipher, threads, locker, hub, logger),
		comments:    comments.NewStore(db, cipher, resolver, logger),
		hub:         hub,
		storage:     storage,
		backupDir:   backupDir,
	}

	t.Cleanup(func() {
		cancel()
		app.rateLimiter.Stop()
		app.db.Close()
	})
	return app
}

type testUser struct {
	models.User
	password string
}

// registerUser creates an account through the API.
func registerUser(t *testing.T, handler http.Handler, username string) testUser {
	t.Helper()
	password := username + "-secret"
	rr := doRequest(t, handler, "POST", "/api/register", credentials{Username: username, Password: password}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Register %s: expected 201, got %d. Body: %s", username, rr.Code, rr.Body.String())
	}
	var u models.User
	decodeBody(t, rr, &u)
	return testUser{User: u, password: password}
}

// doRequest sends body as JSON, authenticating as user when one is given.
func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}, user *testUser) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.SetBasicAuth(user.Username, user.password)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}
