package comments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"geochat/database"
	"geochat/geo"
	"geochat/models"
	"geochat/utils"
	"geochat/vault"
)

type testEnv struct {
	db     *database.DatabaseService
	cipher *vault.Cipher
	store  *Store
	alice  models.User
	bob    models.User
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "test.db?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	db, err := database.InitDB(database.DriverSQLite, dbPath, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key, _ := vault.GenerateKey()
	cipher, err := vault.NewFromString(key)
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}

	resolver := geo.Static{
		"Paris":     {Lat: 48.8566, Lon: 2.3522},
		"New Haven": {Lat: 41.3083, Lon: -72.9279},
	}
	env := &testEnv{db: db, cipher: cipher, store: NewStore(db, cipher, resolver, logger)}

	ctx := context.Background()
	if env.alice, err = db.CreateUser(ctx, "alice", []byte("hash")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if env.bob, err = db.CreateUser(ctx, "bob", []byte("hash")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return env
}

func (env *testEnv) insert(t *testing.T, nc models.NewComment) models.Comment {
	t.Helper()
	c, err := env.store.Insert(context.Background(), nc)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return c
}

func TestInsertValidation(t *testing.T) {
	env := setupTestEnv(t)

	testCases := []struct {
		name string
		nc   models.NewComment
	}{
		{"Missing Author", models.NewComment{Topic: "t", Body: "b", Location: "Paris"}},
		{"Empty Topic", models.NewComment{UserID: env.alice.ID, Topic: " ", Body: "b", Location: "Paris"}},
		{"Empty Body", models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "", Location: "Paris"}},
		{"Empty Location", models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "b"}},
		{"Invalid Body", models.NewComment{UserID: env.alice.ID, Topic: "t", Body: string([]byte{0xc3, 0x28}), Location: "Paris"}},
		{"Oversized Body", models.NewComment{UserID: env.alice.ID, Topic: "t", Body: strings.Repeat("x", 501), Location: "Paris"}},
		{"Oversized Location", models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "b", Location: strings.Repeat("p", 151)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.store.Insert(context.Background(), tc.nc); !errors.Is(err, models.ErrPrecondition) {
				t.Errorf("Expected ErrPrecondition, got %v", err)
			}
		})
	}

	// The limit counts characters, so 500 two-byte runes still fit.
	env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: strings.Repeat("é", 500), Location: "Paris"})

	if _, err := env.store.Insert(context.Background(), models.NewComment{UserID: 9999, Topic: "t", Body: "b", Location: "Paris"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown author, got %v", err)
	}
}

func TestPrivateCommentIsEncrypted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "secret", Body: "meet at noon", Location: "Paris", IsPrivate: true})
	if !c.IsEncrypted || c.Body != "meet at noon" || c.Username != "alice" {
		t.Errorf("Unexpected returned comment: %+v", c)
	}

	stored, err := env.db.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetComment failed: %v", err)
	}
	if !stored.IsEncrypted || bytes.Equal(stored.Body, []byte("meet at noon")) {
		t.Errorf("Expected ciphertext at rest, got is_encrypted=%v body=%q", stored.IsEncrypted, stored.Body)
	}

	own, _ := env.store.ListVisible(ctx, env.alice.ID)
	if len(own) != 1 || own[0].Body != "meet at noon" {
		t.Errorf("Expected author to read plaintext, got %+v", own)
	}
	others, _ := env.store.ListVisible(ctx, env.bob.ID)
	if len(others) != 0 {
		t.Errorf("Expected other users not to see the private comment, got %+v", others)
	}
}

func TestAnonymousComment(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "who am i", Location: "Paris", IsAnonymous: true})
	stored, _ := env.db.GetComment(ctx, c.ID)
	if stored.Username != "Anonymous" || !stored.IsAnonymous {
		t.Errorf("Expected anonymous row, got username=%q is_anonymous=%v", stored.Username, stored.IsAnonymous)
	}
	if stored.IsEncrypted {
		t.Error("Expected public anonymous comment to stay plaintext")
	}
	if c.DisplayName() != "Anonymous" {
		t.Errorf("Expected display name Anonymous, got %q", c.DisplayName())
	}
	if len(c.Timestamp) != len("02/01/06 15:04") {
		t.Errorf("Unexpected timestamp format %q", c.Timestamp)
	}
}

func TestListVisibleDecryptionFailure(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "fine", Location: "Paris", IsPrivate: true})
	if _, err := env.db.InsertComment(ctx, models.StoredComment{
		UserID: env.alice.ID, Topic: "t", Body: []byte("garbage"), Location: "Paris",
		IsPrivate: true, IsEncrypted: true, PostedAt: utils.GetSQLTime(),
	}); err != nil {
		t.Fatalf("InsertComment failed: %v", err)
	}
	env.insert(t, models.NewComment{UserID: env.bob.ID, Topic: "t", Body: "public", Location: "Paris"})

	visible, err := env.store.ListVisible(ctx, env.alice.ID)
	if err != nil {
		t.Fatalf("ListVisible failed: %v", err)
	}
	if len(visible) != 3 {
		t.Fatalf("Expected 3 comments, got %d", len(visible))
	}
	if visible[0].Err != nil || visible[0].Body != "fine" {
		t.Errorf("Expected first comment readable, got %+v", visible[0])
	}
	if !errors.Is(visible[1].Err, vault.ErrDecryption) || visible[1].Body != "" {
		t.Errorf("Expected second comment to carry ErrDecryption, got %+v", visible[1])
	}
	if visible[2].Body != "public" {
		t.Errorf("Expected third comment readable, got %+v", visible[2])
	}

	found, _ := env.store.Search(ctx, env.alice.ID, "")
	if len(found) != 2 {
		t.Errorf("Expected undecryptable rows to be excluded from search, got %d results", len(found))
	}
}

func TestListWithLocations(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	paris := env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "croissant", Location: "Paris"})
	env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "lost", Location: "Atlantis"})
	haven := env.insert(t, models.NewComment{UserID: env.bob.ID, Topic: "t", Body: "pizza", Location: "new haven", IsAnonymous: true})

	mapped, err := env.store.ListWithLocations(ctx, env.alice.ID)
	if err != nil {
		t.Fatalf("ListWithLocations failed: %v", err)
	}
	if len(mapped) != 2 {
		t.Fatalf("Expected unresolvable location to be omitted, got %d entries", len(mapped))
	}
	if mapped[0].ID != paris.ID || mapped[0].Lat != 48.8566 {
		t.Errorf("Unexpected first entry %+v", mapped[0])
	}
	if mapped[1].ID != haven.ID || mapped[1].Lon != -72.9279 || mapped[1].DisplayName() != "Anonymous" {
		t.Errorf("Unexpected second entry %+v", mapped[1])
	}
}

func TestSearch(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "Great coffee here", Location: "Paris"})
	env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "secret coffee stash", Location: "Paris", IsPrivate: true})
	env.insert(t, models.NewComment{UserID: env.bob.ID, Topic: "t", Body: "tea only", Location: "Paris"})

	testCases := []struct {
		name      string
		requester int64
		query     string
		expected  int
	}{
		{"Author Sees Private Match", env.alice.ID, "coffee", 2},
		{"Others Miss Private Match", env.bob.ID, "coffee", 1},
		{"Case Sensitive", env.bob.ID, "great", 0},
		{"No Match", env.alice.ID, "juice", 0},
		{"Empty Query Matches All Visible", env.bob.ID, "", 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.store.Search(ctx, tc.requester, tc.query)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(got) != tc.expected {
				t.Errorf("Expected %d results, got %d", tc.expected, len(got))
			}
		})
	}
}

func TestSetPrivacy(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	c := env.insert(t, models.NewComment{UserID: env.alice.ID, Topic: "t", Body: "going dark", Location: "Paris"})

	if _, err := env.store.SetPrivacy(ctx, c.ID, env.bob.ID, true); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-author, got %v", err)
	}
	if _, err := env.store.SetPrivacy(ctx, 9999, env.alice.ID, true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	updated, err := env.store.SetPrivacy(ctx, c.ID, env.alice.ID, true)
	if err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	if !updated.IsPrivate || !updated.IsEncrypted || updated.Body != "going dark" {
		t.Errorf("Unexpected updated comment %+v", updated)
	}
	stored, _ := env.db.GetComment(ctx, c.ID)
	if bytes.Equal(stored.Body, []byte("going dark")) {
		t.Error("Expected body to be encrypted after making the comment private")
	}
	if others, _ := env.store.ListVisible(ctx, env.bob.ID); len(others) != 0 {
		t.Error("Expected comment to disappear for other users")
	}

	if _, err := env.store.SetPrivacy(ctx, c.ID, env.alice.ID, false); err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	stored, _ = env.db.GetComment(ctx, c.ID)
	if stored.IsEncrypted || string(stored.Body) != "going dark" {
		t.Errorf("Expected plaintext body after making the comment public, got %q", stored.Body)
	}
}

type unreachableGeocoder struct{}

func (unreachableGeocoder) Resolve(context.Context, string) (models.Coordinates, error) {
	return models.Coordinates{}, errors.New("connection refused")
}

func (unreachableGeocoder) Suggest(context.Context, string, int) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestSuggestLocations(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	names, err := env.store.SuggestLocations(ctx, "pa")
	if err != nil {
		t.Fatalf("SuggestLocations failed: %v", err)
	}
	if len(names) != 1 || names[0] != "Paris" {
		t.Errorf("Expected [Paris], got %v", names)
	}

	for _, prefix := range []string{"", "   ", strings.Repeat("p", 151)} {
		if _, err := env.store.SuggestLocations(ctx, prefix); !errors.Is(err, models.ErrPrecondition) {
			t.Errorf("Expected ErrPrecondition for %q, got %v", prefix, err)
		}
	}

	down := NewStore(env.db, env.cipher, unreachableGeocoder{}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	names, err = down.SuggestLocations(ctx, "pa")
	if err != nil || names == nil || len(names) != 0 {
		t.Errorf("Expected an empty list when the geocoder is down, got %v (err %v)", names, err)
	}
}
