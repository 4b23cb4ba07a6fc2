package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"geochat/database"
	"geochat/locks"
	"geochat/models"
	"geochat/utils"
	"geochat/vault"
)

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []models.Message
	deleted []models.Message
}

func (n *recordingNotifier) MessageSent(_ context.Context, m models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
}

func (n *recordingNotifier) MessageDeleted(_ context.Context, m models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, m)
}

type testEnv struct {
	db       *database.DatabaseService
	cipher   *vault.Cipher
	threads  *ThreadRegistry
	store    *MessageStore
	notifier *recordingNotifier
	alice    models.User
	bob      models.User
	carol    models.User
}

func newTestCipher(t *testing.T) *vault.Cipher {
	t.Helper()
	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	c, err := vault.NewFromString(key)
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}
	return c
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

	env := &testEnv{db: db, cipher: newTestCipher(t), notifier: &recordingNotifier{}}
	locker := locks.NewKeyedMutex()
	env.threads = NewThreadRegistry(db, locker)
	env.store = NewMessageStore(db, env.cipher, env.threads, locker, env.notifier, logger)

	ctx := context.Background()
	for _, u := range []struct {
		name string
		dst  *models.User
	}{{"alice", &env.alice}, {"bob", &env.bob}, {"carol", &env.carol}} {
		created, err := db.CreateUser(ctx, u.name, []byte("hash"))
		if err != nil {
			t.Fatalf("Failed to create user %s: %v", u.name, err)
		}
		*u.dst = created
	}
	return env
}

func TestSendRequiresThread(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	testCases := []struct {
		name     string
		sender   int64
		receiver int64
		body     string
		threadID int64
	}{
		{"Missing Thread", env.alice.ID, env.bob.ID, "hi", 0},
		{"Negative Thread", env.alice.ID, env.bob.ID, "hi", -4},
		{"Invalid UTF-8", env.alice.ID, env.bob.ID, string([]byte{0xff, 0xfe}), 1},
		{"Missing Sender", 0, env.bob.ID, "hi", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.store.Send(ctx, tc.sender, tc.receiver, tc.body, tc.threadID)
			if !errors.Is(err, models.ErrPrecondition) {
				t.Fatalf("Expected ErrPrecondition, got %v", err)
			}
			if n, _ := env.db.CountMessages(ctx); n != 0 {
				t.Errorf("Expected no rows written, found %d", n)
			}
		})
	}
	if len(env.notifier.sent) != 0 {
		t.Error("Expected no notifications for rejected sends")
	}
}

func TestFirstContactThreadResolution(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.alice.ID, env.bob.ID

	if _, found, err := env.threads.Resolve(ctx, a, b); err != nil || found {
		t.Fatalf("Expected no thread before first message, got found=%v err=%v", found, err)
	}

	tid, err := env.threads.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := env.store.Send(ctx, a, b, "hi", tid); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for _, pair := range [][2]int64{{a, b}, {b, a}} {
		got, found, err := env.threads.Resolve(ctx, pair[0], pair[1])
		if err != nil || !found || got != tid {
			t.Errorf("Resolve%v = (%d, %v, %v), want (%d, true, nil)", pair, got, found, err, tid)
		}
	}

	again, created, err := env.threads.ResolveOrAllocate(ctx, b, a)
	if err != nil || created || again != tid {
		t.Errorf("ResolveOrAllocate = (%d, %v, %v), want existing thread %d", again, created, err, tid)
	}
	fresh, created, err := env.threads.ResolveOrAllocate(ctx, a, env.carol.ID)
	if err != nil || !created || fresh == tid {
		t.Errorf("Expected a new thread for a new pair, got (%d, %v, %v)", fresh, created, err)
	}
}

func TestListThreadMessages(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.alice.ID, env.bob.ID

	tid, _ := env.threads.Allocate(ctx)
	first, err := env.store.Send(ctx, a, b, "hi", tid)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	second, err := env.store.Send(ctx, b, a, "there", tid)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs, err := env.store.ListThreadMessages(ctx, tid, a, b)
	if err != nil {
		t.Fatalf("ListThreadMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != first.ID || msgs[0].Body != "hi" || msgs[1].ID != second.ID || msgs[1].Body != "there" {
		t.Errorf("Unexpected messages: %+v", msgs)
	}

	stored, _ := env.db.GetMessage(ctx, first.ID)
	if string(stored.Ciphertext) == "hi" {
		t.Error("Expected only ciphertext to be stored")
	}

	empty, err := env.store.ListThreadMessages(ctx, 0, a, b)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty list for absent thread, got %v, %v", empty, err)
	}
	if len(env.notifier.sent) != 2 {
		t.Errorf("Expected 2 sent notifications, got %d", len(env.notifier.sent))
	}
}

func TestDecryptionFailureIsPerRow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.alice.ID, env.bob.ID
	tid, _ := env.threads.Allocate(ctx)

	env.store.Send(ctx, a, b, "readable", tid)

	foreign, _ := newTestCipher(t).Encrypt("written under another key")
	if _, err := env.db.InsertMessage(ctx, models.StoredMessage{
		SenderID: b, ReceiverID: a, ThreadID: tid, Ciphertext: foreign, Timestamp: utils.GetSQLTime(),
	}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	env.store.Send(ctx, a, b, "still readable", tid)

	msgs, err := env.store.ListThreadMessages(ctx, tid, a, b)
	if err != nil {
		t.Fatalf("ListThreadMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Err != nil || msgs[0].Body != "readable" {
		t.Errorf("Expected first row readable, got %+v", msgs[0])
	}
	if !errors.Is(msgs[1].Err, vault.ErrDecryption) || msgs[1].Body != "" {
		t.Errorf("Expected second row to carry ErrDecryption and no body, got %+v", msgs[1])
	}
	if msgs[2].Err != nil || msgs[2].Body != "still readable" {
		t.Errorf("Expected third row readable, got %+v", msgs[2])
	}
}

func TestListRecentForUser(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.alice.ID, env.bob.ID
	tid, _ := env.threads.Allocate(ctx)

	for _, body := range []string{"one", "two", "three"} {
		if _, err := env.store.Send(ctx, a, b, body, tid); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	msgs, err := env.store.ListRecentForUser(ctx, b, tid)
	if err != nil {
		t.Fatalf("ListRecentForUser failed: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Body != "three" || msgs[2].Body != "one" {
		t.Errorf("Expected newest first, got %+v", msgs)
	}

	outsider, _ := env.store.ListRecentForUser(ctx, env.carol.ID, tid)
	if len(outsider) != 0 {
		t.Errorf("Expected a non-participant to see nothing, got %d", len(outsider))
	}
}

func TestDelete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tid, _ := env.threads.Allocate(ctx)
	m, _ := env.store.Send(ctx, env.alice.ID, env.bob.ID, "oops", tid)
	env.store.Send(ctx, env.alice.ID, env.bob.ID, "keep", tid)

	if err := env.store.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := env.db.CountMessages(ctx); n != 1 {
		t.Errorf("Expected exactly one row removed, %d remain", n)
	}
	if len(env.notifier.deleted) != 1 || env.notifier.deleted[0].ID != m.ID || env.notifier.deleted[0].ThreadID != tid {
		t.Errorf("Expected one deletion notification for %d, got %+v", m.ID, env.notifier.deleted)
	}

	if err := env.store.Delete(ctx, m.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if n, _ := env.db.CountMessages(ctx); n != 1 {
		t.Errorf("Expected table unchanged, %d remain", n)
	}
	if len(env.notifier.deleted) != 1 {
		t.Error("Expected no notification for a failed delete")
	}
}

func TestSendDirectConcurrentFirstContact(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.alice.ID, env.bob.ID

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			if _, err := env.store.SendDirect(ctx, from, to, "hello"); err != nil {
				t.Errorf("SendDirect failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	threads, err := env.threads.ThreadsForUser(ctx, a)
	if err != nil {
		t.Fatalf("ThreadsForUser failed: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("Expected all first-contact messages in one thread, got threads %v", threads)
	}
	msgs, _ := env.store.ListThreadMessages(ctx, threads[0], a, b)
	if len(msgs) != senders {
		t.Errorf("Expected %d messages, got %d", senders, len(msgs))
	}

	partners, err := env.threads.Partners(ctx, b)
	if err != nil || len(partners) != 1 || partners[0].ID != a {
		t.Errorf("Expected bob's only partner to be alice, got %+v, %v", partners, err)
	}
}

func TestThreadAdmits(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if _, err := env.threads.Admits(ctx, 999, env.alice.ID, env.bob.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown thread, got %v", err)
	}

	threadID, err := env.threads.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if ok, err := env.threads.Admits(ctx, threadID, env.alice.ID, env.carol.ID); err != nil || !ok {
		t.Fatalf("Expected an empty thread to admit any pair, got %v, %v", ok, err)
	}

	if _, err := env.store.Send(ctx, env.alice.ID, env.bob.ID, "hello", threadID); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	testCases := []struct {
		name string
		a, b int64
		want bool
	}{
		{"Same Pair", env.alice.ID, env.bob.ID, true},
		{"Reversed Pair", env.bob.ID, env.alice.ID, true},
		{"Outsider", env.alice.ID, env.carol.ID, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := env.threads.Admits(ctx, threadID, tc.a, tc.b)
			if err != nil {
				t.Fatalf("Admits failed: %v", err)
			}
			if ok != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, ok)
			}
		})
	}
}
