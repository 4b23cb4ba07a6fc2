package messaging

import (
	"context"

	"geochat/database"
	"geochat/locks"
	"geochat/models"
)

// ThreadRegistry maps unordered user pairs to conversation threads.
type ThreadRegistry struct {
	db    *database.DatabaseService
	locks locks.Locker
}

func NewThreadRegistry(db *database.DatabaseService, locker locks.Locker) *ThreadRegistry {
	return &ThreadRegistry{db: db, locks: locker}
}

// Resolve returns the thread of the most recent message between a and b.
// A pair that has never talked is reported with found == false, not an error.
func (r *ThreadRegistry) Resolve(ctx context.Context, a, b int64) (threadID int64, found bool, err error) {
	return r.db.ResolveThread(ctx, a, b)
}

// Allocate creates a new thread unconditionally. Calling Resolve and then
// Allocate without holding the pair lock can create two threads for one pair.
func (r *ThreadRegistry) Allocate(ctx context.Context) (int64, error) {
	return r.db.AllocateThread(ctx)
}

// ResolveOrAllocate resolves the pair's thread, allocating one on first contact,
// while holding the pair lock.
func (r *ThreadRegistry) ResolveOrAllocate(ctx context.Context, a, b int64) (threadID int64, created bool, err error) {
	unlock, err := r.locks.Lock(ctx, locks.PairKey(a, b))
	if err != nil {
		return 0, false, err
	}
	defer unlock()
	return r.resolveOrAllocate(ctx, a, b)
}

// resolveOrAllocate expects the caller to hold the pair lock.
func (r *ThreadRegistry) resolveOrAllocate(ctx context.Context, a, b int64) (int64, bool, error) {
	id, found, err := r.db.ResolveThread(ctx, a, b)
	if err != nil {
		return 0, false, err
	}
	if found {
		return id, false, nil
	}
	id, err = r.db.AllocateThread(ctx)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ThreadsForUser lists the threads userID took part in, most recent first.
func (r *ThreadRegistry) ThreadsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return r.db.GetThreadIDsForUser(ctx, userID)
}

// Partners lists the users userID has exchanged messages with, most recent first.
func (r *ThreadRegistry) Partners(ctx context.Context, userID int64) ([]models.User, error) {
	return r.db.GetConversationPartners(ctx, userID)
}

// Admits reports whether a and b may post in threadID: every existing message
// in it must be between the two of them. Empty threads admit any pair.
func (r *ThreadRegistry) Admits(ctx context.Context, threadID, a, b int64) (bool, error) {
	participants, err := r.db.GetThreadParticipants(ctx, threadID)
	if err != nil {
		return false, err
	}
	for _, id := range participants {
		if id != a && id != b {
			return false, nil
		}
	}
	return true, nil
}
