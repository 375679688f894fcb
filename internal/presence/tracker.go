// Package presence tracks which users are currently active on which playlist.
//
// State lives only in memory and is lost on restart. Each playlist gets its
// own bucket with its own lock, so traffic on one playlist never waits on
// another:
//
//	buckets (sync.Map)
//	  playlistID → *bucket{mu, seen: userID → last heartbeat}
//
// A heartbeat older than the timeout is treated as absent. Expired entries are
// swept lazily by the next GetActiveUsers on that playlist, and globally by
// CleanupInactiveSessions (run periodically by a Janitor).
//
// No operation checks authorization. Callers decide who may join.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sakif/playlist-collab/internal/model"
)

// DefaultTimeout is how long a heartbeat keeps a user active.
const DefaultTimeout = time.Minute

// UserDirectory resolves user ids for GetActiveUsers. Unknown ids are skipped.
type UserDirectory interface {
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// Tracker is safe for concurrent use. Create one per process.
type Tracker struct {
	users   UserDirectory
	timeout time.Duration
	now     func() time.Time

	buckets sync.Map // playlistID → *bucket
}

// bucket holds the heartbeats of one playlist.
//
// Once removed is set the bucket has been deleted from Tracker.buckets and
// must not be written to; writers reload and retry.
type bucket struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	removed bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets the inactivity window. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker returns an empty tracker.
func NewTracker(users UserDirectory, opts ...Option) *Tracker {
	t := &Tracker{
		users:   users,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout returns the configured inactivity window.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Join records a heartbeat for userID on playlistID. Calling it again
// refreshes the heartbeat.
func (t *Tracker) Join(playlistID, userID string) {
	for {
		b := t.loadOrCreate(playlistID)

		b.mu.Lock()
		if b.removed {
			// Lost a race with a sweep that emptied this bucket.
			b.mu.Unlock()
			continue
		}
		b.seen[userID] = t.now()
		b.mu.Unlock()
		return
	}
}

// Leave removes userID from playlistID. The playlist's bucket is dropped when
// its last user leaves.
func (t *Tracker) Leave(playlistID, userID string) {
	v, ok := t.buckets.Load(playlistID)
	if !ok {
		return
	}
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return
	}
	delete(b.seen, userID)
	if len(b.seen) == 0 {
		t.dropLocked(playlistID, b)
	}
}

// GetActiveUsers sweeps the playlist's bucket and returns the remaining users,
// most recent heartbeat first. A playlist nobody joined yields an empty slice.
// Only a failing UserDirectory returns an error.
func (t *Tracker) GetActiveUsers(ctx context.Context, playlistID string) ([]model.ActiveUser, error) {
	v, ok := t.buckets.Load(playlistID)
	if !ok {
		return []model.ActiveUser{}, nil
	}

	_, live := t.sweep(playlistID, v.(*bucket))
	if len(live) == 0 {
		return []model.ActiveUser{}, nil
	}

	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	users, err := t.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("presence: resolving active users: %w", err)
	}

	active := make([]model.ActiveUser, 0, len(users))
	for _, u := range users {
		hb, ok := live[u.ID]
		if !ok {
			continue
		}
		active = append(active, model.ActiveUser{
			UserID:        u.ID,
			Username:      u.Username,
			ProfileImage:  u.ProfileImage,
			LastHeartbeat: hb,
		})
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].LastHeartbeat.Equal(active[j].LastHeartbeat) {
			return active[i].LastHeartbeat.After(active[j].LastHeartbeat)
		}
		return active[i].Username < active[j].Username
	})
	return active, nil
}

// CleanupInactiveSessions sweeps every bucket and returns how many entries
// were evicted.
func (t *Tracker) CleanupInactiveSessions() int {
	evicted := 0
	t.buckets.Range(func(key, value any) bool {
		n, _ := t.sweep(key.(string), value.(*bucket))
		evicted += n
		return true
	})
	return evicted
}

// ActiveCount returns the number of unexpired entries for a playlist without
// sweeping.
func (t *Tracker) ActiveCount(playlistID string) int {
	v, ok := t.buckets.Load(playlistID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	now := t.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, hb := range b.seen {
		if !t.expired(now, hb) {
			n++
		}
	}
	return n
}

// PlaylistCount returns the number of playlists with a live bucket.
func (t *Tracker) PlaylistCount() int {
	n := 0
	t.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *Tracker) loadOrCreate(playlistID string) *bucket {
	if v, ok := t.buckets.Load(playlistID); ok {
		return v.(*bucket)
	}
	v, _ := t.buckets.LoadOrStore(playlistID, &bucket{seen: make(map[string]time.Time)})
	return v.(*bucket)
}

// sweep evicts expired entries from b and returns the eviction count together
// with a copy of what is left.
func (t *Tracker) sweep(playlistID string, b *bucket) (int, map[string]time.Time) {
	now := t.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return 0, nil
	}

	evicted := 0
	for id, hb := range b.seen {
		if t.expired(now, hb) {
			delete(b.seen, id)
			evicted++
		}
	}
	if len(b.seen) == 0 {
		t.dropLocked(playlistID, b)
		return evicted, nil
	}

	live := make(map[string]time.Time, len(b.seen))
	for id, hb := range b.seen {
		live[id] = hb
	}
	return evicted, live
}

// dropLocked removes an empty bucket. b.mu must be held.
func (t *Tracker) dropLocked(playlistID string, b *bucket) {
	b.removed = true
	t.buckets.CompareAndDelete(playlistID, b)
}

func (t *Tracker) expired(now, heartbeat time.Time) bool {
	return now.Sub(heartbeat) > t.timeout
}
