package history

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultMaxUsers is the number of distinct users cached before whole-entry
	// LRU eviction kicks in.
	DefaultMaxUsers = 128
	// DefaultTurnsPerUser bounds the context kept per cached user.
	DefaultTurnsPerUser = 20
)

// Cache is a fixed-capacity LRU of per-user conversation context. Whole
// entries are evicted least-recently-used; within an entry the oldest turns
// are dropped first. The durable store is never affected by eviction.
//
// Safe for concurrent use. A single mutex guards the structure; entries are
// small and contention is expected to be low.
type Cache struct {
	mu           sync.Mutex
	entries      *simplelru.LRU[string, []Message]
	turnsPerUser int
}

// NewCache builds a cache holding at most maxUsers entries of at most
// turnsPerUser turns each. onEvict, if non-nil, observes evicted user IDs.
func NewCache(maxUsers, turnsPerUser int, onEvict func(userID string)) *Cache {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	if turnsPerUser <= 0 {
		turnsPerUser = DefaultTurnsPerUser
	}
	var cb simplelru.EvictCallback[string, []Message]
	if onEvict != nil {
		cb = func(userID string, _ []Message) { onEvict(userID) }
	}
	// NewLRU only fails on a non-positive size, which is guarded above.
	entries, err := simplelru.NewLRU(maxUsers, cb)
	if err != nil {
		panic(err)
	}
	return &Cache{entries: entries, turnsPerUser: turnsPerUser}
}

// Get returns a copy of the user's cached context and promotes the entry to
// most-recently-used. A miss has no side effects; unknown IDs are plain
// misses.
func (c *Cache) Get(userID string) ([]Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.entries.Get(userID)
	if !ok {
		return nil, false
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// Put inserts or replaces the user's entry and promotes it. When the cache is
// full and the key is new, the least-recently-used entry is evicted first.
// The slice is stored as-is without trimming: a freshly hydrated entry may
// exceed the per-user bound until the next Append settles it.
func (c *Cache) Put(userID string, msgs []Message) {
	stored := make([]Message, len(msgs))
	copy(stored, msgs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(userID, stored)
}

// Append adds one message to an existing entry, trims the front so the entry
// holds at most the per-user bound, and promotes it. Appending to an absent
// user is a no-op: the caller must hydrate first.
func (c *Cache) Append(userID string, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.entries.Get(userID)
	if !ok {
		return
	}
	msgs = append(msgs, msg)
	if drop := len(msgs) - c.turnsPerUser; drop > 0 {
		msgs = msgs[drop:]
	}
	c.entries.Add(userID, msgs)
}

// Len reports the number of cached users.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
