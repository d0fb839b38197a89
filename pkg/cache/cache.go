// Package cache provides the in-memory data store behind the development
// server.
//
// It implements the data model of the block-protocol servers the client
// talks to. There are four independent namespaces, so the same name can
// hold a string, a hash, a sorted set and a queue at once:
//   - Strings: key/value pairs with an optional TTL
//   - Hashes: field/value mappings
//   - Sorted sets: member IDs with integer scores
//   - Queues: double-ended lists of values
//
// Names in every namespace are kept in order so that range listings
// (keys, scan, hlist, zlist, qlist) are cheap. Ranges follow the server
// convention: the start bound is exclusive, the end bound is inclusive and
// an empty bound is open.
//
// Example usage:
//
//	c := cache.New(time.Second)
//	defer c.Close()
//
//	c.Set("user:123", "john_doe", 0)
//	value, exists := c.Get("user:123")
//
//	c.HSet("user:123:profile", "name", "John Doe")
//	fields := c.HGetAll("user:123:profile")
//
//	c.ZSet("leaderboard", "alice", 42)
//	top := c.ZRRange("leaderboard", 0, 10)
//
//	c.QPushBack("tasks", "task1", "task2")
//	tasks := c.QPopFront("tasks", 10)
//
// All operations are safe for concurrent use. Expired strings are invisible
// immediately and removed by a background sweep.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/google/btree"
)

const nameIndexDegree = 16

var (
	// ErrNotInteger is returned when an increment targets a value that is
	// not a 64-bit integer.
	ErrNotInteger = errors.New("value is not an integer or out of range")

	// ErrIndexOutOfRange is returned by QSet for an index outside the queue.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrBitOffset is returned by SetBit for an offset outside
	// [0, MaxBitOffset].
	ErrBitOffset = errors.New("bit offset out of range")
)

// KeyValue is a name and its value.
type KeyValue struct {
	Key   string
	Value string
}

// Member is a sorted-set member and its score.
type Member struct {
	ID    string
	Score int64
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a thread-safe in-memory store for strings, hashes, sorted sets
// and queues.
type Cache struct {
	mu sync.RWMutex

	kv     map[string]*entry
	hashes map[string]map[string]string
	zsets  map[string]*zset
	queues map[string]*queue

	kvNames    *btree.BTreeG[string]
	hashNames  *btree.BTreeG[string]
	zsetNames  *btree.BTreeG[string]
	queueNames *btree.BTreeG[string]

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an empty Cache and starts a background sweep of expired
// strings every cleanupInterval. A non-positive interval disables the
// sweep; expired strings are then only hidden, not freed.
func New(cleanupInterval time.Duration) *Cache {
	c := &Cache{
		kv:         make(map[string]*entry),
		hashes:     make(map[string]map[string]string),
		zsets:      make(map[string]*zset),
		queues:     make(map[string]*queue),
		kvNames:    btree.NewOrderedG[string](nameIndexDegree),
		hashNames:  btree.NewOrderedG[string](nameIndexDegree),
		zsetNames:  btree.NewOrderedG[string](nameIndexDegree),
		queueNames: btree.NewOrderedG[string](nameIndexDegree),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

// Close stops the background sweep. The cache stays usable.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Cache) cleanupExpired(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

// RemoveExpired deletes every expired string and returns how many were
// removed.
func (c *Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.kv {
		if e.expired(now) {
			c.deleteKV(key)
			removed++
		}
	}
	return removed
}

// DBSize returns the number of names across all namespaces. Expired
// strings not yet swept are counted.
func (c *Cache) DBSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.kv) + len(c.hashes) + len(c.zsets) + len(c.queues))
}

// Stats returns per-namespace sizes.
func (c *Cache) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"strings":     len(c.kv),
		"hashes":      len(c.hashes),
		"sorted_sets": len(c.zsets),
		"queues":      len(c.queues),
	}
}

// scanRange walks names in (start, end], or [end, start) in reverse, and
// returns up to limit names accepted by keep. keep may be nil.
func scanRange(names *btree.BTreeG[string], start, end string, limit int, reverse bool, keep func(string) bool) []string {
	if limit <= 0 {
		return nil
	}
	var out []string
	visit := func(name string) bool {
		if name == start && start != "" {
			return true
		}
		if end != "" && ((!reverse && name > end) || (reverse && name < end)) {
			return false
		}
		if keep == nil || keep(name) {
			out = append(out, name)
		}
		return len(out) < limit
	}

	switch {
	case !reverse:
		names.AscendGreaterOrEqual(start, visit)
	case start == "":
		names.Descend(visit)
	default:
		names.DescendLessOrEqual(start, visit)
	}
	return out
}

// normalizeIndex maps a possibly negative index onto [0, n).
func normalizeIndex(i, n int64) int64 {
	if i < 0 {
		i += n
	}
	return i
}

// clampSlice turns inclusive start/end indexes, either of which may count
// from the end, into a half-open range within [0, n).
func clampSlice(start, end, n int64) (int64, int64) {
	start = normalizeIndex(start, n)
	end = normalizeIndex(end, n)
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end {
		return 0, 0
	}
	return start, end + 1
}
