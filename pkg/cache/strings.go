package cache

import (
	"math"
	"math/bits"
	"strconv"
	"time"
)

func (c *Cache) liveKV(key string, now time.Time) (*entry, bool) {
	e, ok := c.kv[key]
	if !ok || e.expired(now) {
		return nil, false
	}
	return e, true
}

func (c *Cache) putKV(key string, e *entry) {
	if _, ok := c.kv[key]; !ok {
		c.kvNames.ReplaceOrInsert(key)
	}
	c.kv[key] = e
}

func (c *Cache) deleteKV(key string) bool {
	if _, ok := c.kv[key]; !ok {
		return false
	}
	delete(c.kv, key)
	c.kvNames.Delete(key)
	return true
}

// Get returns the string stored at key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.liveKV(key, time.Now())
	if !ok {
		return "", false
	}
	return e.value, true
}

// Set stores val at key. A positive ttl makes the key expire; zero keeps
// it forever.
//
// Example:
//
//	c.Set("permanent", "value", 0)
//	c.Set("session", "value", 30*time.Minute)
func (c *Cache) Set(key, val string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{value: val}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.putKV(key, e)
}

// SetNX stores val only when key is absent and reports whether it did.
func (c *Cache) SetNX(key, val string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.liveKV(key, time.Now()); ok {
		return false
	}
	c.putKV(key, &entry{value: val})
	return true
}

// GetSet stores val and returns the previous value, if any. Any TTL on the
// old value is dropped.
func (c *Cache) GetSet(key, val string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, found := c.liveKV(key, time.Now())
	c.putKV(key, &entry{value: val})
	if !found {
		return "", false
	}
	return old.value, true
}

// Del removes key and reports whether it existed.
func (c *Cache) Del(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, live := c.liveKV(key, time.Now())
	c.deleteKV(key)
	return live
}

// Exists reports whether key holds a live string.
func (c *Cache) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.liveKV(key, time.Now())
	return ok
}

// IncrBy adds delta to the integer stored at key, treating a missing key
// as zero, and returns the new value. The TTL is kept.
//
// Example:
//
//	c.IncrBy("counter", 5)  // 5
//	c.IncrBy("counter", -2) // 3
func (c *Cache) IncrBy(key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	e, ok := c.liveKV(key, time.Now())
	if ok {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		current = v
	} else {
		e = &entry{}
	}

	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return 0, ErrNotInteger
	}
	current += delta
	e.value = strconv.FormatInt(current, 10)
	c.putKV(key, e)
	return current, nil
}

// Expire sets a TTL on an existing key and reports whether the key exists.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveKV(key, time.Now())
	if !ok {
		return false
	}
	e.expiresAt = time.Now().Add(ttl)
	return true
}

// TTL returns the remaining lifetime of key in whole seconds, rounded up,
// or -1 when the key is missing or has no TTL.
func (c *Cache) TTL(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	e, ok := c.liveKV(key, now)
	if !ok || e.expiresAt.IsZero() {
		return -1
	}
	remaining := e.expiresAt.Sub(now)
	return int64((remaining + time.Second - 1) / time.Second)
}

// StrLen returns the length of the value at key, or 0.
func (c *Cache) StrLen(key string) int64 {
	v, _ := c.Get(key)
	return int64(len(v))
}

// Substr returns part of the value at key. start may count from the end;
// a negative size leaves that many bytes off the end.
func (c *Cache) Substr(key string, start, size int64) string {
	v, _ := c.Get(key)
	n := int64(len(v))
	start = normalizeIndex(start, n)
	if start < 0 {
		start = 0
	}
	if start >= n {
		return ""
	}
	end := n
	if size >= 0 {
		if size < n-start {
			end = start + size
		}
	} else {
		end = n + size
	}
	if end <= start {
		return ""
	}
	return v[start:end]
}

// GetBit returns bit offset of the value at key. Bits are numbered from
// the least significant bit of the first byte.
func (c *Cache) GetBit(key string, offset int64) int {
	v, _ := c.Get(key)
	idx := offset / 8
	if offset < 0 || idx >= int64(len(v)) {
		return 0
	}
	return int(v[idx]>>(uint(offset)%8)) & 1
}

// MaxBitOffset is the largest offset SetBit accepts, which caps a value
// grown by SetBit at 128 MiB.
const MaxBitOffset = 1<<30 - 1

// SetBit sets bit offset to bit, growing the value with zero bytes as
// needed, and returns the previous bit.
func (c *Cache) SetBit(key string, offset int64, bit int) (int, error) {
	if offset < 0 || offset > MaxBitOffset {
		return 0, ErrBitOffset
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveKV(key, time.Now())
	if !ok {
		e = &entry{}
	}
	buf := []byte(e.value)
	idx := offset / 8
	if idx >= int64(len(buf)) {
		buf = append(buf, make([]byte, idx-int64(len(buf))+1)...)
	}
	mask := byte(1) << (uint(offset) % 8)
	old := 0
	if buf[idx]&mask != 0 {
		old = 1
	}
	if bit != 0 {
		buf[idx] |= mask
	} else {
		buf[idx] &^= mask
	}
	e.value = string(buf)
	c.putKV(key, e)
	return old, nil
}

// BitCount counts set bits in the bytes between start and end, both
// inclusive and either counting from the end when negative.
func (c *Cache) BitCount(key string, start, end int64) int64 {
	v, _ := c.Get(key)
	from, to := clampSlice(start, end, int64(len(v)))
	var count int64
	for _, b := range []byte(v[from:to]) {
		count += int64(bits.OnesCount8(b))
	}
	return count
}

// Keys lists live string keys in (start, end].
func (c *Cache) Keys(start, end string, limit int) []string {
	return c.keyRange(start, end, limit, false)
}

// RKeys lists live string keys in [end, start), highest first.
func (c *Cache) RKeys(start, end string, limit int) []string {
	return c.keyRange(start, end, limit, true)
}

func (c *Cache) keyRange(start, end string, limit int, reverse bool) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	return scanRange(c.kvNames, start, end, limit, reverse, func(key string) bool {
		_, ok := c.liveKV(key, now)
		return ok
	})
}

// Scan returns live keys and values in (start, end].
func (c *Cache) Scan(start, end string, limit int) []KeyValue {
	return c.scanKV(start, end, limit, false)
}

// RScan is Scan in reverse order.
func (c *Cache) RScan(start, end string, limit int) []KeyValue {
	return c.scanKV(start, end, limit, true)
}

func (c *Cache) scanKV(start, end string, limit int, reverse bool) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var out []KeyValue
	scanRange(c.kvNames, start, end, limit, reverse, func(key string) bool {
		e, ok := c.liveKV(key, now)
		if ok {
			out = append(out, KeyValue{Key: key, Value: e.value})
		}
		return ok
	})
	return out
}

// MultiSet stores every pair without TTL.
func (c *Cache) MultiSet(pairs []KeyValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kv := range pairs {
		c.putKV(kv.Key, &entry{value: kv.Value})
	}
}

// MultiGet returns the pairs for keys that exist, in request order.
func (c *Cache) MultiGet(keys []string) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var out []KeyValue
	for _, key := range keys {
		if e, ok := c.liveKV(key, now); ok {
			out = append(out, KeyValue{Key: key, Value: e.value})
		}
	}
	return out
}

// MultiDel removes keys and returns how many existed.
func (c *Cache) MultiDel(keys []string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var n int64
	for _, key := range keys {
		if _, ok := c.liveKV(key, now); ok {
			n++
		}
		c.deleteKV(key)
	}
	return n
}
