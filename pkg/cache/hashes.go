package cache

import (
	"sort"
	"strconv"
)

func (c *Cache) hashFor(key string, create bool) map[string]string {
	h, ok := c.hashes[key]
	if !ok && create {
		h = make(map[string]string)
		c.hashes[key] = h
		c.hashNames.ReplaceOrInsert(key)
	}
	return h
}

func (c *Cache) dropHashIfEmpty(key string) {
	if h, ok := c.hashes[key]; ok && len(h) == 0 {
		delete(c.hashes, key)
		c.hashNames.Delete(key)
	}
}

// HSet sets field in the hash at key and reports whether the field is new.
func (c *Cache) HSet(key, field, val string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.hashFor(key, true)
	_, existed := h[field]
	h[field] = val
	return !existed
}

// HGet returns a field of the hash at key.
func (c *Cache) HGet(key, field string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.hashes[key][field]
	return v, ok
}

// HDel removes field and reports whether it existed. An emptied hash is
// removed.
func (c *Cache) HDel(key, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.hashFor(key, false)
	if _, ok := h[field]; !ok {
		return false
	}
	delete(h, field)
	c.dropHashIfEmpty(key)
	return true
}

// HIncrBy adds delta to an integer field and returns the new value.
func (c *Cache) HIncrBy(key, field string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	if v, ok := c.hashes[key][field]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		current = n
	}
	current += delta
	c.hashFor(key, true)[field] = strconv.FormatInt(current, 10)
	return current, nil
}

// HExists reports whether field exists in the hash at key.
func (c *Cache) HExists(key, field string) bool {
	_, ok := c.HGet(key, field)
	return ok
}

// HSize returns the number of fields in the hash at key.
func (c *Cache) HSize(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.hashes[key]))
}

// HList lists hash names in (start, end].
func (c *Cache) HList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.hashNames, start, end, limit, false, nil)
}

// HRList lists hash names in [end, start), highest first.
func (c *Cache) HRList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.hashNames, start, end, limit, true, nil)
}

// HGetAll returns every field of the hash at key, ordered by field.
func (c *Cache) HGetAll(key string) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fieldRange(key, "", "", -1, false)
}

// HKeys lists field names in (start, end].
func (c *Cache) HKeys(key, start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pairs := c.fieldRange(key, start, end, limit, false)
	out := make([]string, len(pairs))
	for i, kv := range pairs {
		out[i] = kv.Key
	}
	return out
}

// HScan returns fields and values in (start, end].
func (c *Cache) HScan(key, start, end string, limit int) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fieldRange(key, start, end, limit, false)
}

// HRScan returns fields and values in [end, start), highest first.
func (c *Cache) HRScan(key, start, end string, limit int) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fieldRange(key, start, end, limit, true)
}

// fieldRange sorts the fields of one hash and applies the range rules of
// scanRange. A negative limit means no limit.
func (c *Cache) fieldRange(key, start, end string, limit int, reverse bool) []KeyValue {
	h := c.hashes[key]
	fields := make([]string, 0, len(h))
	for f := range h {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(fields)))
	}

	var out []KeyValue
	for _, f := range fields {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if start != "" && ((!reverse && f <= start) || (reverse && f >= start)) {
			continue
		}
		if end != "" && ((!reverse && f > end) || (reverse && f < end)) {
			break
		}
		out = append(out, KeyValue{Key: f, Value: h[f]})
	}
	return out
}

// HClear deletes the hash at key and returns how many fields it had.
func (c *Cache) HClear(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(c.hashes[key]))
	delete(c.hashes, key)
	c.hashNames.Delete(key)
	return n
}

// MultiHSet sets every pair and returns how many fields were new.
func (c *Cache) MultiHSet(key string, pairs []KeyValue) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.hashFor(key, true)
	var added int64
	for _, kv := range pairs {
		if _, ok := h[kv.Key]; !ok {
			added++
		}
		h[kv.Key] = kv.Value
	}
	c.dropHashIfEmpty(key)
	return added
}

// MultiHGet returns the requested fields that exist, in request order.
func (c *Cache) MultiHGet(key string, fields []string) []KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.hashes[key]
	var out []KeyValue
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out = append(out, KeyValue{Key: f, Value: v})
		}
	}
	return out
}

// MultiHDel removes fields and returns how many existed.
func (c *Cache) MultiHDel(key string, fields []string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.hashFor(key, false)
	var n int64
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			n++
		}
	}
	c.dropHashIfEmpty(key)
	return n
}
