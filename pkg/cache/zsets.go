package cache

import (
	"math"

	"github.com/google/btree"
)

// Open score bounds. Passing them to a range operation leaves that side
// unbounded.
const (
	MinScore int64 = math.MinInt64
	MaxScore int64 = math.MaxInt64
)

// zset keeps members both by ID and in (score, id) order.
type zset struct {
	scores map[string]int64
	order  *btree.BTreeG[Member]
}

func memberLess(a, b Member) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID < b.ID
}

func newZSet() *zset {
	return &zset{
		scores: make(map[string]int64),
		order:  btree.NewG[Member](nameIndexDegree, memberLess),
	}
}

func (z *zset) set(id string, score int64) bool {
	old, existed := z.scores[id]
	if existed {
		z.order.Delete(Member{ID: id, Score: old})
	}
	z.scores[id] = score
	z.order.ReplaceOrInsert(Member{ID: id, Score: score})
	return !existed
}

func (z *zset) remove(id string) bool {
	score, ok := z.scores[id]
	if !ok {
		return false
	}
	delete(z.scores, id)
	z.order.Delete(Member{ID: id, Score: score})
	return true
}

// each walks members in score order, or reverse score order, until fn
// returns false.
func (z *zset) each(reverse bool, fn func(Member) bool) {
	if reverse {
		z.order.Descend(fn)
		return
	}
	z.order.Ascend(fn)
}

func (z *zset) inRange(m Member, min, max int64) bool {
	return m.Score >= min && m.Score <= max
}

func (c *Cache) zsetFor(key string, create bool) *zset {
	z, ok := c.zsets[key]
	if !ok && create {
		z = newZSet()
		c.zsets[key] = z
		c.zsetNames.ReplaceOrInsert(key)
	}
	return z
}

func (c *Cache) dropZSetIfEmpty(key string) {
	if z, ok := c.zsets[key]; ok && len(z.scores) == 0 {
		delete(c.zsets, key)
		c.zsetNames.Delete(key)
	}
}

// ZSet sets the score of id and reports whether id is a new member.
func (c *Cache) ZSet(key, id string, score int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zsetFor(key, true).set(id, score)
}

// ZGet returns the score of id.
func (c *Cache) ZGet(key, id string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	z := c.zsets[key]
	if z == nil {
		return 0, false
	}
	score, ok := z.scores[id]
	return score, ok
}

// ZDel removes id and reports whether it was a member.
func (c *Cache) ZDel(key, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsets[key]
	if z == nil || !z.remove(id) {
		return false
	}
	c.dropZSetIfEmpty(key)
	return true
}

// ZIncrBy adds delta to the score of id, adding id with score delta when
// it is missing, and returns the new score.
func (c *Cache) ZIncrBy(key, id string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsetFor(key, true)
	current := z.scores[id]
	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		c.dropZSetIfEmpty(key)
		return 0, ErrNotInteger
	}
	z.set(id, current+delta)
	return current + delta, nil
}

// ZSize returns the number of members in the sorted set at key.
func (c *Cache) ZSize(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if z := c.zsets[key]; z != nil {
		return int64(len(z.scores))
	}
	return 0
}

// ZClear deletes the sorted set and returns how many members it had.
func (c *Cache) ZClear(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsets[key]
	if z == nil {
		return 0
	}
	delete(c.zsets, key)
	c.zsetNames.Delete(key)
	return int64(len(z.scores))
}

// ZList lists sorted set names in (start, end].
func (c *Cache) ZList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.zsetNames, start, end, limit, false, nil)
}

// ZRList lists sorted set names in [end, start), highest first.
func (c *Cache) ZRList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.zsetNames, start, end, limit, true, nil)
}

// ZScan lists members in ascending (score, id) order with a score in
// [min, max], resuming after startID. When startID is set the scan resumes
// after position (min, startID), or after startID's own position when min
// is open.
func (c *Cache) ZScan(key, startID string, min, max int64, limit int) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zscan(key, startID, min, max, limit, false)
}

// ZRScan is ZScan in descending order. The scan starts at max and ends at
// min.
func (c *Cache) ZRScan(key, startID string, max, min int64, limit int) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zscan(key, startID, min, max, limit, true)
}

func (c *Cache) zscan(key, startID string, min, max int64, limit int, reverse bool) []Member {
	z := c.zsets[key]
	if z == nil || limit <= 0 {
		return nil
	}

	var cursor *Member
	if startID != "" {
		bound, open := min, min == MinScore
		if reverse {
			bound, open = max, max == MaxScore
		}
		if open {
			if s, ok := z.scores[startID]; ok {
				cursor = &Member{ID: startID, Score: s}
			}
		} else {
			cursor = &Member{ID: startID, Score: bound}
		}
	}

	var out []Member
	z.each(reverse, func(m Member) bool {
		if cursor != nil {
			if !reverse && !memberLess(*cursor, m) {
				return true
			}
			if reverse && !memberLess(m, *cursor) {
				return true
			}
		}
		if (!reverse && m.Score > max) || (reverse && m.Score < min) {
			return false
		}
		if z.inRange(m, min, max) {
			out = append(out, m)
		}
		return len(out) < limit
	})
	return out
}

// ZRank returns the ascending rank of id, or -1 when it is not a member.
func (c *Cache) ZRank(key, id string) int64 {
	return c.rank(key, id, false)
}

// ZRRank returns the descending rank of id, or -1.
func (c *Cache) ZRRank(key, id string) int64 {
	return c.rank(key, id, true)
}

func (c *Cache) rank(key, id string, reverse bool) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	z := c.zsets[key]
	if z == nil {
		return -1
	}
	if _, ok := z.scores[id]; !ok {
		return -1
	}
	var rank int64 = -1
	var i int64
	z.each(reverse, func(m Member) bool {
		if m.ID == id {
			rank = i
			return false
		}
		i++
		return true
	})
	return rank
}

// ZRange returns up to limit members by ascending rank from offset.
func (c *Cache) ZRange(key string, offset, limit int) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zrange(key, offset, limit, false)
}

// ZRRange returns up to limit members by descending rank from offset.
func (c *Cache) ZRRange(key string, offset, limit int) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zrange(key, offset, limit, true)
}

func (c *Cache) zrange(key string, offset, limit int, reverse bool) []Member {
	z := c.zsets[key]
	if z == nil || limit <= 0 || offset < 0 {
		return nil
	}
	var out []Member
	i := 0
	z.each(reverse, func(m Member) bool {
		if i >= offset {
			out = append(out, m)
		}
		i++
		return len(out) < limit
	})
	return out
}

// ZCount counts members with a score in [min, max].
func (c *Cache) ZCount(key string, min, max int64) int64 {
	n, _ := c.aggregate(key, min, max)
	return n
}

// ZSum sums the scores in [min, max].
func (c *Cache) ZSum(key string, min, max int64) int64 {
	_, sum := c.aggregate(key, min, max)
	return sum
}

// ZAvg averages the scores in [min, max]. It returns 0 for an empty range.
func (c *Cache) ZAvg(key string, min, max int64) float64 {
	n, sum := c.aggregate(key, min, max)
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func (c *Cache) aggregate(key string, min, max int64) (count, sum int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	z := c.zsets[key]
	if z == nil {
		return 0, 0
	}
	z.order.AscendGreaterOrEqual(Member{Score: min}, func(m Member) bool {
		if m.Score > max {
			return false
		}
		count++
		sum += m.Score
		return true
	})
	return count, sum
}

// ZRemRangeByRank removes members with an ascending rank in [start, end]
// and returns how many were removed.
func (c *Cache) ZRemRangeByRank(key string, start, end int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsets[key]
	if z == nil {
		return 0
	}
	from, to := clampSlice(start, end, int64(len(z.scores)))
	var victims []string
	var i int64
	z.each(false, func(m Member) bool {
		if i >= to {
			return false
		}
		if i >= from {
			victims = append(victims, m.ID)
		}
		i++
		return true
	})
	return c.zremove(key, z, victims)
}

// ZRemRangeByScore removes members with a score in [min, max].
func (c *Cache) ZRemRangeByScore(key string, min, max int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsets[key]
	if z == nil {
		return 0
	}
	var victims []string
	z.order.AscendGreaterOrEqual(Member{Score: min}, func(m Member) bool {
		if m.Score > max {
			return false
		}
		victims = append(victims, m.ID)
		return true
	})
	return c.zremove(key, z, victims)
}

func (c *Cache) zremove(key string, z *zset, ids []string) int64 {
	var n int64
	for _, id := range ids {
		if z.remove(id) {
			n++
		}
	}
	c.dropZSetIfEmpty(key)
	return n
}

// ZPopFront removes and returns up to limit members with the lowest
// scores.
func (c *Cache) ZPopFront(key string, limit int) []Member {
	return c.zpop(key, limit, false)
}

// ZPopBack removes and returns up to limit members with the highest
// scores.
func (c *Cache) ZPopBack(key string, limit int) []Member {
	return c.zpop(key, limit, true)
}

func (c *Cache) zpop(key string, limit int, reverse bool) []Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	popped := c.zrange(key, 0, limit, reverse)
	if len(popped) == 0 {
		return nil
	}
	z := c.zsets[key]
	ids := make([]string, len(popped))
	for i, m := range popped {
		ids[i] = m.ID
	}
	c.zremove(key, z, ids)
	return popped
}

// MultiZSet sets several scores and returns how many members were new.
func (c *Cache) MultiZSet(key string, members []Member) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsetFor(key, true)
	var added int64
	for _, m := range members {
		if z.set(m.ID, m.Score) {
			added++
		}
	}
	c.dropZSetIfEmpty(key)
	return added
}

// MultiZGet returns the requested members that exist, in request order.
func (c *Cache) MultiZGet(key string, ids []string) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	z := c.zsets[key]
	if z == nil {
		return nil
	}
	var out []Member
	for _, id := range ids {
		if s, ok := z.scores[id]; ok {
			out = append(out, Member{ID: id, Score: s})
		}
	}
	return out
}

// MultiZDel removes members and returns how many existed.
func (c *Cache) MultiZDel(key string, ids []string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.zsets[key]
	if z == nil {
		return 0
	}
	return c.zremove(key, z, ids)
}
