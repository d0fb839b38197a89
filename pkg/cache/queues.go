package cache

type queue struct {
	items []string
}

func (c *Cache) queueFor(key string, create bool) *queue {
	q, ok := c.queues[key]
	if !ok && create {
		q = &queue{}
		c.queues[key] = q
		c.queueNames.ReplaceOrInsert(key)
	}
	return q
}

func (c *Cache) dropQueueIfEmpty(key string) {
	if q, ok := c.queues[key]; ok && len(q.items) == 0 {
		delete(c.queues, key)
		c.queueNames.Delete(key)
	}
}

// QPushFront pushes each value onto the head of the queue in turn, so the
// last value ends up first, and returns the new length.
func (c *Cache) QPushFront(key string, values ...string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queueFor(key, true)
	head := make([]string, len(values), len(values)+len(q.items))
	for i, v := range values {
		head[len(values)-1-i] = v
	}
	q.items = append(head, q.items...)
	c.dropQueueIfEmpty(key)
	return int64(len(q.items))
}

// QPushBack appends values to the tail and returns the new length.
func (c *Cache) QPushBack(key string, values ...string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queueFor(key, true)
	q.items = append(q.items, values...)
	c.dropQueueIfEmpty(key)
	return int64(len(q.items))
}

// QPopFront removes and returns up to size values from the head.
func (c *Cache) QPopFront(key string, size int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[key]
	if q == nil || size <= 0 {
		return nil
	}
	if size > len(q.items) {
		size = len(q.items)
	}
	out := append([]string(nil), q.items[:size]...)
	q.items = q.items[size:]
	c.dropQueueIfEmpty(key)
	return out
}

// QPopBack removes and returns up to size values from the tail, last value
// first.
func (c *Cache) QPopBack(key string, size int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[key]
	if q == nil || size <= 0 {
		return nil
	}
	if size > len(q.items) {
		size = len(q.items)
	}
	n := len(q.items)
	out := make([]string, size)
	for i := range out {
		out[i] = q.items[n-1-i]
	}
	q.items = q.items[:n-size]
	c.dropQueueIfEmpty(key)
	return out
}

// QFront returns the head of the queue.
func (c *Cache) QFront(key string) (string, bool) {
	return c.QGet(key, 0)
}

// QBack returns the tail of the queue.
func (c *Cache) QBack(key string) (string, bool) {
	return c.QGet(key, -1)
}

// QSize returns the length of the queue.
func (c *Cache) QSize(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if q := c.queues[key]; q != nil {
		return int64(len(q.items))
	}
	return 0
}

// QClear deletes the queue and returns how many values it held.
func (c *Cache) QClear(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[key]
	if q == nil {
		return 0
	}
	delete(c.queues, key)
	c.queueNames.Delete(key)
	return int64(len(q.items))
}

// QGet returns the value at index. Negative indexes count from the tail.
func (c *Cache) QGet(key string, index int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := c.queues[key]
	if q == nil {
		return "", false
	}
	i := normalizeIndex(index, int64(len(q.items)))
	if i < 0 || i >= int64(len(q.items)) {
		return "", false
	}
	return q.items[i], true
}

// QSet replaces the value at index.
func (c *Cache) QSet(key string, index int64, val string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[key]
	if q == nil {
		return ErrIndexOutOfRange
	}
	i := normalizeIndex(index, int64(len(q.items)))
	if i < 0 || i >= int64(len(q.items)) {
		return ErrIndexOutOfRange
	}
	q.items[i] = val
	return nil
}

// QRange returns up to limit values starting at offset. offset may count
// from the tail.
func (c *Cache) QRange(key string, offset, limit int64) []string {
	if limit <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := c.queues[key]
	if q == nil {
		return nil
	}
	n := int64(len(q.items))
	from := normalizeIndex(offset, n)
	if from < 0 {
		from = 0
	}
	if from >= n {
		return nil
	}
	to := n
	if limit < n-from {
		to = from + limit
	}
	return append([]string(nil), q.items[from:to]...)
}

// QSlice returns the values between the inclusive indexes start and end.
func (c *Cache) QSlice(key string, start, end int64) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := c.queues[key]
	if q == nil {
		return nil
	}
	from, to := clampSlice(start, end, int64(len(q.items)))
	if from == to {
		return nil
	}
	return append([]string(nil), q.items[from:to]...)
}

// QTrimFront removes up to size values from the head and returns how many
// were removed.
func (c *Cache) QTrimFront(key string, size int) int64 {
	return int64(len(c.QPopFront(key, size)))
}

// QTrimBack removes up to size values from the tail.
func (c *Cache) QTrimBack(key string, size int) int64 {
	return int64(len(c.QPopBack(key, size)))
}

// QList lists queue names in (start, end].
func (c *Cache) QList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.queueNames, start, end, limit, false, nil)
}

// QRList lists queue names in [end, start), highest first.
func (c *Cache) QRList(start, end string, limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return scanRange(c.queueNames, start, end, limit, true, nil)
}
