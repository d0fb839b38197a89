package client

import (
	"context"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
)

func pushArgs(verb, key string, values []interface{}) error {
	if len(values) == 0 {
		return kverrors.Precondition(verb, key, "no values to push")
	}
	for _, v := range values {
		if err := requireValue(verb, key, v); err != nil {
			return err
		}
	}
	return nil
}

// QPushFront adds values to the head of the queue and returns its new size.
func (c *Client) QPushFront(ctx context.Context, key string, values ...interface{}) (int64, error) {
	if err := pushArgs("qpush_front", key, values); err != nil {
		return 0, err
	}
	return int64Result(c.write(ctx, "qpush_front", key, values...))
}

// QPushBack adds values to the tail of the queue and returns its new size.
func (c *Client) QPushBack(ctx context.Context, key string, values ...interface{}) (int64, error) {
	if err := pushArgs("qpush_back", key, values); err != nil {
		return 0, err
	}
	return int64Result(c.write(ctx, "qpush_back", key, values...))
}

// QPopFront removes and returns up to size values from the head.
func (c *Client) QPopFront(ctx context.Context, key string, size int) ([]string, error) {
	return stringsResult(c.write(ctx, "qpop_front", key, size))
}

// QPopBack removes and returns up to size values from the tail.
func (c *Client) QPopBack(ctx context.Context, key string, size int) ([]string, error) {
	return stringsResult(c.write(ctx, "qpop_back", key, size))
}

// QPopAllFront drains the queue from the head, batch values per request,
// calling fn for each value. It stops early when fn returns an error.
func (c *Client) QPopAllFront(ctx context.Context, key string, batch int, fn func(string) error) error {
	return c.qpopAll(ctx, "qpop_front", key, batch, fn)
}

// QPopAllBack drains the queue from the tail.
func (c *Client) QPopAllBack(ctx context.Context, key string, batch int, fn func(string) error) error {
	return c.qpopAll(ctx, "qpop_back", key, batch, fn)
}

func (c *Client) qpopAll(ctx context.Context, verb, key string, batch int, fn func(string) error) error {
	if batch < 1 {
		return kverrors.Precondition(verb, key, "batch size must be positive: %d", batch)
	}
	for {
		values, err := stringsResult(c.write(ctx, verb, key, batch))
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		for _, v := range values {
			if err := fn(v); err != nil {
				return err
			}
		}
	}
}

// QFront returns the head of the queue without removing it.
func (c *Client) QFront(ctx context.Context, key string) (string, bool, error) {
	return textResult(c.read(ctx, "qfront", key))
}

// QBack returns the tail of the queue without removing it.
func (c *Client) QBack(ctx context.Context, key string) (string, bool, error) {
	return textResult(c.read(ctx, "qback", key))
}

// QSize returns the length of the queue.
func (c *Client) QSize(ctx context.Context, key string) (int64, error) {
	return int64Result(c.read(ctx, "qsize", key))
}

// QClear deletes the queue and returns the number of values removed.
func (c *Client) QClear(ctx context.Context, key string) (int64, error) {
	return int64Result(c.write(ctx, "qclear", key))
}

// QGet returns the value at index. Negative indexes count from the tail.
func (c *Client) QGet(ctx context.Context, key string, index int64) (string, bool, error) {
	return textResult(c.read(ctx, "qget", key, index))
}

// QSet replaces the value at index.
func (c *Client) QSet(ctx context.Context, key string, index int64, value interface{}) error {
	if err := requireValue("qset", key, value); err != nil {
		return err
	}
	return errResult(c.write(ctx, "qset", key, index, value))
}

// QRange returns up to limit values starting at offset.
func (c *Client) QRange(ctx context.Context, key string, offset, limit int64) ([]string, error) {
	return stringsResult(c.read(ctx, "qrange", key, offset, limit))
}

// QSlice returns the values between the inclusive indexes start and end.
func (c *Client) QSlice(ctx context.Context, key string, start, end int64) ([]string, error) {
	return stringsResult(c.read(ctx, "qslice", key, start, end))
}

// QTrimFront removes up to size values from the head and returns how many
// were removed.
func (c *Client) QTrimFront(ctx context.Context, key string, size int) (int64, error) {
	return int64Result(c.write(ctx, "qtrim_front", key, size))
}

// QTrimBack removes up to size values from the tail.
func (c *Client) QTrimBack(ctx context.Context, key string, size int) (int64, error) {
	return int64Result(c.write(ctx, "qtrim_back", key, size))
}

// QList lists queue names in (startExclude, endInclude] on the default
// cluster.
func (c *Client) QList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "qlist", startExclude, endInclude, limit))
}

// QRList is QList in reverse order.
func (c *Client) QRList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "qrlist", startExclude, endInclude, limit))
}
