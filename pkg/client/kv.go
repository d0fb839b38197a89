package client

import (
	"context"
	"strings"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// DBSize returns the approximate size of the default cluster's database.
func (c *Client) DBSize(ctx context.Context) (int64, error) {
	return int64Result(c.Execute(ctx, "dbsize"))
}

// Info returns the default cluster's server information, one block per line.
func (c *Client) Info(ctx context.Context) (string, error) {
	resp, err := c.Execute(ctx, "info")
	if err != nil {
		return "", err
	}
	return resp.Join("\n"), nil
}

// Get returns the value of key. found is false when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool, err error) {
	return textResult(c.read(ctx, "get", key))
}

// GetBytes is Get returning the raw value.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	return bytesResult(c.read(ctx, "get", key))
}

// Set stores value under key. value may be a string, []byte, number or bool.
func (c *Client) Set(ctx context.Context, key string, value interface{}) error {
	if err := requireValue("set", key, value); err != nil {
		return err
	}
	return errResult(c.write(ctx, "set", key, value))
}

// SetX stores value under key with a time to live in seconds.
func (c *Client) SetX(ctx context.Context, key string, value interface{}, ttlSeconds int) error {
	if err := requireValue("setx", key, value); err != nil {
		return err
	}
	if ttlSeconds < 1 {
		return kverrors.Precondition("setx", key, "ttl must be at least one second: %d", ttlSeconds)
	}
	return errResult(c.write(ctx, "setx", key, value, ttlSeconds))
}

// SetNX stores value only if key does not exist and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}) (bool, error) {
	if err := requireValue("setnx", key, value); err != nil {
		return false, err
	}
	return boolResult(c.write(ctx, "setnx", key, value))
}

// GetSet stores value and returns the previous one, if any.
func (c *Client) GetSet(ctx context.Context, key string, value interface{}) (string, bool, error) {
	if err := requireValue("getset", key, value); err != nil {
		return "", false, err
	}
	return textResult(c.write(ctx, "getset", key, value))
}

// Expire sets the time to live of an existing key and reports whether the
// key exists.
func (c *Client) Expire(ctx context.Context, key string, ttlSeconds int) (bool, error) {
	return boolResult(c.write(ctx, "expire", key, ttlSeconds))
}

// TTL returns the remaining time to live in seconds, -1 when the key has
// no expiry.
func (c *Client) TTL(ctx context.Context, key string) (int64, error) {
	return int64Result(c.read(ctx, "ttl", key))
}

// Del deletes keys. Several keys are grouped by owning cluster; see MultiDel.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	switch len(keys) {
	case 0:
		return nil
	case 1:
		return errResult(c.write(ctx, "del", keys[0]))
	default:
		return c.MultiDel(ctx, keys...)
	}
}

// Incr adds by to the integer stored at key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string, by int64) (int64, error) {
	return int64Result(c.write(ctx, "incr", key, by))
}

// Exists reports whether key exists.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	return boolResult(c.read(ctx, "exists", key))
}

// GetBit returns the bit at offset.
func (c *Client) GetBit(ctx context.Context, key string, offset int64) (int, error) {
	if err := checkBitOffset("getbit", key, offset); err != nil {
		return 0, err
	}
	return intResult(c.read(ctx, "getbit", key, offset))
}

// SetBit sets the bit at offset to bit and returns its previous value.
func (c *Client) SetBit(ctx context.Context, key string, offset int64, bit int) (int, error) {
	if err := checkBitOffset("setbit", key, offset); err != nil {
		return 0, err
	}
	if bit != 0 && bit != 1 {
		return 0, kverrors.Precondition("setbit", key, "bit must be 0 or 1: %d", bit)
	}
	return intResult(c.write(ctx, "setbit", key, offset, bit))
}

// BitCount counts set bits between the byte offsets start and end.
func (c *Client) BitCount(ctx context.Context, key string, start, end int64) (int, error) {
	if err := checkBitOffset("bitcount", key, start, end); err != nil {
		return 0, err
	}
	return intResult(c.read(ctx, "bitcount", key, start, end))
}

// StrLen returns the length of the value stored at key.
func (c *Client) StrLen(ctx context.Context, key string) (int, error) {
	return intResult(c.read(ctx, "strlen", key))
}

// Substr returns size bytes of the value starting at start. A negative
// size stops that many bytes before the end.
func (c *Client) Substr(ctx context.Context, key string, start, size int) (string, error) {
	s, _, err := textResult(c.read(ctx, "substr", key, start, size))
	return s, err
}

// Keys lists keys in (startExclude, endInclude]. Empty bounds are open.
// Only the default cluster's keys are listed.
func (c *Client) Keys(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "keys", startExclude, endInclude, limit))
}

// RKeys is Keys in reverse order.
func (c *Client) RKeys(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "rkeys", startExclude, endInclude, limit))
}

// Scan lists key/value pairs in (startExclude, endInclude]. Only the
// default cluster's keys are listed; keys routed to other clusters are not
// visible here.
func (c *Client) Scan(ctx context.Context, startExclude, endInclude string, limit int) ([]protocol.KeyValue, error) {
	return keyValuesResult(c.Execute(ctx, "scan", startExclude, endInclude, limit))
}

// RScan is Scan in reverse order.
func (c *Client) RScan(ctx context.Context, startExclude, endInclude string, limit int) ([]protocol.KeyValue, error) {
	return keyValuesResult(c.Execute(ctx, "rscan", startExclude, endInclude, limit))
}

// ScanPrefix pages through every key starting with prefix, batch keys at a
// time, calling fn for each pair in key order. Only the default cluster's
// keys are visited; keys routed to other clusters are skipped.
// It stops early when fn returns an error and returns that error.
func (c *Client) ScanPrefix(ctx context.Context, prefix string, batch int, fn func(protocol.KeyValue) error) error {
	if batch < 1 {
		return kverrors.Precondition("scan", prefix, "batch size must be positive: %d", batch)
	}

	start, end := prefix, prefix+"\xff"
	for {
		page, err := c.Scan(ctx, start, end, batch)
		if err != nil {
			return err
		}
		for _, kv := range page {
			if !strings.HasPrefix(kv.Key, prefix) {
				return nil
			}
			if err := fn(kv); err != nil {
				return err
			}
		}
		if len(page) < batch {
			return nil
		}
		start = page[len(page)-1].Key
	}
}
