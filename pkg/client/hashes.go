package client

import (
	"context"

	"github.com/shardkv/shardkv/pkg/protocol"
)

// HSet sets field of the hash at key and reports whether the field is new.
func (c *Client) HSet(ctx context.Context, key, field string, value interface{}) (bool, error) {
	if err := requireValue("hset", key, value); err != nil {
		return false, err
	}
	return boolResult(c.write(ctx, "hset", key, field, value))
}

// HGet returns a field of the hash at key.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return textResult(c.read(ctx, "hget", key, field))
}

// HDel removes a field and reports whether it existed.
func (c *Client) HDel(ctx context.Context, key, field string) (bool, error) {
	return boolResult(c.write(ctx, "hdel", key, field))
}

// HIncr adds by to an integer field and returns the new value.
func (c *Client) HIncr(ctx context.Context, key, field string, by int64) (int64, error) {
	return int64Result(c.write(ctx, "hincr", key, field, by))
}

// HExists reports whether field exists in the hash at key.
func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	return boolResult(c.read(ctx, "hexists", key, field))
}

// HSize returns the number of fields in the hash at key.
func (c *Client) HSize(ctx context.Context, key string) (int, error) {
	return intResult(c.read(ctx, "hsize", key))
}

// HList lists hash names in (startExclude, endInclude] on the default
// cluster.
func (c *Client) HList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "hlist", startExclude, endInclude, limit))
}

// HRList is HList in reverse order.
func (c *Client) HRList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "hrlist", startExclude, endInclude, limit))
}

// HKeys lists field names of the hash at key in (startExclude, endInclude].
func (c *Client) HKeys(ctx context.Context, key, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.read(ctx, "hkeys", key, startExclude, endInclude, limit))
}

// HGetAll returns every field of the hash at key, in field order.
func (c *Client) HGetAll(ctx context.Context, key string) ([]protocol.KeyValue, error) {
	return keyValuesResult(c.read(ctx, "hgetall", key))
}

// HGetAllMap is HGetAll as a map.
func (c *Client) HGetAllMap(ctx context.Context, key string) (map[string]string, error) {
	resp, err := c.read(ctx, "hgetall", key)
	if err != nil {
		return nil, err
	}
	return resp.Map()
}

// HScan lists fields and values in (startExclude, endInclude].
func (c *Client) HScan(ctx context.Context, key, startExclude, endInclude string, limit int) ([]protocol.KeyValue, error) {
	return keyValuesResult(c.read(ctx, "hscan", key, startExclude, endInclude, limit))
}

// HRScan is HScan in reverse order.
func (c *Client) HRScan(ctx context.Context, key, startExclude, endInclude string, limit int) ([]protocol.KeyValue, error) {
	return keyValuesResult(c.read(ctx, "hrscan", key, startExclude, endInclude, limit))
}

// HClear deletes the hash at key and returns the number of fields removed.
func (c *Client) HClear(ctx context.Context, key string) (int64, error) {
	return int64Result(c.write(ctx, "hclear", key))
}

// MultiHSet sets alternating field/value arguments on the hash at key.
func (c *Client) MultiHSet(ctx context.Context, key string, fieldValues ...string) error {
	pairs, err := flatPairs("multi_hset", key, fieldValues)
	if err != nil {
		return err
	}
	return c.MultiHSetPairs(ctx, key, pairs)
}

// MultiHSetPairs is MultiHSet over explicit pairs.
func (c *Client) MultiHSetPairs(ctx context.Context, key string, pairs []protocol.KeyValue) error {
	if len(pairs) == 0 {
		return nil
	}
	args, err := pairArgs("multi_hset", key, pairs)
	if err != nil {
		return err
	}
	return errResult(c.write(ctx, "multi_hset", key, args...))
}

// MultiHGet returns the requested fields that exist.
func (c *Client) MultiHGet(ctx context.Context, key string, fields ...string) ([]protocol.KeyValue, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	return keyValuesResult(c.read(ctx, "multi_hget", key, stringArgs(fields)...))
}

// MultiHDel removes fields and returns how many existed.
func (c *Client) MultiHDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return int64Result(c.write(ctx, "multi_hdel", key, stringArgs(fields)...))
}
