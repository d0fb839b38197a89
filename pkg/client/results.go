package client

import (
	"context"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// MaxBitOffset is the largest offset accepted by GetBit, SetBit and
// BitCount.
const MaxBitOffset = 1<<30 - 1

func requireKey(verb, key string) error {
	if key == "" {
		return kverrors.Precondition(verb, "", "key must not be empty")
	}
	return nil
}

func requireValue(verb, key string, value interface{}) error {
	if protocol.IsNil(value) {
		return kverrors.Precondition(verb, key, "cannot store a nil value")
	}
	return nil
}

// read and write run a keyed command after checking the key.
func (c *Client) read(ctx context.Context, verb, key string, args ...interface{}) (*protocol.Response, error) {
	if err := requireKey(verb, key); err != nil {
		return nil, err
	}
	return c.Execute(ctx, verb, append([]interface{}{key}, args...)...)
}

func (c *Client) write(ctx context.Context, verb, key string, args ...interface{}) (*protocol.Response, error) {
	if err := requireKey(verb, key); err != nil {
		return nil, err
	}
	return c.ExecuteWrite(ctx, verb, append([]interface{}{key}, args...)...)
}

func textResult(resp *protocol.Response, err error) (string, bool, error) {
	if err != nil {
		return "", false, err
	}
	s, ok := resp.Text()
	return s, ok, nil
}

func bytesResult(resp *protocol.Response, err error) ([]byte, bool, error) {
	if err != nil {
		return nil, false, err
	}
	b, ok := resp.Bytes()
	return b, ok, nil
}

// int64Result treats an absent value as zero.
func int64Result(resp *protocol.Response, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	v, _, err := resp.Int64()
	return v, err
}

func intResult(resp *protocol.Response, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	v, _, err := resp.Int32()
	return int(v), err
}

func boolResult(resp *protocol.Response, err error) (bool, error) {
	v, err := int64Result(resp, err)
	return v > 0, err
}

func stringsResult(resp *protocol.Response, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return resp.Strings(), nil
}

func keyValuesResult(resp *protocol.Response, err error) ([]protocol.KeyValue, error) {
	if err != nil {
		return nil, err
	}
	return resp.KeyValues()
}

func idScoresResult(resp *protocol.Response, err error) ([]protocol.IDScore, error) {
	if err != nil {
		return nil, err
	}
	return resp.IDScores()
}

func errResult(_ *protocol.Response, err error) error {
	return err
}

// pairArgs flattens key/value pairs into alternating arguments.
func pairArgs(verb, key string, pairs []protocol.KeyValue) ([]interface{}, error) {
	args := make([]interface{}, 0, len(pairs)*2)
	for _, kv := range pairs {
		if kv.Key == "" {
			return nil, kverrors.Precondition(verb, key, "empty name in pair list")
		}
		args = append(args, kv.Key, kv.Value)
	}
	return args, nil
}

// flatPairs validates an alternating name/value list.
func flatPairs(verb, key string, items []string) ([]protocol.KeyValue, error) {
	if len(items)%2 != 0 {
		return nil, kverrors.Precondition(verb, key, "odd number of arguments: %d", len(items))
	}
	pairs := make([]protocol.KeyValue, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		pairs = append(pairs, protocol.KeyValue{Key: items[i], Value: items[i+1]})
	}
	return pairs, nil
}

func stringArgs(items []string) []interface{} {
	args := make([]interface{}, len(items))
	for i, s := range items {
		args[i] = s
	}
	return args
}

func checkBitOffset(verb, key string, offsets ...int64) error {
	for _, off := range offsets {
		if off > MaxBitOffset {
			return kverrors.Precondition(verb, key, "offset %d exceeds %d", off, MaxBitOffset)
		}
	}
	return nil
}
