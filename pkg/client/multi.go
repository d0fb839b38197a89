package client

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shardkv/shardkv/pkg/cluster"
	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// keyGroup is the part of a multi-key command owned by one cluster.
type keyGroup struct {
	cluster *cluster.Cluster
	args    []interface{}
}

// groupKeys splits keys by owning cluster, preserving the order of first
// appearance. Each key contributes width arguments starting at its index
// in items.
func (c *Client) groupKeys(verb string, items []string, width int) ([]*keyGroup, error) {
	t := c.topo.Load()
	byID := make(map[string]*keyGroup)
	var groups []*keyGroup

	for i := 0; i < len(items); i += width {
		key := items[i]
		if err := requireKey(verb, key); err != nil {
			return nil, err
		}
		cl, err := t.route(verb, []interface{}{key})
		if err != nil {
			return nil, err
		}
		g, ok := byID[cl.ID()]
		if !ok {
			g = &keyGroup{cluster: cl}
			byID[cl.ID()] = g
			groups = append(groups, g)
		}
		for _, item := range items[i : i+width] {
			g.args = append(g.args, item)
		}
	}
	return groups, nil
}

// fanOut runs verb once per group in parallel. There is no atomicity
// across clusters: when one group fails the others may still have applied.
func (c *Client) fanOut(ctx context.Context, verb string, groups []*keyGroup) ([]*protocol.Response, error) {
	if c.closed.Load() {
		return nil, kverrors.ErrClientClosed
	}

	results := make([]*protocol.Response, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			start := time.Now()
			resp, err := group.cluster.Execute(gctx, verb, group.args...)
			c.metrics.ObserveRequest(verb, outcome(resp, err), time.Since(start))
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MultiSet stores alternating key/value arguments. Keys are grouped by
// owning cluster and each group is written with one multi_set request.
func (c *Client) MultiSet(ctx context.Context, keyValues ...string) error {
	if len(keyValues) == 0 {
		return nil
	}
	if len(keyValues)%2 != 0 {
		return kverrors.Precondition("multi_set", keyValues[0], "odd number of arguments: %d", len(keyValues))
	}
	groups, err := c.groupKeys("multi_set", keyValues, 2)
	if err != nil {
		return err
	}
	_, err = c.fanOut(ctx, "multi_set", groups)
	return err
}

// MultiGet returns the keys that exist, in the order they were requested.
func (c *Client) MultiGet(ctx context.Context, keys ...string) ([]protocol.KeyValue, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	groups, err := c.groupKeys("multi_get", keys, 1)
	if err != nil {
		return nil, err
	}
	results, err := c.fanOut(ctx, "multi_get", groups)
	if err != nil {
		return nil, err
	}

	found := make(map[string]string)
	for _, resp := range results {
		pairs, err := resp.KeyValues()
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			found[kv.Key] = kv.Value
		}
	}

	out := make([]protocol.KeyValue, 0, len(found))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if v, ok := found[key]; ok && !seen[key] {
			seen[key] = true
			out = append(out, protocol.KeyValue{Key: key, Value: v})
		}
	}
	return out, nil
}

// MultiDel deletes keys, one multi_del request per owning cluster. A
// single key is sent as del.
func (c *Client) MultiDel(ctx context.Context, keys ...string) error {
	switch len(keys) {
	case 0:
		return nil
	case 1:
		return errResult(c.write(ctx, "del", keys[0]))
	}
	groups, err := c.groupKeys("multi_del", keys, 1)
	if err != nil {
		return err
	}
	_, err = c.fanOut(ctx, "multi_del", groups)
	return err
}
