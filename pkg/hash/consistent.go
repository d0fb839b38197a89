// Package hash provides the weighted consistent hash ring that maps keys to
// clusters.
//
// Each node (a cluster identity) is placed on the ring Weight × VirtualNodes
// times. A key belongs to the first node position at or after the key's
// hash, wrapping around to the smallest position.
//
// Example usage:
//
//	ring := hash.Build([]hash.Node{
//		{ID: "cluster-a", Weight: 1},
//		{ID: "cluster-b", Weight: 2},
//	})
//	owner, ok := ring.Locate("user:123")
//
// A Ring is immutable. With and Without return a new Ring that shares
// unchanged structure with the receiver, so readers holding the old ring
// keep seeing a complete, consistent view:
//
//	next := ring.With(hash.Node{ID: "cluster-c", Weight: 1})
//
// The ring ensures that:
//   - The same key always maps to the same node on the same ring
//   - Nodes receive keys in proportion to their weight
//   - Adding or removing a node only moves keys whose nearest position changed
package hash

import (
	"fmt"

	"github.com/google/btree"
)

// DefaultVirtualNodes is the number of ring positions per unit of weight.
const DefaultVirtualNodes = 150

const btreeDegree = 32

// Node is a ring member and its relative weight.
type Node struct {
	ID     string
	Weight int
}

type vnode struct {
	pos  uint64
	node string
}

func lessVNode(a, b vnode) bool {
	if a.pos != b.pos {
		return a.pos < b.pos
	}
	return a.node < b.node
}

type options struct {
	virtualNodes int
	hash         Func
}

// Option configures Build.
type Option func(*options)

// WithVirtualNodes sets the number of positions per unit of weight.
// Values <= 0 select DefaultVirtualNodes.
func WithVirtualNodes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.virtualNodes = n
		}
	}
}

// WithHashFunc sets the hash function used for both node positions and keys.
func WithHashFunc(fn Func) Option {
	return func(o *options) {
		if fn != nil {
			o.hash = fn
		}
	}
}

// Ring is an immutable weighted consistent hash ring.
//
// Locate, Nodes and Stats are safe for concurrent use. With and Without
// must not be called concurrently on the same Ring; callers that rebuild
// serialize those calls and publish the result atomically.
type Ring struct {
	tree         *btree.BTreeG[vnode]
	nodes        []Node
	virtualNodes int
	hash         Func
}

// Build creates a ring from nodes. A non-positive weight counts as 1 and
// repeated IDs keep their first occurrence.
func Build(nodes []Node, opts ...Option) *Ring {
	o := options{virtualNodes: DefaultVirtualNodes, hash: XXHash}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Ring{
		tree:         btree.NewG[vnode](btreeDegree, lessVNode),
		virtualNodes: o.virtualNodes,
		hash:         o.hash,
	}
	for _, n := range nodes {
		if r.Has(n.ID) {
			continue
		}
		r.insert(normalize(n))
	}
	return r
}

// With returns a ring that additionally contains node. If a node with the
// same ID already exists it is replaced, which matters when its weight changed.
func (r *Ring) With(node Node) *Ring {
	node = normalize(node)
	next := r.Without(node.ID)
	if next == r {
		next = r.clone()
	}
	next.insert(node)
	return next
}

// Without returns a ring with the node id removed. If id is not on the
// ring the receiver itself is returned.
func (r *Ring) Without(id string) *Ring {
	idx := r.indexOf(id)
	if idx < 0 {
		return r
	}

	next := r.clone()
	removed := next.nodes[idx]
	next.nodes = append(next.nodes[:idx:idx], next.nodes[idx+1:]...)
	for i := 0; i < removed.Weight*r.virtualNodes; i++ {
		next.tree.Delete(vnode{pos: r.position(removed.ID, i), node: removed.ID})
	}
	return next
}

// Locate returns the node that owns key. It reports false when the ring is empty.
//
// The same key always returns the same node on the same ring.
func (r *Ring) Locate(key string) (string, bool) {
	if r.tree.Len() == 0 {
		return "", false
	}

	h := r.hash([]byte(key))
	var owner vnode
	found := false
	r.tree.AscendGreaterOrEqual(vnode{pos: h}, func(v vnode) bool {
		owner = v
		found = true
		return false
	})
	if !found {
		owner, found = r.tree.Min()
	}
	return owner.node, found
}

// Has reports whether id is a member of the ring.
func (r *Ring) Has(id string) bool {
	return r.indexOf(id) >= 0
}

// Nodes returns the ring members in the order they were added.
func (r *Ring) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Len returns the number of members.
func (r *Ring) Len() int {
	return len(r.nodes)
}

// Stats returns statistics about the ring, useful for debugging distribution.
//
// Returns:
//   - "nodes": number of members
//   - "virtual_nodes": total number of positions on the ring
//   - "virtual_nodes_per_weight": positions per unit of weight
func (r *Ring) Stats() map[string]interface{} {
	return map[string]interface{}{
		"nodes":                    len(r.nodes),
		"virtual_nodes":            r.tree.Len(),
		"virtual_nodes_per_weight": r.virtualNodes,
	}
}

func (r *Ring) insert(n Node) {
	r.nodes = append(r.nodes, n)
	for i := 0; i < n.Weight*r.virtualNodes; i++ {
		r.tree.ReplaceOrInsert(vnode{pos: r.position(n.ID, i), node: n.ID})
	}
}

func (r *Ring) clone() *Ring {
	nodes := make([]Node, len(r.nodes))
	copy(nodes, r.nodes)
	return &Ring{
		tree:         r.tree.Clone(),
		nodes:        nodes,
		virtualNodes: r.virtualNodes,
		hash:         r.hash,
	}
}

func (r *Ring) indexOf(id string) int {
	for i, n := range r.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (r *Ring) position(id string, i int) uint64 {
	return r.hash([]byte(fmt.Sprintf("%s:%d", id, i)))
}

func normalize(n Node) Node {
	if n.Weight <= 0 {
		n.Weight = 1
	}
	return n
}
