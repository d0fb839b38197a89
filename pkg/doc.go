// Package shardkv groups the public packages of the sharding client
// runtime. It has no code of its own.
//
// # Request Path
//
// A typed call such as client.Get travels through the packages in this
// order:
//
//  1. pkg/client validates the arguments, picks the owning cluster from
//     the first argument and records request metrics.
//  2. pkg/hash maps the key to a cluster ID on the weighted ring.
//     Keyless verbs (dbsize, info, the list and scan commands) go to the
//     first declared cluster instead.
//  3. pkg/cluster borrows a connection from the first healthy server's
//     pool, authenticating new connections when a password is set, and
//     moves to the next server only on a transport failure.
//  4. pkg/protocol frames the request, reads the response and turns its
//     status into a typed result or a pkg/errors value.
//
// # Wire Format
//
// Every message is a sequence of blocks followed by an empty line. A block
// is its length in decimal, a newline, the bytes themselves and another
// newline:
//
//	3\nset\n1\na\n1\n1\n\n
//
// Responses use the same framing. The first block is the status (ok,
// not_found, error, fail or client_error) and the remaining blocks are the
// payload.
//
// # Topology Changes
//
// client.AddCluster and client.RemoveCluster swap an immutable snapshot of
// the ring and cluster table. Requests already in flight finish against
// the snapshot they started with. Only the keys of the added or removed
// cluster change owner.
//
// # Concurrency
//
// Client, Cluster and Pool are safe for concurrent use. A Conn is used by
// one goroutine at a time between Borrow and Release. Multi-key commands
// fan out to their clusters concurrently and are not atomic across
// clusters.
package shardkv
