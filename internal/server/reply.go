package server

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shardkv/shardkv/pkg/cache"
	"github.com/shardkv/shardkv/pkg/protocol"
)

type reply struct {
	status protocol.Status
	blocks [][]byte
}

func okReply(values ...string) reply {
	blocks := make([][]byte, len(values))
	for i, v := range values {
		blocks[i] = []byte(v)
	}
	return reply{status: protocol.StatusOK, blocks: blocks}
}

func intReply(n int64) reply {
	return okReply(strconv.FormatInt(n, 10))
}

func boolReply(b bool) reply {
	if b {
		return okReply("1")
	}
	return okReply("0")
}

// valueReply answers with v when found and not_found otherwise.
func valueReply(v string, found bool) reply {
	if !found {
		return notFound()
	}
	return okReply(v)
}

func notFound() reply {
	return reply{status: protocol.StatusNotFound}
}

func errorReply(messages ...string) reply {
	return okReplyWithStatus(protocol.StatusError, messages...)
}

func clientError(format string, args ...interface{}) reply {
	return okReplyWithStatus(protocol.StatusClientError, fmt.Sprintf(format, args...))
}

func okReplyWithStatus(status protocol.Status, values ...string) reply {
	rep := okReply(values...)
	rep.status = status
	return rep
}

func pairsReply(pairs []cache.KeyValue) reply {
	blocks := make([][]byte, 0, len(pairs)*2)
	for _, kv := range pairs {
		blocks = append(blocks, []byte(kv.Key), []byte(kv.Value))
	}
	return reply{status: protocol.StatusOK, blocks: blocks}
}

func membersReply(members []cache.Member) reply {
	blocks := make([][]byte, 0, len(members)*2)
	for _, m := range members {
		blocks = append(blocks, []byte(m.ID), []byte(strconv.FormatInt(m.Score, 10)))
	}
	return reply{status: protocol.StatusOK, blocks: blocks}
}

func idsReply(members []cache.Member) reply {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return okReply(ids...)
}

// argList is the argument blocks of one request, verb excluded.
type argList [][]byte

func (a argList) str(i int) string {
	return string(a[i])
}

func (a argList) strs(from int) []string {
	out := make([]string, 0, len(a)-from)
	for _, b := range a[from:] {
		out = append(out, string(b))
	}
	return out
}

func (a argList) int64At(i int) (int64, error) {
	v, err := strconv.ParseInt(string(a[i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %d is not an integer: %q", i+1, a[i])
	}
	return v, nil
}

func (a argList) intAt(i int) (int, error) {
	v, err := a.int64At(i)
	return int(v), err
}

// optInt64 returns argument i, or def when the request is shorter.
func (a argList) optInt64(i int, def int64) (int64, error) {
	if i >= len(a) {
		return def, nil
	}
	return a.int64At(i)
}

// score parses a score bound. An empty bound is open and yields open.
func (a argList) score(i int, open int64) (int64, error) {
	if len(a[i]) == 0 {
		return open, nil
	}
	return a.int64At(i)
}

// pairs reads alternating name/value arguments starting at from.
func (a argList) pairs(from int) ([]cache.KeyValue, error) {
	if (len(a)-from)%2 != 0 {
		return nil, errors.New("odd number of name/value arguments")
	}
	out := make([]cache.KeyValue, 0, (len(a)-from)/2)
	for i := from; i < len(a); i += 2 {
		out = append(out, cache.KeyValue{Key: a.str(i), Value: a.str(i + 1)})
	}
	return out, nil
}

func (a argList) members(from int) ([]cache.Member, error) {
	pairs, err := a.pairs(from)
	if err != nil {
		return nil, err
	}
	out := make([]cache.Member, len(pairs))
	for i, kv := range pairs {
		score, err := strconv.ParseInt(kv.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("score for %q is not an integer: %q", kv.Key, kv.Value)
		}
		out[i] = cache.Member{ID: kv.Key, Score: score}
	}
	return out, nil
}

// rangeArgs reads the (start, end, limit) triple used by listing verbs.
func (a argList) rangeArgs(from int) (string, string, int, error) {
	limit, err := a.intAt(from + 2)
	return a.str(from), a.str(from + 1), limit, err
}

// scoreWindow reads the (score, score, limit) arguments of zkeys, zscan and
// zrscan starting at from. zrscan lists the upper bound first.
func (a argList) scoreWindow(from int, reverse bool) (min, max int64, limit int, err error) {
	lo, hi := from, from+1
	if reverse {
		lo, hi = hi, lo
	}
	if min, err = a.score(lo, cache.MinScore); err != nil {
		return
	}
	if max, err = a.score(hi, cache.MaxScore); err != nil {
		return
	}
	limit, err = a.intAt(from + 2)
	return
}
