package client

import (
	"context"
	"math"
	"strconv"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// Score bounds that leave a range open on that side.
const (
	MinScore int64 = math.MinInt64
	MaxScore int64 = math.MaxInt64
)

// scoreBound renders a range bound; the extreme values become the empty
// string, which the server reads as unbounded.
func scoreBound(v int64) string {
	if v == MinScore || v == MaxScore {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// ZSet sets the score of id in the sorted set at key.
func (c *Client) ZSet(ctx context.Context, key, id string, score int64) error {
	return errResult(c.write(ctx, "zset", key, id, score))
}

// ZGet returns the score of id.
func (c *Client) ZGet(ctx context.Context, key, id string) (int64, bool, error) {
	resp, err := c.read(ctx, "zget", key, id)
	if err != nil {
		return 0, false, err
	}
	return resp.Int64()
}

// ZDel removes id and reports whether it existed.
func (c *Client) ZDel(ctx context.Context, key, id string) (bool, error) {
	return boolResult(c.write(ctx, "zdel", key, id))
}

// ZIncr adds by to the score of id and returns the new score.
func (c *Client) ZIncr(ctx context.Context, key, id string, by int64) (int64, error) {
	return int64Result(c.write(ctx, "zincr", key, id, by))
}

// ZSize returns the number of members of the sorted set at key.
func (c *Client) ZSize(ctx context.Context, key string) (int, error) {
	return intResult(c.read(ctx, "zsize", key))
}

// ZClear deletes the sorted set at key and returns the number of members
// removed.
func (c *Client) ZClear(ctx context.Context, key string) (int64, error) {
	return int64Result(c.write(ctx, "zclear", key))
}

// ZList lists sorted set names in (startExclude, endInclude] on the default
// cluster.
func (c *Client) ZList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "zlist", startExclude, endInclude, limit))
}

// ZRList is ZList in reverse order.
func (c *Client) ZRList(ctx context.Context, startExclude, endInclude string, limit int) ([]string, error) {
	return stringsResult(c.Execute(ctx, "zrlist", startExclude, endInclude, limit))
}

// ZKeys lists member IDs ordered by score, starting after startID and
// within [minScore, maxScore].
func (c *Client) ZKeys(ctx context.Context, key, startID string, minScore, maxScore int64, limit int) ([]string, error) {
	return stringsResult(c.read(ctx, "zkeys", key, startID, scoreBound(minScore), scoreBound(maxScore), limit))
}

// ZScan lists members and scores ordered by score, starting after startID
// and within [minScore, maxScore].
func (c *Client) ZScan(ctx context.Context, key, startID string, minScore, maxScore int64, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.read(ctx, "zscan", key, startID, scoreBound(minScore), scoreBound(maxScore), limit))
}

// ZRScan is ZScan in descending score order.
func (c *Client) ZRScan(ctx context.Context, key, startID string, maxScore, minScore int64, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.read(ctx, "zrscan", key, startID, scoreBound(maxScore), scoreBound(minScore), limit))
}

// ZRank returns the ascending rank of id, from 0. found is false when id
// is not a member.
func (c *Client) ZRank(ctx context.Context, key, id string) (int64, bool, error) {
	return rankResult(c.read(ctx, "zrank", key, id))
}

// ZRRank returns the descending rank of id.
func (c *Client) ZRRank(ctx context.Context, key, id string) (int64, bool, error) {
	return rankResult(c.read(ctx, "zrrank", key, id))
}

func rankResult(resp *protocol.Response, err error) (int64, bool, error) {
	if err != nil {
		return 0, false, err
	}
	v, ok, err := resp.Int64()
	if err != nil || !ok || v < 0 {
		return 0, false, err
	}
	return v, true, nil
}

// ZRange returns members by ascending rank.
func (c *Client) ZRange(ctx context.Context, key string, offset, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.read(ctx, "zrange", key, offset, limit))
}

// ZRRange returns members by descending rank.
func (c *Client) ZRRange(ctx context.Context, key string, offset, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.read(ctx, "zrrange", key, offset, limit))
}

// ZCount counts members with a score in [minScore, maxScore].
func (c *Client) ZCount(ctx context.Context, key string, minScore, maxScore int64) (int64, error) {
	return int64Result(c.read(ctx, "zcount", key, scoreBound(minScore), scoreBound(maxScore)))
}

// ZSum sums the scores in [minScore, maxScore].
func (c *Client) ZSum(ctx context.Context, key string, minScore, maxScore int64) (int64, error) {
	return int64Result(c.read(ctx, "zsum", key, scoreBound(minScore), scoreBound(maxScore)))
}

// ZAvg averages the scores in [minScore, maxScore].
func (c *Client) ZAvg(ctx context.Context, key string, minScore, maxScore int64) (float64, error) {
	resp, err := c.read(ctx, "zavg", key, scoreBound(minScore), scoreBound(maxScore))
	if err != nil {
		return 0, err
	}
	s, ok := resp.Text()
	if !ok {
		return 0, nil
	}
	avg, perr := strconv.ParseFloat(s, 64)
	if perr != nil {
		return 0, &kverrors.ProtocolError{Verb: "zavg", Reason: "average is not a number: " + strconv.Quote(s)}
	}
	return avg, nil
}

// ZRemRangeByRank removes members with a rank in [start, end] and returns
// how many were removed.
func (c *Client) ZRemRangeByRank(ctx context.Context, key string, start, end int64) (int64, error) {
	return int64Result(c.write(ctx, "zremrangebyrank", key, start, end))
}

// ZRemRangeByScore removes members with a score in [minScore, maxScore].
func (c *Client) ZRemRangeByScore(ctx context.Context, key string, minScore, maxScore int64) (int64, error) {
	return int64Result(c.write(ctx, "zremrangebyscore", key, scoreBound(minScore), scoreBound(maxScore)))
}

// ZPopFront removes and returns up to limit members with the lowest scores.
func (c *Client) ZPopFront(ctx context.Context, key string, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.write(ctx, "zpop_front", key, limit))
}

// ZPopBack removes and returns up to limit members with the highest scores.
func (c *Client) ZPopBack(ctx context.Context, key string, limit int) ([]protocol.IDScore, error) {
	return idScoresResult(c.write(ctx, "zpop_back", key, limit))
}

// MultiZSet sets several scores on the sorted set at key.
func (c *Client) MultiZSet(ctx context.Context, key string, members []protocol.IDScore) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(members)*2)
	for _, m := range members {
		if m.ID == "" {
			return kverrors.Precondition("multi_zset", key, "empty member id")
		}
		args = append(args, m.ID, m.Score)
	}
	return errResult(c.write(ctx, "multi_zset", key, args...))
}

// MultiZGet returns the scores of the requested members that exist.
func (c *Client) MultiZGet(ctx context.Context, key string, ids ...string) ([]protocol.IDScore, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return idScoresResult(c.read(ctx, "multi_zget", key, stringArgs(ids)...))
}

// MultiZDel removes members and returns how many existed.
func (c *Client) MultiZDel(ctx context.Context, key string, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return int64Result(c.write(ctx, "multi_zdel", key, stringArgs(ids)...))
}
