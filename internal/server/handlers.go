package server

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/shardkv/shardkv/pkg/cache"
)

// handler runs one verb. arity is the minimum number of arguments.
type handler struct {
	arity int
	fn    func(a argList) (reply, error)
}

// Version is reported by the info command.
const Version = "shardkv-dev 1.0"

// maxSubstrSize stands in for "to the end" when substr has no size.
const maxSubstrSize = math.MaxInt32

func (s *Server) commandTable() map[string]handler {
	c := s.cache
	return map[string]handler{
		"ping":   {0, func(argList) (reply, error) { return okReply(), nil }},
		"dbsize": {0, func(argList) (reply, error) { return intReply(c.DBSize()), nil }},
		"info":   {0, func(argList) (reply, error) { return s.info(), nil }},

		// Strings.
		"get": {1, func(a argList) (reply, error) {
			return valueReply(c.Get(a.str(0))), nil
		}},
		"set": {2, func(a argList) (reply, error) {
			c.Set(a.str(0), a.str(1), 0)
			return okReply("1"), nil
		}},
		"setx": {3, func(a argList) (reply, error) {
			ttl, err := a.int64At(2)
			if err != nil {
				return reply{}, err
			}
			if ttl <= 0 {
				return reply{}, errors.New("ttl must be positive")
			}
			c.Set(a.str(0), a.str(1), time.Duration(ttl)*time.Second)
			return okReply("1"), nil
		}},
		"setnx": {2, func(a argList) (reply, error) {
			return boolReply(c.SetNX(a.str(0), a.str(1))), nil
		}},
		"getset": {2, func(a argList) (reply, error) {
			return valueReply(c.GetSet(a.str(0), a.str(1))), nil
		}},
		"expire": {2, func(a argList) (reply, error) {
			ttl, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			return boolReply(c.Expire(a.str(0), time.Duration(ttl)*time.Second)), nil
		}},
		"ttl": {1, func(a argList) (reply, error) {
			return intReply(c.TTL(a.str(0))), nil
		}},
		"del": {1, func(a argList) (reply, error) {
			c.Del(a.str(0))
			return okReply("1"), nil
		}},
		"incr": {1, func(a argList) (reply, error) {
			by, err := a.optInt64(1, 1)
			if err != nil {
				return reply{}, err
			}
			return incrReply(c.IncrBy(a.str(0), by)), nil
		}},
		"exists": {1, func(a argList) (reply, error) {
			return boolReply(c.Exists(a.str(0))), nil
		}},
		"getbit": {2, func(a argList) (reply, error) {
			off, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			return intReply(int64(c.GetBit(a.str(0), off))), nil
		}},
		"setbit": {3, func(a argList) (reply, error) {
			off, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			bit, err := a.intAt(2)
			if err != nil {
				return reply{}, err
			}
			if bit != 0 && bit != 1 {
				return reply{}, errors.New("bit must be 0 or 1")
			}
			old, err := c.SetBit(a.str(0), off, bit)
			if err != nil {
				return reply{}, fmt.Errorf("offset %d: %w", off, err)
			}
			return intReply(int64(old)), nil
		}},
		"bitcount": {1, func(a argList) (reply, error) {
			start, err := a.optInt64(1, 0)
			if err != nil {
				return reply{}, err
			}
			end, err := a.optInt64(2, -1)
			if err != nil {
				return reply{}, err
			}
			return intReply(c.BitCount(a.str(0), start, end)), nil
		}},
		"strlen": {1, func(a argList) (reply, error) {
			return intReply(c.StrLen(a.str(0))), nil
		}},
		"substr": {1, func(a argList) (reply, error) {
			start, err := a.optInt64(1, 0)
			if err != nil {
				return reply{}, err
			}
			size, err := a.optInt64(2, maxSubstrSize)
			if err != nil {
				return reply{}, err
			}
			return okReply(c.Substr(a.str(0), start, size)), nil
		}},
		"keys":  {3, s.listing(c.Keys)},
		"rkeys": {3, s.listing(c.RKeys)},
		"scan":  {3, s.pairListing(c.Scan)},
		"rscan": {3, s.pairListing(c.RScan)},
		"multi_set": {2, func(a argList) (reply, error) {
			pairs, err := a.pairs(0)
			if err != nil {
				return reply{}, err
			}
			c.MultiSet(pairs)
			return intReply(int64(len(pairs))), nil
		}},
		"multi_get": {1, func(a argList) (reply, error) {
			return pairsReply(c.MultiGet(a.strs(0))), nil
		}},
		"multi_del": {1, func(a argList) (reply, error) {
			return intReply(c.MultiDel(a.strs(0))), nil
		}},

		// Hashes.
		"hset": {3, func(a argList) (reply, error) {
			return boolReply(c.HSet(a.str(0), a.str(1), a.str(2))), nil
		}},
		"hget": {2, func(a argList) (reply, error) {
			return valueReply(c.HGet(a.str(0), a.str(1))), nil
		}},
		"hdel": {2, func(a argList) (reply, error) {
			return boolReply(c.HDel(a.str(0), a.str(1))), nil
		}},
		"hincr": {2, func(a argList) (reply, error) {
			by, err := a.optInt64(2, 1)
			if err != nil {
				return reply{}, err
			}
			return incrReply(c.HIncrBy(a.str(0), a.str(1), by)), nil
		}},
		"hexists": {2, func(a argList) (reply, error) {
			return boolReply(c.HExists(a.str(0), a.str(1))), nil
		}},
		"hsize": {1, func(a argList) (reply, error) {
			return intReply(c.HSize(a.str(0))), nil
		}},
		"hlist":  {3, s.listing(c.HList)},
		"hrlist": {3, s.listing(c.HRList)},
		"hkeys": {4, func(a argList) (reply, error) {
			start, end, limit, err := a.rangeArgs(1)
			if err != nil {
				return reply{}, err
			}
			return okReply(c.HKeys(a.str(0), start, end, limit)...), nil
		}},
		"hgetall": {1, func(a argList) (reply, error) {
			return pairsReply(c.HGetAll(a.str(0))), nil
		}},
		"hscan":  {4, s.fieldListing(c.HScan)},
		"hrscan": {4, s.fieldListing(c.HRScan)},
		"hclear": {1, func(a argList) (reply, error) {
			return intReply(c.HClear(a.str(0))), nil
		}},
		"multi_hset": {3, func(a argList) (reply, error) {
			pairs, err := a.pairs(1)
			if err != nil {
				return reply{}, err
			}
			return intReply(c.MultiHSet(a.str(0), pairs)), nil
		}},
		"multi_hget": {2, func(a argList) (reply, error) {
			return pairsReply(c.MultiHGet(a.str(0), a.strs(1))), nil
		}},
		"multi_hdel": {2, func(a argList) (reply, error) {
			return intReply(c.MultiHDel(a.str(0), a.strs(1))), nil
		}},

		// Sorted sets.
		"zset": {3, func(a argList) (reply, error) {
			score, err := a.int64At(2)
			if err != nil {
				return reply{}, err
			}
			return boolReply(c.ZSet(a.str(0), a.str(1), score)), nil
		}},
		"zget": {2, func(a argList) (reply, error) {
			score, found := c.ZGet(a.str(0), a.str(1))
			if !found {
				return notFound(), nil
			}
			return intReply(score), nil
		}},
		"zdel": {2, func(a argList) (reply, error) {
			return boolReply(c.ZDel(a.str(0), a.str(1))), nil
		}},
		"zincr": {2, func(a argList) (reply, error) {
			by, err := a.optInt64(2, 1)
			if err != nil {
				return reply{}, err
			}
			return incrReply(c.ZIncrBy(a.str(0), a.str(1), by)), nil
		}},
		"zsize": {1, func(a argList) (reply, error) {
			return intReply(c.ZSize(a.str(0))), nil
		}},
		"zclear": {1, func(a argList) (reply, error) {
			return intReply(c.ZClear(a.str(0))), nil
		}},
		"zlist":  {3, s.listing(c.ZList)},
		"zrlist": {3, s.listing(c.ZRList)},
		"zkeys": {5, func(a argList) (reply, error) {
			min, max, limit, err := a.scoreWindow(2, false)
			if err != nil {
				return reply{}, err
			}
			return idsReply(c.ZScan(a.str(0), a.str(1), min, max, limit)), nil
		}},
		"zscan": {5, func(a argList) (reply, error) {
			min, max, limit, err := a.scoreWindow(2, false)
			if err != nil {
				return reply{}, err
			}
			return membersReply(c.ZScan(a.str(0), a.str(1), min, max, limit)), nil
		}},
		"zrscan": {5, func(a argList) (reply, error) {
			min, max, limit, err := a.scoreWindow(2, true)
			if err != nil {
				return reply{}, err
			}
			return membersReply(c.ZRScan(a.str(0), a.str(1), max, min, limit)), nil
		}},
		"zrank": {2, func(a argList) (reply, error) {
			return intReply(c.ZRank(a.str(0), a.str(1))), nil
		}},
		"zrrank": {2, func(a argList) (reply, error) {
			return intReply(c.ZRRank(a.str(0), a.str(1))), nil
		}},
		"zrange":  {3, s.rankListing(c.ZRange)},
		"zrrange": {3, s.rankListing(c.ZRRange)},
		"zcount": {3, s.scoreAggregate(func(key string, min, max int64) reply {
			return intReply(c.ZCount(key, min, max))
		})},
		"zsum": {3, s.scoreAggregate(func(key string, min, max int64) reply {
			return intReply(c.ZSum(key, min, max))
		})},
		"zavg": {3, s.scoreAggregate(func(key string, min, max int64) reply {
			return okReply(strconv.FormatFloat(c.ZAvg(key, min, max), 'f', -1, 64))
		})},
		"zremrangebyrank": {3, func(a argList) (reply, error) {
			start, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			end, err := a.int64At(2)
			if err != nil {
				return reply{}, err
			}
			return intReply(c.ZRemRangeByRank(a.str(0), start, end)), nil
		}},
		"zremrangebyscore": {3, s.scoreAggregate(func(key string, min, max int64) reply {
			return intReply(c.ZRemRangeByScore(key, min, max))
		})},
		"zpop_front": {2, s.zpop(c.ZPopFront)},
		"zpop_back":  {2, s.zpop(c.ZPopBack)},
		"multi_zset": {3, func(a argList) (reply, error) {
			members, err := a.members(1)
			if err != nil {
				return reply{}, err
			}
			return intReply(c.MultiZSet(a.str(0), members)), nil
		}},
		"multi_zget": {2, func(a argList) (reply, error) {
			return membersReply(c.MultiZGet(a.str(0), a.strs(1))), nil
		}},
		"multi_zdel": {2, func(a argList) (reply, error) {
			return intReply(c.MultiZDel(a.str(0), a.strs(1))), nil
		}},

		// Queues.
		"qpush_front": {2, func(a argList) (reply, error) {
			return intReply(c.QPushFront(a.str(0), a.strs(1)...)), nil
		}},
		"qpush_back": {2, func(a argList) (reply, error) {
			return intReply(c.QPushBack(a.str(0), a.strs(1)...)), nil
		}},
		"qpop_front": {1, s.qpop(c.QPopFront)},
		"qpop_back":  {1, s.qpop(c.QPopBack)},
		"qfront": {1, func(a argList) (reply, error) {
			return valueReply(c.QFront(a.str(0))), nil
		}},
		"qback": {1, func(a argList) (reply, error) {
			return valueReply(c.QBack(a.str(0))), nil
		}},
		"qsize": {1, func(a argList) (reply, error) {
			return intReply(c.QSize(a.str(0))), nil
		}},
		"qclear": {1, func(a argList) (reply, error) {
			return intReply(c.QClear(a.str(0))), nil
		}},
		"qget": {2, func(a argList) (reply, error) {
			idx, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			return valueReply(c.QGet(a.str(0), idx)), nil
		}},
		"qset": {3, func(a argList) (reply, error) {
			idx, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			if err := c.QSet(a.str(0), idx, a.str(2)); err != nil {
				return errorReply(err.Error()), nil
			}
			return okReply("1"), nil
		}},
		"qrange": {3, func(a argList) (reply, error) {
			offset, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			limit, err := a.int64At(2)
			if err != nil {
				return reply{}, err
			}
			return okReply(c.QRange(a.str(0), offset, limit)...), nil
		}},
		"qslice": {3, func(a argList) (reply, error) {
			start, err := a.int64At(1)
			if err != nil {
				return reply{}, err
			}
			end, err := a.int64At(2)
			if err != nil {
				return reply{}, err
			}
			return okReply(c.QSlice(a.str(0), start, end)...), nil
		}},
		"qtrim_front": {2, s.qtrim(c.QTrimFront)},
		"qtrim_back":  {2, s.qtrim(c.QTrimBack)},
		"qlist":       {3, s.listing(c.QList)},
		"qrlist":      {3, s.listing(c.QRList)},
	}
}

func incrReply(n int64, err error) reply {
	if err != nil {
		return errorReply(err.Error())
	}
	return intReply(n)
}

func (s *Server) info() reply {
	stats := s.cache.Stats()
	return okReply(
		"version", Version,
		"uptime", strconv.FormatInt(int64(time.Since(s.started)/time.Second), 10),
		"dbsize", strconv.FormatInt(s.cache.DBSize(), 10),
		"strings", strconv.Itoa(stats["strings"]),
		"hashes", strconv.Itoa(stats["hashes"]),
		"sorted_sets", strconv.Itoa(stats["sorted_sets"]),
		"queues", strconv.Itoa(stats["queues"]),
		"goroutines", strconv.Itoa(runtime.NumGoroutine()),
	)
}

// listing adapts a name listing (start, end, limit) to a handler.
func (s *Server) listing(list func(start, end string, limit int) []string) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		start, end, limit, err := a.rangeArgs(0)
		if err != nil {
			return reply{}, err
		}
		return okReply(list(start, end, limit)...), nil
	}
}

func (s *Server) pairListing(list func(start, end string, limit int) []cache.KeyValue) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		start, end, limit, err := a.rangeArgs(0)
		if err != nil {
			return reply{}, err
		}
		return pairsReply(list(start, end, limit)), nil
	}
}

func (s *Server) fieldListing(list func(key, start, end string, limit int) []cache.KeyValue) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		start, end, limit, err := a.rangeArgs(1)
		if err != nil {
			return reply{}, err
		}
		return pairsReply(list(a.str(0), start, end, limit)), nil
	}
}

func (s *Server) rankListing(list func(key string, offset, limit int) []cache.Member) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		offset, err := a.intAt(1)
		if err != nil {
			return reply{}, err
		}
		limit, err := a.intAt(2)
		if err != nil {
			return reply{}, err
		}
		return membersReply(list(a.str(0), offset, limit)), nil
	}
}

func (s *Server) scoreAggregate(fn func(key string, min, max int64) reply) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		min, err := a.score(1, cache.MinScore)
		if err != nil {
			return reply{}, err
		}
		max, err := a.score(2, cache.MaxScore)
		if err != nil {
			return reply{}, err
		}
		return fn(a.str(0), min, max), nil
	}
}

func (s *Server) zpop(pop func(key string, limit int) []cache.Member) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		limit, err := a.intAt(1)
		if err != nil {
			return reply{}, err
		}
		return membersReply(pop(a.str(0), limit)), nil
	}
}

func (s *Server) qpop(pop func(key string, size int) []string) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		size, err := a.optInt64(1, 1)
		if err != nil {
			return reply{}, err
		}
		return okReply(pop(a.str(0), int(size))...), nil
	}
}

func (s *Server) qtrim(trim func(key string, size int) int64) func(argList) (reply, error) {
	return func(a argList) (reply, error) {
		size, err := a.intAt(1)
		if err != nil {
			return reply{}, err
		}
		return intReply(trim(a.str(0), size)), nil
	}
}
