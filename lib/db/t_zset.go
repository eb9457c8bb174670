package db

import (
	"bytes"
	"math"
	"strconv"

	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/skiplist"
	"github.com/cedarkv/cedar/lib/ziplist"
)

// ZEntry is a member/score pair returned by range queries.
type ZEntry struct {
	Member []byte
	Score  float64
}

// ZRangeSpec re-exports the score interval selector.
type ZRangeSpec = skiplist.RangeSpec

// formatScore renders a score the way it is stored in packed entries.
func formatScore(score float64) []byte {
	if score == math.Trunc(score) && !math.IsInf(score, 0) {
		return strconv.AppendInt(nil, int64(score), 10)
	}
	return strconv.AppendFloat(nil, score, 'g', 17, 64)
}

// --------------------------------------------------------------------------
// Encoding management
// --------------------------------------------------------------------------

// zsetConvert promotes a packed sorted set to the skiplist encoding.
func zsetConvert(o *object.Object) {
	zl := o.Ziplist()
	zs := object.NewZSetSkiplist().ZSet()
	for p := zl.Index(0); p != -1; {
		member := entryToBytes(zl, p)
		p = zl.Next(p)
		score := zsetZiplistScore(zl, p)
		p = zl.Next(p)
		zs.Dict.Set(string(member), score)
		zs.Sl.Insert(score, member)
	}
	o.SetPayload(object.EncSkiplist, zs)
}

func (db *DB) zsetTryConversion(o *object.Object, member []byte) {
	if o.Encoding != object.EncZiplist {
		return
	}
	cfg := db.srv.cfg
	if len(member) > cfg.ZSetMaxZiplistValue ||
		o.Ziplist().Len()/2 >= cfg.ZSetMaxZiplistEntries {
		zsetConvert(o)
	}
}

func (db *DB) zsetLen(o *object.Object) int {
	if o.Encoding == object.EncZiplist {
		return o.Ziplist().Len() / 2
	}
	return o.ZSet().Sl.Len()
}

// zsetZiplistScore decodes the score entry at p.
func zsetZiplistScore(zl ziplist.Ziplist, p int) float64 {
	sv, iv, isStr := zl.Get(p)
	if !isStr {
		return float64(iv)
	}
	f, _ := strconv.ParseFloat(string(sv), 64)
	return f
}

// zsetZiplistFind returns the offset of the member entry, or -1.
func zsetZiplistFind(zl ziplist.Ziplist, member []byte) int {
	head := zl.Index(0)
	if head == -1 {
		return -1
	}
	return zl.Find(head, member, 1)
}

// zsetZiplistInsert places the pair at its ordered position: ascending by
// score, ties broken by member bytes.
func zsetZiplistInsert(zl ziplist.Ziplist, member []byte, score float64) ziplist.Ziplist {
	for p := zl.Index(0); p != -1; {
		sp := zl.Next(p)
		cur := zsetZiplistScore(zl, sp)
		if cur > score {
			zl = zl.Insert(p, member)
			return zl.Insert(zl.Next(p), formatScore(score))
		}
		if cur == score {
			mv := entryToBytes(zl, p)
			if bytes.Compare(mv, member) > 0 {
				zl = zl.Insert(p, member)
				return zl.Insert(zl.Next(p), formatScore(score))
			}
		}
		p = zl.Next(sp)
	}
	zl = zl.Push(member, ziplist.Tail)
	return zl.Push(formatScore(score), ziplist.Tail)
}

// zsetZiplistDelete removes the pair whose member entry sits at p. The
// second return value is the offset of the following member entry, or -1.
func zsetZiplistDelete(zl ziplist.Ziplist, p int) (ziplist.Ziplist, int) {
	zl, _ = zl.Delete(p)
	return zl.Delete(p)
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// ZAdd stores the given member/score pairs, updating the score of existing
// members, and returns the number of newly added members.
func (db *DB) ZAdd(key string, entries ...ZEntry) (int, error) {
	if err := db.srv.CheckMemory(); err != nil {
		return 0, err
	}
	for _, e := range entries {
		if math.IsNaN(e.Score) {
			return 0, ErrNaN
		}
	}
	o, err := db.LookupWriteTyped(key, object.TypeZSet)
	if err != nil {
		return 0, err
	}
	if o == nil {
		if len(entries) == 0 {
			return 0, nil
		}
		o = object.NewZSetZiplist()
		db.Add(key, o)
	}
	added := 0
	for _, e := range entries {
		db.zsetTryConversion(o, e.Member)
		if o.Encoding == object.EncZiplist {
			zl := o.Ziplist()
			if p := zsetZiplistFind(zl, e.Member); p != -1 {
				if zsetZiplistScore(zl, zl.Next(p)) != e.Score {
					zl, _ = zsetZiplistDelete(zl, p)
					zl = zsetZiplistInsert(zl, e.Member, e.Score)
					o.SetZiplist(zl)
				}
			} else {
				o.SetZiplist(zsetZiplistInsert(zl, e.Member, e.Score))
				added++
			}
		} else {
			zs := o.ZSet()
			if cur, ok := zs.Dict.Get(string(e.Member)); ok {
				if cur != e.Score {
					zs.Sl.UpdateScore(cur, e.Member, e.Score)
					zs.Dict.Set(string(e.Member), e.Score)
				}
			} else {
				member := append([]byte(nil), e.Member...)
				zs.Sl.Insert(e.Score, member)
				zs.Dict.Set(string(member), e.Score)
				added++
			}
		}
	}
	db.Recharge(key, o)
	db.srv.AddDirty(int64(len(entries)))
	return added, nil
}

// ZIncrBy adds incr to the score of member, creating it at incr when
// missing, and returns the new score.
func (db *DB) ZIncrBy(key string, member []byte, incr float64) (float64, error) {
	cur, ok, err := db.ZScore(key, member)
	if err != nil {
		return 0, err
	}
	score := incr
	if ok {
		score += cur
	}
	if math.IsNaN(score) {
		return 0, ErrNaN
	}
	if _, err := db.ZAdd(key, ZEntry{Member: member, Score: score}); err != nil {
		return 0, err
	}
	return score, nil
}

// ZRem removes the given members, deleting the key when the sorted set
// becomes empty. It returns the number of removed members.
func (db *DB) ZRem(key string, members ...[]byte) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		if o.Encoding == object.EncZiplist {
			zl := o.Ziplist()
			if p := zsetZiplistFind(zl, m); p != -1 {
				zl, _ = zsetZiplistDelete(zl, p)
				o.SetZiplist(zl)
				removed++
			}
		} else {
			zs := o.ZSet()
			if score, ok := zs.Dict.Get(string(m)); ok {
				zs.Sl.Delete(score, m)
				zs.Dict.Delete(string(m))
				removed++
			}
		}
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.zsetLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// ZCard returns the cardinality of the sorted set, 0 for missing keys.
func (db *DB) ZCard(key string) (int, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, err
	}
	return db.zsetLen(o), nil
}

// ZScore returns the score of member.
func (db *DB) ZScore(key string, member []byte) (float64, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, false, err
	}
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		p := zsetZiplistFind(zl, member)
		if p == -1 {
			return 0, false, nil
		}
		return zsetZiplistScore(zl, zl.Next(p)), true, nil
	}
	score, ok := o.ZSet().Dict.Get(string(member))
	return score, ok, nil
}

// zsetRank returns the zero-based ascending rank of member, or -1.
func (db *DB) zsetRank(o *object.Object, member []byte) int {
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		rank := 0
		for p := zl.Index(0); p != -1; {
			mv, iv, isStr := zl.Get(p)
			var match bool
			if isStr {
				match = bytes.Equal(mv, member)
			} else {
				match = bytes.Equal(object.NewInt(iv).Bytes(), member)
			}
			if match {
				return rank
			}
			p = zl.Next(zl.Next(p))
			rank++
		}
		return -1
	}
	zs := o.ZSet()
	score, ok := zs.Dict.Get(string(member))
	if !ok {
		return -1
	}
	return zs.Sl.Rank(score, member)
}

// ZRank returns the ascending rank of member.
func (db *DB) ZRank(key string, member []byte) (int, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, false, err
	}
	r := db.zsetRank(o, member)
	if r < 0 {
		return 0, false, nil
	}
	return r, true, nil
}

// ZRevRank returns the descending rank of member.
func (db *DB) ZRevRank(key string, member []byte) (int, bool, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, false, err
	}
	r := db.zsetRank(o, member)
	if r < 0 {
		return 0, false, nil
	}
	return db.zsetLen(o) - 1 - r, true, nil
}

// zsetEntryAt returns the pair with the given ascending rank.
func zsetEntryAt(o *object.Object, rank int) ZEntry {
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		p := zl.Index(rank * 2)
		return ZEntry{
			Member: entryToBytes(zl, p),
			Score:  zsetZiplistScore(zl, zl.Next(p)),
		}
	}
	n := o.ZSet().Sl.GetByRank(rank)
	return ZEntry{Member: n.Member, Score: n.Score}
}

// ZRange returns the pairs selected by the inclusive ascending rank range
// [start, stop]. Negative indices count from the highest rank. Reverse
// inverts the order.
func (db *DB) ZRange(key string, start, stop int, reverse bool) ([]ZEntry, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return nil, err
	}
	card := db.zsetLen(o)
	if start < 0 {
		start = card + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = card + stop
	}
	if start > stop || start >= card {
		return nil, nil
	}
	if stop >= card {
		stop = card - 1
	}
	out := make([]ZEntry, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		rank := i
		if reverse {
			rank = card - 1 - i
		}
		out = append(out, zsetEntryAt(o, rank))
	}
	return out, nil
}

// ZRangeByScore returns the pairs whose scores fall inside the range, in
// ascending order, or descending when reverse is set.
func (db *DB) ZRangeByScore(key string, spec *ZRangeSpec, reverse bool) ([]ZEntry, error) {
	o, err := db.LookupReadTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return nil, err
	}
	var out []ZEntry
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		for p := zl.Index(0); p != -1; {
			sp := zl.Next(p)
			score := zsetZiplistScore(zl, sp)
			if spec.InRange(score) {
				out = append(out, ZEntry{Member: entryToBytes(zl, p), Score: score})
			}
			p = zl.Next(sp)
		}
	} else {
		sl := o.ZSet().Sl
		for n := sl.FirstInRange(spec); n != nil && spec.InRange(n.Score); n = n.Next() {
			out = append(out, ZEntry{Member: n.Member, Score: n.Score})
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// ZCount returns the number of pairs whose scores fall inside the range.
func (db *DB) ZCount(key string, spec *ZRangeSpec) (int, error) {
	entries, err := db.ZRangeByScore(key, spec, false)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// --------------------------------------------------------------------------
// Range deletion
// --------------------------------------------------------------------------

// ZRemRangeByScore removes every pair whose score falls inside the range
// and returns the number removed. The key is deleted when emptied.
func (db *DB) ZRemRangeByScore(key string, spec *ZRangeSpec) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, err
	}
	removed := 0
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		p := zl.Index(0)
		for p != -1 {
			sp := zl.Next(p)
			if spec.InRange(zsetZiplistScore(zl, sp)) {
				zl, p = zsetZiplistDelete(zl, p)
				removed++
			} else {
				p = zl.Next(sp)
			}
		}
		o.SetZiplist(zl)
	} else {
		zs := o.ZSet()
		removed = zs.Sl.DeleteRangeByScore(spec, func(n *skiplist.Node) {
			zs.Dict.Delete(string(n.Member))
		})
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.zsetLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}

// ZRemRangeByRank removes the pairs with ascending ranks in the inclusive
// interval [start, stop] and returns the number removed. Negative indices
// count from the highest rank.
func (db *DB) ZRemRangeByRank(key string, start, stop int) (int, error) {
	o, err := db.LookupWriteTyped(key, object.TypeZSet)
	if err != nil || o == nil {
		return 0, err
	}
	card := db.zsetLen(o)
	if start < 0 {
		start = card + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = card + stop
	}
	if start > stop || start >= card {
		return 0, nil
	}
	if stop >= card {
		stop = card - 1
	}
	removed := 0
	if o.Encoding == object.EncZiplist {
		zl := o.Ziplist()
		zl = zl.DeleteRange(start*2, (stop-start+1)*2)
		o.SetZiplist(zl)
		removed = stop - start + 1
	} else {
		zs := o.ZSet()
		removed = zs.Sl.DeleteRangeByRank(start, stop, func(n *skiplist.Node) {
			zs.Dict.Delete(string(n.Member))
		})
	}
	if removed > 0 {
		db.srv.AddDirty(int64(removed))
		if db.zsetLen(o) == 0 {
			db.Delete(key)
		} else {
			db.Recharge(key, o)
		}
	}
	return removed, nil
}
