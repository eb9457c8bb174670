package rdb

import (
	"fmt"
	"io"
	"math"
	"strconv"

	lzf "github.com/zhuyie/golzf"

	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/sds"
)

// --------------------------------------------------------------------------
// Snapshot model
// --------------------------------------------------------------------------

// Entry is a single key with its value and optional deadline (-1 for none,
// otherwise unix milliseconds).
type Entry struct {
	Key      string
	Value    *object.Object
	ExpireAt int64
}

// DBDump holds the entries of one numbered database.
type DBDump struct {
	Index   int
	Entries []Entry
}

// Snapshot is the full dataset handed to Save and returned by Load.
type Snapshot struct {
	DBs []DBDump
}

// Options control the on-disk rendering.
type Options struct {
	// Compression enables LZF compression of long strings
	Compression bool

	// Checksum enables the CRC64 trailer; when disabled a zero trailer
	// is written, which loaders accept unconditionally
	Checksum bool
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

type encoder struct {
	rio  *rio
	opts Options
}

// Save writes the snapshot to w.
func Save(w io.Writer, snap *Snapshot, opts Options) error {
	e := &encoder{rio: newWriter(w, opts.Checksum), opts: opts}
	if err := e.rio.Write([]byte(fmt.Sprintf("%s%04d", magic, Version))); err != nil {
		return err
	}
	for _, dump := range snap.DBs {
		if len(dump.Entries) == 0 {
			continue
		}
		if err := e.rio.WriteByte(opcodeSelectDB); err != nil {
			return err
		}
		if err := e.saveLen(dump.Index); err != nil {
			return err
		}
		for _, entry := range dump.Entries {
			if err := e.saveEntry(entry); err != nil {
				return fmt.Errorf("failed to save key %q: %w", entry.Key, err)
			}
		}
	}
	if err := e.rio.WriteByte(opcodeEOF); err != nil {
		return err
	}
	// the trailer is the raw register, zero when checksumming is off
	return e.rio.WriteUint64LE(e.rio.checksum)
}

func (e *encoder) saveEntry(entry Entry) error {
	if entry.ExpireAt >= 0 {
		if err := e.rio.WriteByte(opcodeExpireMS); err != nil {
			return err
		}
		if err := e.rio.WriteUint64LE(uint64(entry.ExpireAt)); err != nil {
			return err
		}
	}
	if err := e.rio.WriteByte(objectTypeOpcode(entry.Value)); err != nil {
		return err
	}
	if err := e.saveString([]byte(entry.Key)); err != nil {
		return err
	}
	return e.saveObject(entry.Value)
}

// objectTypeOpcode picks the on-disk type for the object's current
// encoding.
func objectTypeOpcode(o *object.Object) byte {
	switch o.Type {
	case object.TypeString:
		return typeString
	case object.TypeList:
		if o.Encoding == object.EncZiplist {
			return typeListZiplist
		}
		return typeList
	case object.TypeSet:
		if o.Encoding == object.EncIntset {
			return typeSetIntset
		}
		return typeSet
	case object.TypeZSet:
		if o.Encoding == object.EncZiplist {
			return typeZSetZiplist
		}
		return typeZSet
	case object.TypeHash:
		if o.Encoding == object.EncZiplist {
			return typeHashZiplist
		}
		return typeHash
	}
	panic("rdb: unknown object type")
}

// --------------------------------------------------------------------------
// Primitive encoders
// --------------------------------------------------------------------------

// saveLen writes a variable width length prefix.
func (e *encoder) saveLen(n int) error {
	switch {
	case n < 1<<6:
		return e.rio.WriteByte(byte(len6Bit<<6 | n))
	case n < 1<<14:
		if err := e.rio.WriteByte(byte(len14Bit<<6 | n>>8)); err != nil {
			return err
		}
		return e.rio.WriteByte(byte(n))
	default:
		if err := e.rio.WriteByte(len32Bit << 6); err != nil {
			return err
		}
		// 32 bit lengths are big endian
		return e.rio.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	}
}

// saveIntegerString writes the narrowest integer special format that fits,
// or reports that none does.
func (e *encoder) saveIntegerString(v int64) (bool, error) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return true, e.rio.Write([]byte{lenSpecial<<6 | encInt8, byte(v)})
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return true, e.rio.Write([]byte{lenSpecial<<6 | encInt16, byte(v), byte(v >> 8)})
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return true, e.rio.Write([]byte{
			lenSpecial<<6 | encInt32,
			byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		})
	}
	return false, nil
}

// saveString writes a length prefixed string, using the integer formats for
// decimal content and LZF compression for long payloads.
func (e *encoder) saveString(b []byte) error {
	if len(b) <= 11 {
		if v, err := strconv.ParseInt(string(b), 10, 64); err == nil &&
			string(b) == strconv.FormatInt(v, 10) {
			if done, err := e.saveIntegerString(v); done || err != nil {
				return err
			}
		}
	}
	if e.opts.Compression && len(b) > compressMinLen {
		out := make([]byte, len(b)-1)
		n, err := lzf.Compress(b, out)
		if err == nil && n > 0 && n < len(b) {
			if err := e.rio.WriteByte(lenSpecial<<6 | encLZF); err != nil {
				return err
			}
			if err := e.saveLen(n); err != nil {
				return err
			}
			if err := e.saveLen(len(b)); err != nil {
				return err
			}
			return e.rio.Write(out[:n])
		}
	}
	if err := e.saveLen(len(b)); err != nil {
		return err
	}
	return e.rio.Write(b)
}

// saveDouble writes a score as a one byte length plus ASCII, with marker
// lengths for the non-finite values.
func (e *encoder) saveDouble(f float64) error {
	switch {
	case math.IsNaN(f):
		return e.rio.WriteByte(doubleNaN)
	case math.IsInf(f, 1):
		return e.rio.WriteByte(doublePosInf)
	case math.IsInf(f, -1):
		return e.rio.WriteByte(doubleNegInf)
	}
	var rep string
	if f == math.Trunc(f) && math.Abs(f) < 1e17 {
		rep = strconv.FormatInt(int64(f), 10)
	} else {
		rep = strconv.FormatFloat(f, 'g', 17, 64)
	}
	if err := e.rio.WriteByte(byte(len(rep))); err != nil {
		return err
	}
	return e.rio.Write([]byte(rep))
}

// --------------------------------------------------------------------------
// Object encoder
// --------------------------------------------------------------------------

func (e *encoder) saveObject(o *object.Object) error {
	switch o.Type {
	case object.TypeString:
		return e.saveString(o.Bytes())

	case object.TypeList:
		if o.Encoding == object.EncZiplist {
			return e.saveString(o.Ziplist())
		}
		l := o.List()
		if err := e.saveLen(l.Len()); err != nil {
			return err
		}
		var err error
		l.ForEach(func(v *object.Object) bool {
			err = e.saveString(v.Bytes())
			return err == nil
		})
		return err

	case object.TypeSet:
		if o.Encoding == object.EncIntset {
			return e.saveString(o.Intset())
		}
		d := o.SetDict()
		if err := e.saveLen(d.Len()); err != nil {
			return err
		}
		var err error
		d.ForEach(func(k string, _ struct{}) bool {
			err = e.saveString([]byte(k))
			return err == nil
		})
		return err

	case object.TypeZSet:
		if o.Encoding == object.EncZiplist {
			return e.saveString(o.Ziplist())
		}
		zs := o.ZSet()
		if err := e.saveLen(zs.Sl.Len()); err != nil {
			return err
		}
		for n := zs.Sl.First(); n != nil; n = n.Next() {
			if err := e.saveString(n.Member); err != nil {
				return err
			}
			if err := e.saveDouble(n.Score); err != nil {
				return err
			}
		}
		return nil

	case object.TypeHash:
		if o.Encoding == object.EncZiplist {
			return e.saveString(o.Ziplist())
		}
		d := o.HashDict()
		if err := e.saveLen(d.Len()); err != nil {
			return err
		}
		var err error
		d.ForEach(func(k string, v sds.S) bool {
			if err = e.saveString([]byte(k)); err != nil {
				return false
			}
			err = e.saveString(v)
			return err == nil
		})
		return err
	}
	panic("rdb: unknown object type")
}
