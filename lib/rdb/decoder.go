package rdb

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	lzf "github.com/zhuyie/golzf"

	"github.com/cedarkv/cedar/lib/intset"
	"github.com/cedarkv/cedar/lib/object"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/ziplist"
)

var (
	// ErrBadMagic is returned when the file does not start with the
	// snapshot signature.
	ErrBadMagic = errors.New("rdb: wrong signature, not a snapshot file")

	// ErrVersion is returned for snapshots newer than this codec.
	ErrVersion = errors.New("rdb: unsupported snapshot version")

	// ErrChecksum is returned when the trailer does not match the
	// computed checksum.
	ErrChecksum = errors.New("rdb: checksum mismatch, snapshot is corrupted")

	errFormat = errors.New("rdb: malformed snapshot")
)

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

type decoder struct {
	rio *rio
	raw io.Reader
}

// Load reads a snapshot from r. When verifyChecksum is set and the file
// carries a non-zero trailer, the checksum is enforced.
func Load(r io.Reader, verifyChecksum bool) (*Snapshot, error) {
	d := &decoder{rio: newReader(r, verifyChecksum), raw: r}

	header := make([]byte, 9)
	if err := d.rio.Read(header); err != nil {
		return nil, err
	}
	if string(header[:5]) != magic {
		return nil, ErrBadMagic
	}
	version, err := strconv.Atoi(string(header[5:]))
	if err != nil || version < 1 {
		return nil, ErrBadMagic
	}
	if version > Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	snap := &Snapshot{}
	var cur *DBDump
	expireAt := int64(-1)

	for {
		opcode, err := d.rio.ReadByte()
		if err != nil {
			return nil, err
		}
		switch opcode {
		case opcodeEOF:
			if err := d.verifyTrailer(verifyChecksum); err != nil {
				return nil, err
			}
			return snap, nil

		case opcodeSelectDB:
			idx, err := d.loadLen()
			if err != nil {
				return nil, err
			}
			snap.DBs = append(snap.DBs, DBDump{Index: idx})
			cur = &snap.DBs[len(snap.DBs)-1]

		case opcodeExpireSec:
			secs, err := d.rio.ReadUint32LE()
			if err != nil {
				return nil, err
			}
			expireAt = int64(secs) * 1000

		case opcodeExpireMS:
			ms, err := d.rio.ReadUint64LE()
			if err != nil {
				return nil, err
			}
			expireAt = int64(ms)

		default:
			if cur == nil {
				return nil, errFormat
			}
			key, err := d.loadString()
			if err != nil {
				return nil, err
			}
			obj, err := d.loadObject(opcode)
			if err != nil {
				return nil, fmt.Errorf("failed to load key %q: %w", key, err)
			}
			cur.Entries = append(cur.Entries, Entry{
				Key:      string(key),
				Value:    obj,
				ExpireAt: expireAt,
			})
			expireAt = -1
		}
	}
}

// verifyTrailer reads the 8 byte CRC64 trailer outside the checksum stream
// and compares it against the running register. A zero trailer means the
// writer had checksumming disabled and is always accepted.
func (d *decoder) verifyTrailer(verify bool) error {
	var buf [8]byte
	if _, err := io.ReadFull(d.raw, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// ancient snapshots end right after the EOF opcode
			return nil
		}
		return err
	}
	stored := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 |
		uint64(buf[3])<<24 | uint64(buf[4])<<32 | uint64(buf[5])<<40 |
		uint64(buf[6])<<48 | uint64(buf[7])<<56
	if !verify || stored == 0 {
		return nil
	}
	if stored != d.rio.checksum {
		return ErrChecksum
	}
	return nil
}

// --------------------------------------------------------------------------
// Primitive decoders
// --------------------------------------------------------------------------

// loadLen reads a plain length prefix, rejecting special formats.
func (d *decoder) loadLen() (int, error) {
	n, special, err := d.loadLenMaybeSpecial()
	if err != nil {
		return 0, err
	}
	if special >= 0 {
		return 0, errFormat
	}
	return n, nil
}

// loadLenMaybeSpecial reads a length prefix. For special string formats the
// second return value carries the format, otherwise -1.
func (d *decoder) loadLenMaybeSpecial() (int, int, error) {
	first, err := d.rio.ReadByte()
	if err != nil {
		return 0, -1, err
	}
	switch first >> 6 {
	case len6Bit:
		return int(first & 0x3F), -1, nil
	case len14Bit:
		next, err := d.rio.ReadByte()
		if err != nil {
			return 0, -1, err
		}
		return int(first&0x3F)<<8 | int(next), -1, nil
	case len32Bit:
		var buf [4]byte
		if err := d.rio.Read(buf[:]); err != nil {
			return 0, -1, err
		}
		return int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3]), -1, nil
	default:
		return 0, int(first & 0x3F), nil
	}
}

// loadString reads a length prefixed string, materializing the integer
// formats as decimal and expanding LZF payloads.
func (d *decoder) loadString() ([]byte, error) {
	n, special, err := d.loadLenMaybeSpecial()
	if err != nil {
		return nil, err
	}
	switch special {
	case -1:
		buf := make([]byte, n)
		if err := d.rio.Read(buf); err != nil {
			return nil, err
		}
		return buf, nil

	case encInt8:
		b, err := d.rio.ReadByte()
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int8(b)), 10), nil

	case encInt16:
		var buf [2]byte
		if err := d.rio.Read(buf[:]); err != nil {
			return nil, err
		}
		v := int16(buf[0]) | int16(buf[1])<<8
		return strconv.AppendInt(nil, int64(v), 10), nil

	case encInt32:
		var buf [4]byte
		if err := d.rio.Read(buf[:]); err != nil {
			return nil, err
		}
		v := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
		return strconv.AppendInt(nil, int64(v), 10), nil

	case encLZF:
		clen, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		ulen, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		compressed := make([]byte, clen)
		if err := d.rio.Read(compressed); err != nil {
			return nil, err
		}
		out := make([]byte, ulen)
		n, err := lzf.Decompress(compressed, out)
		if err != nil || n != ulen {
			return nil, fmt.Errorf("rdb: bad compressed payload: %w", errFormat)
		}
		return out, nil
	}
	return nil, errFormat
}

// loadDouble reads a score.
func (d *decoder) loadDouble() (float64, error) {
	l, err := d.rio.ReadByte()
	if err != nil {
		return 0, err
	}
	switch l {
	case doubleNaN:
		return math.NaN(), nil
	case doublePosInf:
		return math.Inf(1), nil
	case doubleNegInf:
		return math.Inf(-1), nil
	}
	buf := make([]byte, l)
	if err := d.rio.Read(buf); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(buf), 64)
	if err != nil {
		return 0, fmt.Errorf("rdb: bad double %q: %w", buf, errFormat)
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Object decoder
// --------------------------------------------------------------------------

func (d *decoder) loadObject(opcode byte) (*object.Object, error) {
	switch opcode {
	case typeString:
		b, err := d.loadString()
		if err != nil {
			return nil, err
		}
		return object.NewString(sds.New(b)).TryEncoding(), nil

	case typeList:
		n, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		o := object.NewListLinked()
		l := o.List()
		for i := 0; i < n; i++ {
			b, err := d.loadString()
			if err != nil {
				return nil, err
			}
			l.PushTail(object.NewString(sds.New(b)).TryEncoding())
		}
		return o, nil

	case typeSet:
		n, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		o := object.NewSetHashtable()
		s := o.SetDict()
		for i := 0; i < n; i++ {
			b, err := d.loadString()
			if err != nil {
				return nil, err
			}
			s.Add(string(b), struct{}{})
		}
		return o, nil

	case typeZSet:
		n, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		o := object.NewZSetSkiplist()
		zs := o.ZSet()
		for i := 0; i < n; i++ {
			member, err := d.loadString()
			if err != nil {
				return nil, err
			}
			score, err := d.loadDouble()
			if err != nil {
				return nil, err
			}
			zs.Dict.Set(string(member), score)
			zs.Sl.Insert(score, member)
		}
		return o, nil

	case typeHash:
		n, err := d.loadLen()
		if err != nil {
			return nil, err
		}
		o := object.NewHashHashtable()
		h := o.HashDict()
		for i := 0; i < n; i++ {
			field, err := d.loadString()
			if err != nil {
				return nil, err
			}
			val, err := d.loadString()
			if err != nil {
				return nil, err
			}
			h.Set(string(field), sds.New(val))
		}
		return o, nil

	case typeListZiplist:
		blob, err := d.loadString()
		if err != nil {
			return nil, err
		}
		o := object.NewListZiplist()
		o.SetZiplist(ziplist.FromBlob(blob))
		return o, nil

	case typeHashZiplist:
		blob, err := d.loadString()
		if err != nil {
			return nil, err
		}
		o := object.NewHashZiplist()
		o.SetZiplist(ziplist.FromBlob(blob))
		return o, nil

	case typeZSetZiplist:
		blob, err := d.loadString()
		if err != nil {
			return nil, err
		}
		o := object.NewZSetZiplist()
		o.SetZiplist(ziplist.FromBlob(blob))
		return o, nil

	case typeSetIntset:
		blob, err := d.loadString()
		if err != nil {
			return nil, err
		}
		o := object.NewSetIntset()
		o.SetIntset(intset.FromBlob(blob))
		return o, nil
	}
	return nil, fmt.Errorf("rdb: unknown value type %d: %w", opcode, errFormat)
}
