package object

import (
	"github.com/cedarkv/cedar/lib/memory"
	"github.com/cedarkv/cedar/lib/sds"
	"github.com/cedarkv/cedar/lib/skiplist"
)

// Per element bookkeeping charges for the unpacked encodings. They mirror
// the in-memory struct shapes rather than counting real allocator blocks.
const (
	objectOverhead    = 48
	dictEntryOverhead = 64
	listNodeOverhead  = 40
	skiplistNodeBase  = 64
	skiplistLevelSize = 16
	stringHeader      = 16
)

// Footprint returns the approximate deep size of o in bytes, the amount the
// keyspace ledger charges for storing it. Shared objects are free.
func (o *Object) Footprint() int64 {
	if o.IsShared() {
		return 0
	}
	sz := int64(objectOverhead)
	switch o.Encoding {
	case EncInt:
		return sz
	case EncRaw:
		return sz + memory.Round(sds.AllocSize(o.SDS()))
	case EncZiplist:
		return sz + memory.Round(o.Ziplist().BlobLen())
	case EncIntset:
		return sz + memory.Round(cap(o.Intset()))
	case EncLinkedList:
		l := o.List()
		sz += int64(l.Len()) * listNodeOverhead
		l.ForEach(func(e *Object) bool {
			sz += e.Footprint()
			return true
		})
		return sz
	case EncHashtable:
		switch o.Type {
		case TypeSet:
			d := o.SetDict()
			sz += int64(d.Size()) * 8
			d.ForEach(func(k string, _ struct{}) bool {
				sz += dictEntryOverhead + memory.Round(len(k)+stringHeader)
				return true
			})
		case TypeHash:
			d := o.HashDict()
			sz += int64(d.Size()) * 8
			d.ForEach(func(k string, v sds.S) bool {
				sz += dictEntryOverhead +
					memory.Round(len(k)+stringHeader) +
					memory.Round(sds.AllocSize(v))
				return true
			})
		}
		return sz
	case EncSkiplist:
		zs := o.ZSet()
		sz += int64(zs.Dict.Size()) * 8
		for n := zs.Sl.First(); n != nil; n = n.Next() {
			sz += dictEntryOverhead + skiplistNodeBase +
				skiplist.MaxLevel/4*skiplistLevelSize +
				memory.Round(len(n.Member)+stringHeader)
		}
		return sz
	}
	return sz
}
