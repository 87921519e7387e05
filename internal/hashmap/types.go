// Package hashmap implements the arena-backed chained hash table used by
// aggregation and join pipeline stages. Entries, once allocated, are never
// moved: a page is a fixed-length slice allocated once, so every *Entry
// handed to a caller stays valid for the life of the owning ChainedHashMap.
package hashmap

import (
	"encoding/binary"
	"math"
)

// DataType identifies the wire layout of a projected key or value field.
type DataType int

const (
	Int8 DataType = iota
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Float32
	Float64
)

// Size returns the fixed byte width of the type.
func (d DataType) Size() int {
	switch d {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	default:
		panic("hashmap: unknown data type")
	}
}

// SchemaField names one field of a key or value projection.
type SchemaField struct {
	Name string
	Type DataType
}

// FieldOffset is a resolved {name, byte offset, type} triple within an
// entry's key or value region.
type FieldOffset struct {
	FieldIdentifier string
	ByteOffset      int
	DataType        DataType
}

// Record is a logical row, addressed by field name. It is the in-memory
// counterpart of the byte-packed key/value regions of an Entry.
type Record struct {
	Fields map[string]any
}

// NewRecord returns an empty Record ready for Set calls.
func NewRecord() Record {
	return Record{Fields: make(map[string]any)}
}

func (r Record) Get(name string) any      { return r.Fields[name] }
func (r Record) Set(name string, v any)   { r.Fields[name] = v }
func (r Record) Has(name string) bool     { _, ok := r.Fields[name]; return ok }

// encodeField writes v, interpreted per off.DataType, into buf at off.ByteOffset.
func encodeField(buf []byte, off FieldOffset, v any) {
	b := buf[off.ByteOffset : off.ByteOffset+off.DataType.Size()]
	switch off.DataType {
	case Int8:
		b[0] = byte(toInt64(v))
	case UInt8:
		b[0] = byte(toUint64(v))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(toInt64(v)))
	case UInt16:
		binary.LittleEndian.PutUint16(b, uint16(toUint64(v)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(toInt64(v)))
	case UInt32:
		binary.LittleEndian.PutUint32(b, uint32(toUint64(v)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(toInt64(v)))
	case UInt64:
		binary.LittleEndian.PutUint64(b, toUint64(v))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(toFloat64(v))))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(toFloat64(v)))
	}
}

// decodeField is the inverse of encodeField.
func decodeField(buf []byte, off FieldOffset) any {
	b := buf[off.ByteOffset : off.ByteOffset+off.DataType.Size()]
	switch off.DataType {
	case Int8:
		return int8(b[0])
	case UInt8:
		return uint8(b[0])
	case Int16:
		return int16(binary.LittleEndian.Uint16(b))
	case UInt16:
		return binary.LittleEndian.Uint16(b)
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case UInt32:
		return binary.LittleEndian.Uint32(b)
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case UInt64:
		return binary.LittleEndian.Uint64(b)
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		panic("hashmap: unknown data type")
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		panic("hashmap: value is not an integer")
	}
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	default:
		panic("hashmap: value is not an unsigned integer")
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic("hashmap: value is not a float")
	}
}
