package index

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

// Composite keys are the concatenation of one encoded component per
// indexed property, in declared order. Components sort the way their
// values do, and no encoded component is a prefix of another, so a
// leading subset of values is a byte prefix of every matching key.

const (
	componentEnd = 0x01
	escapeByte   = 0x00
	escapedZero  = 0xff
)

func encodeKey(values []storage.Value) string {
	var b strings.Builder
	for _, v := range values {
		appendComponent(&b, v)
	}
	return b.String()
}

func appendComponent(b *strings.Builder, v storage.Value) {
	b.WriteByte(byte(v.Type))
	switch v.Type {
	case storage.TypeInt:
		i, _ := v.AsInt()
		// Add bias of 2^63 so negative numbers sort first
		writeUint64(b, uint64(i)+(1<<63))
	case storage.TypeTimestamp:
		ts, _ := v.AsTimestamp()
		writeUint64(b, uint64(ts.UnixNano())+(1<<63))
	case storage.TypeFloat:
		f, _ := v.AsFloat()
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		writeUint64(b, bits)
	case storage.TypeBool:
		ok, _ := v.AsBool()
		if ok {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
	default:
		// Variable-length: escape zero bytes, then terminate
		for _, c := range v.Data {
			if c == escapeByte {
				b.WriteByte(escapeByte)
				b.WriteByte(escapedZero)
				continue
			}
			b.WriteByte(c)
		}
		b.WriteByte(escapeByte)
		b.WriteByte(componentEnd)
	}
}

func writeUint64(b *strings.Builder, u uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	b.Write(buf[:])
}

// valuesOf returns the indexed values of elem for def, or false when elem
// lacks one of the indexed properties.
func valuesOf(def Definition, elem storage.Element) ([]storage.Value, bool) {
	if elem == nil {
		return nil, false
	}
	values := make([]storage.Value, len(def.Properties))
	for i, p := range def.Properties {
		v, ok := elem.Property(p)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func keyOf(def Definition, elem storage.Element) (string, bool) {
	values, ok := valuesOf(def, elem)
	if !ok {
		return "", false
	}
	return encodeKey(values), true
}

func describe(values []storage.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
