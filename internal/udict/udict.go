// Package udict implements the typed attribute dictionary embedded in every
// uref. Entries are stored as an ordered slice of TLV records; ordering is
// not a guaranteed property of the logical map (spec.md §4.2: "ordering is
// not preserved") but the slice gives the wire encoder something stable to
// walk deterministically in tests.
//
// The wire shape follows a discovery-protocol TLV codec convention: a
// 1-byte tag, a big-endian length prefix, and a value blob. Numeric
// attribute types additionally encode their value big-endian inside that
// blob, per spec.md §4.2.
package udict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Type tags an attribute's Go representation.
type Type uint8

const (
	TypeOpaque Type = iota
	TypeString
	TypeVoid // presence-only flag, zero-length value
	TypeBool
	TypeSmallInt  // signed 8-bit
	TypeSmallUint // unsigned 8-bit
	TypeUint64
	TypeInt64
	TypeRational // num/den, two big-endian int64
	TypeFloat    // IEEE-754 double
)

// ErrNotFound is returned by typed getters when the key is absent or the
// stored type tag does not match the requested type.
var ErrNotFound = errors.New("udict: attribute not found")

// ErrInt64Min is returned by SetInt64 for math.MinInt64, which cannot be
// represented in the sign-and-magnitude wire encoding (spec.md §4.2).
var ErrInt64Min = errors.New("udict: INT64_MIN is not representable")

type entry struct {
	key   string
	typ   Type
	value []byte
}

// Dict is a logical map from (type, key) to a value blob. The zero value is
// an empty, ready-to-use dictionary.
type Dict struct {
	entries []entry
}

// Clone performs the "udict copied" half of uref duplication (spec.md §3.3):
// a deep copy whose entries share no backing array with the source.
func (d *Dict) Clone() *Dict {
	if d == nil {
		return &Dict{}
	}
	out := &Dict{entries: make([]entry, len(d.entries))}
	for i, e := range d.entries {
		v := make([]byte, len(e.value))
		copy(v, e.value)
		out.entries[i] = entry{key: e.key, typ: e.typ, value: v}
	}
	return out
}

func (d *Dict) find(key string, typ Type) (int, bool) {
	for i, e := range d.entries {
		if e.key == key && e.typ == typ {
			return i, true
		}
	}
	return -1, false
}

func (d *Dict) set(key string, typ Type, value []byte) {
	if i, ok := d.find(key, typ); ok {
		d.entries[i].value = value
		return
	}
	d.entries = append(d.entries, entry{key: key, typ: typ, value: value})
}

// Delete removes the attribute with the given key and type, if present.
func (d *Dict) Delete(key string, typ Type) {
	if d == nil {
		return
	}
	if i, ok := d.find(key, typ); ok {
		d.entries = append(d.entries[:i], d.entries[i+1:]...)
	}
}

// Handler names one (key, type) pair for the copy-list / delete-list helpers
// (spec.md §4.2).
type Handler struct {
	Key  string
	Type Type
}

// CopyList copies each attribute named by handlers from src into dst,
// skipping handlers whose attribute is absent in src.
func CopyList(dst, src *Dict, handlers []Handler) {
	if dst == nil || src == nil {
		return
	}
	for _, h := range handlers {
		if i, ok := src.find(h.Key, h.Type); ok {
			v := make([]byte, len(src.entries[i].value))
			copy(v, src.entries[i].value)
			dst.set(h.Key, h.Type, v)
		}
	}
}

// DeleteList removes every attribute named by handlers from d.
func DeleteList(d *Dict, handlers []Handler) {
	if d == nil {
		return
	}
	for _, h := range handlers {
		d.Delete(h.Key, h.Type)
	}
}

// Len returns the number of stored attributes, for diagnostics.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// -- opaque / string / void / bool -----------------------------------------

func (d *Dict) SetOpaque(key string, v []byte) {
	cp := make([]byte, len(v))
	copy(cp, v)
	d.set(key, TypeOpaque, cp)
}

func (d *Dict) GetOpaque(key string) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	if i, ok := d.find(key, TypeOpaque); ok {
		return d.entries[i].value, true
	}
	return nil, false
}

func (d *Dict) SetString(key, v string) { d.set(key, TypeString, []byte(v)) }

func (d *Dict) GetString(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	if i, ok := d.find(key, TypeString); ok {
		return string(d.entries[i].value), true
	}
	return "", false
}

// SetVoid records presence of a flag attribute with no payload.
func (d *Dict) SetVoid(key string) { d.set(key, TypeVoid, nil) }

func (d *Dict) GetVoid(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.find(key, TypeVoid)
	return ok
}

func (d *Dict) SetBool(key string, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	d.set(key, TypeBool, []byte{b})
}

func (d *Dict) GetBool(key string) (bool, bool) {
	if d == nil {
		return false, false
	}
	if i, ok := d.find(key, TypeBool); ok {
		return d.entries[i].value[0] != 0, true
	}
	return false, false
}

// -- small ints --------------------------------------------------------

func (d *Dict) SetSmallInt(key string, v int8)   { d.set(key, TypeSmallInt, []byte{byte(v)}) }
func (d *Dict) SetSmallUint(key string, v uint8) { d.set(key, TypeSmallUint, []byte{v}) }

func (d *Dict) GetSmallInt(key string) (int8, bool) {
	if d == nil {
		return 0, false
	}
	if i, ok := d.find(key, TypeSmallInt); ok {
		return int8(d.entries[i].value[0]), true
	}
	return 0, false
}

func (d *Dict) GetSmallUint(key string) (uint8, bool) {
	if d == nil {
		return 0, false
	}
	if i, ok := d.find(key, TypeSmallUint); ok {
		return d.entries[i].value[0], true
	}
	return 0, false
}

// -- 64-bit ints ---------------------------------------------------------

func (d *Dict) SetUint64(key string, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	d.set(key, TypeUint64, b)
}

func (d *Dict) GetUint64(key string) (uint64, bool) {
	if d == nil {
		return 0, false
	}
	if i, ok := d.find(key, TypeUint64); ok {
		return binary.BigEndian.Uint64(d.entries[i].value), true
	}
	return 0, false
}

// SetInt64 stores v using the wire's sign-and-magnitude convention: the high
// bit of the first byte is the sign, the remaining 63 bits hold the
// magnitude. math.MinInt64 has no representable magnitude under this scheme
// (spec.md §4.2) and is rejected.
func (d *Dict) SetInt64(key string, v int64) error {
	if v == math.MinInt64 {
		return ErrInt64Min
	}
	neg := v < 0
	mag := v
	if neg {
		mag = -v
	}
	u := uint64(mag)
	if neg {
		u |= 1 << 63
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, u)
	d.set(key, TypeInt64, b)
	return nil
}

func (d *Dict) GetInt64(key string) (int64, bool) {
	if d == nil {
		return 0, false
	}
	i, ok := d.find(key, TypeInt64)
	if !ok {
		return 0, false
	}
	u := binary.BigEndian.Uint64(d.entries[i].value)
	neg := u&(1<<63) != 0
	mag := int64(u &^ (1 << 63))
	if neg {
		return -mag, true
	}
	return mag, true
}

// -- rational / float ------------------------------------------------------

type Rational struct {
	Num, Den int64
}

func (d *Dict) SetRational(key string, v Rational) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(v.Num))
	binary.BigEndian.PutUint64(b[8:16], uint64(v.Den))
	d.set(key, TypeRational, b)
}

func (d *Dict) GetRational(key string) (Rational, bool) {
	if d == nil {
		return Rational{}, false
	}
	if i, ok := d.find(key, TypeRational); ok {
		v := d.entries[i].value
		return Rational{
			Num: int64(binary.BigEndian.Uint64(v[0:8])),
			Den: int64(binary.BigEndian.Uint64(v[8:16])),
		}, true
	}
	return Rational{}, false
}

func (d *Dict) SetFloat(key string, v float64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	d.set(key, TypeFloat, b)
}

func (d *Dict) GetFloat(key string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	if i, ok := d.find(key, TypeFloat); ok {
		return math.Float64frombits(binary.BigEndian.Uint64(d.entries[i].value)), true
	}
	return 0, false
}

// -- wire encoding ---------------------------------------------------------
//
// Record: tag(1) | keyLen(1) | key | typeTag(1) | valueLen(2, BE) | value.
// Modeled on internal/hdhomerun/packet.go's TLV codec (1-byte tag, length
// prefix, value) generalized to a 2-byte length so a block-typed opaque
// attribute can exceed 255 bytes.

const wireTag = 0xA7 // arbitrary record marker, mirrors the HDHomeRun sync convention

// Marshal encodes the dictionary to its wire blob.
func (d *Dict) Marshal() []byte {
	if d == nil {
		return nil
	}
	var out []byte
	for _, e := range d.entries {
		rec := make([]byte, 0, 5+len(e.key)+len(e.value))
		rec = append(rec, wireTag, byte(len(e.key)))
		rec = append(rec, e.key...)
		rec = append(rec, byte(e.typ))
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(e.value)))
		rec = append(rec, lenBuf[:]...)
		rec = append(rec, e.value...)
		out = append(out, rec...)
	}
	return out
}

// Unmarshal decodes a wire blob produced by Marshal into a fresh Dict.
func Unmarshal(blob []byte) (*Dict, error) {
	d := &Dict{}
	pos := 0
	for pos < len(blob) {
		if pos+2 > len(blob) {
			return nil, fmt.Errorf("udict: truncated record header at offset %d", pos)
		}
		if blob[pos] != wireTag {
			return nil, fmt.Errorf("udict: bad record tag 0x%02x at offset %d", blob[pos], pos)
		}
		keyLen := int(blob[pos+1])
		pos += 2
		if pos+keyLen+3 > len(blob) {
			return nil, fmt.Errorf("udict: truncated key/type/length at offset %d", pos)
		}
		key := string(blob[pos : pos+keyLen])
		pos += keyLen
		typ := Type(blob[pos])
		pos++
		valLen := int(binary.BigEndian.Uint16(blob[pos : pos+2]))
		pos += 2
		if pos+valLen > len(blob) {
			return nil, fmt.Errorf("udict: truncated value for key %q", key)
		}
		val := make([]byte, valLen)
		copy(val, blob[pos:pos+valLen])
		pos += valLen
		d.entries = append(d.entries, entry{key: key, typ: typ, value: val})
	}
	return d, nil
}
