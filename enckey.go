package ringdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// Binary key format: concatenation of per-field encodings in schema order.
// Every field starts with a 1-byte kind tag, so keys compare consistently
// byte-wise even across kinds. Uint fields are fixed-width big-endian.
// String/Bytes fields are 0x00-escaped (0x00 -> 0x00 0xFF) and terminated
// with a lone 0x00; the terminator sorts below any continuation byte and
// below any following field tag, which keeps binary comparison equal to
// lexicographic tuple comparison.
//
// The open (non-terminated) form of the last field exists solely for
// constructing scan bounds; it is never written to storage.

type FieldKind uint8

const (
	KindUint FieldKind = iota + 1
	KindString
	KindBytes
)

func (k FieldKind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

const (
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagUint   byte = 0x20

	keyTerm byte = 0x00
	keyEsc  byte = 0xFF
)

func (k FieldKind) tag() byte {
	switch k {
	case KindUint:
		return tagUint
	case KindString:
		return tagString
	case KindBytes:
		return tagBytes
	default:
		panic(fmt.Errorf("invalid field kind %d", int(k)))
	}
}

// Field is one component of a key schema.
type Field struct {
	Name string
	Kind FieldKind
}

// FieldValue is a single typed key component value.
type FieldValue struct {
	kind FieldKind
	u    uint64
	s    string
	b    []byte
}

func Uint(v uint64) FieldValue { return FieldValue{kind: KindUint, u: v} }
func Str(v string) FieldValue  { return FieldValue{kind: KindString, s: v} }
func Blob(v []byte) FieldValue { return FieldValue{kind: KindBytes, b: v} }

func (v FieldValue) Kind() FieldKind { return v.kind }
func (v FieldValue) Uint() uint64    { return v.u }
func (v FieldValue) Str() string     { return v.s }
func (v FieldValue) Blob() []byte    { return v.b }

func (v FieldValue) String() string {
	switch v.kind {
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindString:
		return v.s
	case KindBytes:
		return hexstr(v.b)
	default:
		return "<invalid>"
	}
}

func (v FieldValue) Equal(o FieldValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUint:
		return v.u == o.u
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	default:
		return false
	}
}

// Compare orders values the way their encodings order byte-wise: first by
// kind tag, then by value.
func (v FieldValue) Compare(o FieldValue) int {
	if vt, ot := v.kind.tag(), o.kind.tag(); vt != ot {
		if vt < ot {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindUint:
		if v.u < o.u {
			return -1
		} else if v.u > o.u {
			return 1
		}
		return 0
	case KindString:
		if v.s < o.s {
			return -1
		} else if v.s > o.s {
			return 1
		}
		return 0
	default:
		return bytes.Compare(v.b, o.b)
	}
}

// KeySchema is the ordered list of typed fields forming a key.
// A key schema is never empty.
type KeySchema struct {
	fields []Field
}

func NewKeySchema(fields ...Field) *KeySchema {
	if len(fields) == 0 {
		panic("ringdb: key schema must have at least one field")
	}
	for _, f := range fields {
		f.Kind.tag() // validates
	}
	return &KeySchema{fields: fields}
}

func (ks *KeySchema) Len() int {
	return len(ks.fields)
}

func (ks *KeySchema) Fields() []Field {
	return ks.fields
}

// EncodeKey encodes an ordered list of field values into a sortable byte
// string. Fewer values than schema fields produce a partial key (a valid
// stored key for index sequences with optional tail components is not
// supported; partial keys are for bounds and internal use). More values than
// the schema defines, or a kind mismatch, fail with ErrSchemaMismatch.
func (ks *KeySchema) EncodeKey(vals ...FieldValue) ([]byte, error) {
	return ks.appendKey(nil, vals, false)
}

// EncodeBound is EncodeKey with the last supplied field in the open
// (non-terminated) form, for prefix/range-bound construction only.
func (ks *KeySchema) EncodeBound(vals ...FieldValue) ([]byte, error) {
	return ks.appendKey(nil, vals, true)
}

func (ks *KeySchema) appendKey(buf []byte, vals []FieldValue, open bool) ([]byte, error) {
	if len(vals) > len(ks.fields) {
		return nil, fmt.Errorf("%w: %d values for %d key fields", ErrSchemaMismatch, len(vals), len(ks.fields))
	}
	for i, v := range vals {
		f := ks.fields[i]
		if v.kind != f.Kind {
			return nil, fmt.Errorf("%w: field %q is %v, got %v", ErrSchemaMismatch, f.Name, f.Kind, v.kind)
		}
		last := i == len(vals)-1
		buf = appendFieldValue(buf, v, open && last)
	}
	return buf, nil
}

func appendFieldValue(buf []byte, v FieldValue, open bool) []byte {
	buf = append(buf, v.kind.tag())
	switch v.kind {
	case KindUint:
		buf = appendUint64(buf, v.u)
	case KindString:
		buf = appendEscaped(buf, []byte(v.s), open)
	case KindBytes:
		buf = appendEscaped(buf, v.b, open)
	}
	return buf
}

func appendEscaped(buf []byte, data []byte, open bool) []byte {
	for _, c := range data {
		if c == keyTerm {
			buf = append(buf, keyTerm, keyEsc)
		} else {
			buf = append(buf, c)
		}
	}
	if !open {
		buf = append(buf, keyTerm)
	}
	return buf
}

// DecodeKey is the exact inverse of EncodeKey for a full (non-partial,
// non-open) key. Trailing bytes after the last schema field, a truncated
// field or a tag mismatch fail with ErrCorruptKey.
func (ks *KeySchema) DecodeKey(raw []byte) ([]FieldValue, error) {
	vals := make([]FieldValue, 0, len(ks.fields))
	rem := raw
	for _, f := range ks.fields {
		if len(rem) == 0 {
			return nil, dataErrf(raw, len(raw), ErrCorruptKey, "key ends before field %q", f.Name)
		}
		if rem[0] != f.Kind.tag() {
			return nil, dataErrf(raw, len(raw)-len(rem), ErrCorruptKey, "field %q: tag %#02x, expected %#02x", f.Name, rem[0], f.Kind.tag())
		}
		rem = rem[1:]
		var v FieldValue
		var err error
		v, rem, err = decodeFieldValue(raw, rem, f.Kind)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if len(rem) != 0 {
		return nil, dataErrf(raw, len(raw)-len(rem), ErrCorruptKey, "%d trailing bytes after %d fields", len(rem), len(ks.fields))
	}
	return vals, nil
}

func decodeFieldValue(orig, rem []byte, kind FieldKind) (FieldValue, []byte, error) {
	switch kind {
	case KindUint:
		if len(rem) < 8 {
			return FieldValue{}, nil, dataErrf(orig, len(orig)-len(rem), ErrCorruptKey, "uint field: %d bytes remaining, 8 wanted", len(rem))
		}
		return Uint(binary.BigEndian.Uint64(rem)), rem[8:], nil
	case KindString, KindBytes:
		data, rest, err := decodeEscaped(orig, rem)
		if err != nil {
			return FieldValue{}, nil, err
		}
		if kind == KindString {
			return Str(string(data)), rest, nil
		}
		return Blob(data), rest, nil
	default:
		panic(fmt.Errorf("invalid field kind %d", int(kind)))
	}
}

func decodeEscaped(orig, rem []byte) ([]byte, []byte, error) {
	var out []byte
	for i := 0; i < len(rem); {
		c := rem[i]
		if c != keyTerm {
			out = append(out, c)
			i++
			continue
		}
		if i+1 < len(rem) && rem[i+1] == keyEsc {
			out = append(out, keyTerm)
			i += 2
			continue
		}
		return out, rem[i+1:], nil
	}
	return nil, nil, dataErrf(orig, len(orig), ErrCorruptKey, "unterminated field")
}
