package ringdb

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

var testKeySchema = NewKeySchema(
	Field{Name: "cat", Kind: KindUint},
	Field{Name: "name", Kind: KindString},
	Field{Name: "blob", Kind: KindBytes},
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		vals     []FieldValue
		expected string
	}{
		{[]FieldValue{Uint(0)}, "200000000000000000"},
		{[]FieldValue{Uint(5)}, "200000000000000005"},
		{[]FieldValue{Uint(0x0102030405060708)}, "200102030405060708"},
		{[]FieldValue{Uint(1), Str("ab")}, "200000000000000001" + "02616200"},
		{[]FieldValue{Uint(1), Str("")}, "200000000000000001" + "0200"},
		{[]FieldValue{Uint(1), Str("a\x00b")}, "200000000000000001" + "026100ff6200"},
		{[]FieldValue{Uint(1), Str("x"), Blob([]byte{0x00, 0xFF})}, "200000000000000001" + "027800" + "0100ffff00"},
	}
	for _, tt := range tests {
		raw, err := testKeySchema.EncodeKey(tt.vals...)
		if err != nil {
			t.Errorf("** EncodeKey(%v) failed: %v", tt.vals, err)
			continue
		}
		if got := hex.EncodeToString(raw); got != tt.expected {
			t.Errorf("** EncodeKey(%v) = %s, wanted %s", tt.vals, got, tt.expected)
		}
	}
}

func TestKeyRoundTrip(t *testing.T) {
	tuples := [][]FieldValue{
		{Uint(0), Str(""), Blob(nil)},
		{Uint(1), Str("hello"), Blob([]byte{1, 2, 3})},
		{Uint(42), Str("a\x00\x00b"), Blob([]byte{0x00})},
		{Uint(1<<63 + 17), Str("zzz"), Blob([]byte{0xFF, 0x00, 0xFF})},
	}
	for _, vals := range tuples {
		raw := must(testKeySchema.EncodeKey(vals...))
		decoded, err := testKeySchema.DecodeKey(raw)
		if err != nil {
			t.Errorf("** DecodeKey(%s) failed: %v", hexstr(raw), err)
			continue
		}
		if len(decoded) != len(vals) {
			t.Errorf("** DecodeKey(%s) = %d fields, wanted %d", hexstr(raw), len(decoded), len(vals))
			continue
		}
		for i := range vals {
			if !decoded[i].Equal(vals[i]) {
				t.Errorf("** round trip of %v: field %d = %v", vals, i, decoded[i])
			}
		}
	}
}

func TestKeyOrderPreservation(t *testing.T) {
	// tuples in strictly ascending lexicographic order; encodings must
	// compare the same way byte-wise
	ordered := [][]FieldValue{
		{Uint(0)},
		{Uint(0), Str("")},
		{Uint(0), Str("a")},
		{Uint(0), Str("a\x00")},
		{Uint(0), Str("a\x00b")},
		{Uint(0), Str("ab")},
		{Uint(0), Str("ab"), Blob(nil)},
		{Uint(0), Str("ab"), Blob([]byte{0x00})},
		{Uint(0), Str("ab"), Blob([]byte{0x01})},
		{Uint(0), Str("b")},
		{Uint(1)},
		{Uint(255)},
		{Uint(256)},
		{Uint(1 << 40)},
	}
	var prev []byte
	for i, vals := range ordered {
		raw := must(testKeySchema.EncodeKey(vals...))
		if i > 0 && bytes.Compare(prev, raw) >= 0 {
			t.Errorf("** order violated: %v (%s) >= %v (%s)", ordered[i-1], hexstr(prev), vals, hexstr(raw))
		}
		prev = raw
	}
}

func TestEncodeBoundPrefix(t *testing.T) {
	// an open bound must be a byte-wise prefix of every key extending it
	bound := must(testKeySchema.EncodeBound(Uint(7), Str("ab")))
	for _, tail := range []string{"ab", "abc", "ab\x00", "abzzz"} {
		full := must(testKeySchema.EncodeKey(Uint(7), Str(tail)))
		if !bytes.HasPrefix(full, bound) {
			t.Errorf("** bound %s is not a prefix of key for %q (%s)", hexstr(bound), tail, hexstr(full))
		}
	}
	// but not of keys with a smaller last field
	full := must(testKeySchema.EncodeKey(Uint(7), Str("aa")))
	if bytes.HasPrefix(full, bound) {
		t.Errorf("** bound %s unexpectedly prefixes key for %q", hexstr(bound), "aa")
	}
}

func TestEncodeKeySchemaMismatch(t *testing.T) {
	_, err := testKeySchema.EncodeKey(Uint(1), Str("a"), Blob(nil), Uint(2))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("** too many fields: got %v, wanted ErrSchemaMismatch", err)
	}
	_, err = testKeySchema.EncodeKey(Str("a"))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("** wrong kind: got %v, wanted ErrSchemaMismatch", err)
	}
}

func TestDecodeKeyCorrupt(t *testing.T) {
	valid := must(testKeySchema.EncodeKey(Uint(1), Str("ab"), Blob([]byte{9})))

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"trailing bytes", append(append([]byte{}, valid...), 0x77)},
		{"truncated uint", valid[:5]},
		{"bad tag", append([]byte{0x7F}, valid[1:]...)},
		{"unterminated string", valid[:len(valid)-3]},
	}
	for _, tt := range tests {
		if _, err := testKeySchema.DecodeKey(tt.raw); !errors.Is(err, ErrCorruptKey) {
			t.Errorf("** %s: got %v, wanted ErrCorruptKey", tt.name, err)
		}
	}
}
