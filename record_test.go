package ringdb

import (
	"encoding/json"
	"reflect"
	"testing"
)

func testRecordSchema() *RecordSchema {
	key := NewKeySchema(Field{Name: "id", Kind: KindUint})
	return NewRecordSchema(key, "name", "price")
}

func TestEncodeValueNullFilling(t *testing.T) {
	rs := testRecordSchema()

	tests := []struct {
		payload  map[string]any
		expected map[string]any
	}{
		{nil, nil},
		{map[string]any{"name": "pen"}, map[string]any{"name": "pen", "price": nil}},
		{map[string]any{"name": "pen", "price": 2.5}, map[string]any{"name": "pen", "price": 2.5}},
		{map[string]any{"name": "pen", "extra": true}, map[string]any{"name": "pen", "price": nil, "extra": true}},
	}
	for _, tt := range tests {
		value := must(rs.EncodeValue(tt.payload))
		if tt.expected == nil {
			if value != "" {
				t.Errorf("** EncodeValue(nil) = %q, wanted empty string", value)
			}
			continue
		}
		var got map[string]any
		ensure(json.Unmarshal([]byte(value), &got))
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("** EncodeValue(%v) = %v, wanted %v", tt.payload, got, tt.expected)
		}
	}
}

func TestDecodeValueEmpty(t *testing.T) {
	rs := testRecordSchema()
	payload, err := rs.DecodeValue("")
	if err != nil || payload != nil {
		t.Errorf("** DecodeValue(\"\") = %v, %v, wanted nil, nil", payload, err)
	}
	if _, err := rs.DecodeValue("{broken"); err == nil {
		t.Errorf("** DecodeValue of malformed JSON succeeded")
	}
}

func TestRecordLazyConversions(t *testing.T) {
	rs := testRecordSchema()

	rec := NewRecord(rs, []FieldValue{Uint(7)}, map[string]any{"name": "pen", "price": 2.5})
	raw := must(rec.RawKey())
	value := must(rec.Value())
	if id := must(rec.ID()); id != 7 {
		t.Errorf("** ID() = %d, wanted 7", id)
	}

	// reconstruct from the stored representation and convert back
	rec2 := RawRecord(rs, raw, value)
	if id := must(rec2.ID()); id != 7 {
		t.Errorf("** raw record ID() = %d, wanted 7", id)
	}
	payload := must(rec2.Payload())
	if payload["name"] != "pen" || payload["price"] != 2.5 {
		t.Errorf("** raw record Payload() = %v", payload)
	}
	fields := must(rec2.Fields())
	if len(fields) != 1 || !fields[0].Equal(Uint(7)) {
		t.Errorf("** raw record Fields() = %v", fields)
	}
}

func TestRecordEmptyValue(t *testing.T) {
	rs := testRecordSchema()
	rec := RawRecord(rs, must(rs.Key().EncodeKey(Uint(1))), "")
	payload, err := rec.Payload()
	if err != nil || payload != nil {
		t.Errorf("** Payload() of empty value = %v, %v, wanted nil, nil", payload, err)
	}
}
