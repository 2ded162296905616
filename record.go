package ringdb

import (
	"encoding/json"
	"fmt"
)

// RecordSchema defines one sequence: the key schema plus the ordered list of
// field names carried in the value payload. Payload fields declared here but
// missing from a given record encode as null; fields present in the payload
// but not declared are carried through untouched.
type RecordSchema struct {
	key         *KeySchema
	valueFields []string
}

func NewRecordSchema(key *KeySchema, valueFields ...string) *RecordSchema {
	if key == nil {
		panic("ringdb: record schema requires a key schema")
	}
	return &RecordSchema{key: key, valueFields: valueFields}
}

func (rs *RecordSchema) Key() *KeySchema {
	return rs.key
}

func (rs *RecordSchema) ValueFields() []string {
	return rs.valueFields
}

// EncodeValue serializes a payload to its canonical JSON string form.
// A nil payload encodes to the empty string.
func (rs *RecordSchema) EncodeValue(payload map[string]any) (string, error) {
	if payload == nil {
		return "", nil
	}
	out := make(map[string]any, len(payload)+len(rs.valueFields))
	for _, name := range rs.valueFields {
		if v, ok := payload[name]; ok {
			out[name] = v
		} else {
			out[name] = nil
		}
	}
	for name, v := range payload {
		out[name] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	return string(data), nil
}

// DecodeValue parses a serialized value string. The empty string decodes to a
// nil payload.
func (rs *RecordSchema) DecodeValue(value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return payload, nil
}

// Record is an immutable pairing of a key and an optional value. It keeps
// three representations consistent: the decoded field tuple, the binary
// encoded key, and the serialized value string. Conversions are lazy and
// cached; any representation can reconstruct the others given the schema.
type Record struct {
	schema *RecordSchema

	fields []FieldValue
	rawKey []byte

	value      string
	hasValue   bool
	payload    map[string]any
	hasPayload bool
}

// NewRecord builds a record from decoded key fields and a payload.
func NewRecord(schema *RecordSchema, fields []FieldValue, payload map[string]any) *Record {
	return &Record{schema: schema, fields: fields, payload: payload, hasPayload: true}
}

// RawRecord builds a record from the stored representation.
func RawRecord(schema *RecordSchema, rawKey []byte, value string) *Record {
	return &Record{schema: schema, rawKey: rawKey, value: value, hasValue: true}
}

func (rec *Record) Schema() *RecordSchema {
	return rec.schema
}

func (rec *Record) Fields() ([]FieldValue, error) {
	if rec.fields == nil {
		vals, err := rec.schema.key.DecodeKey(rec.rawKey)
		if err != nil {
			return nil, err
		}
		rec.fields = vals
	}
	return rec.fields, nil
}

func (rec *Record) RawKey() ([]byte, error) {
	if rec.rawKey == nil {
		raw, err := rec.schema.key.EncodeKey(rec.fields...)
		if err != nil {
			return nil, err
		}
		rec.rawKey = raw
	}
	return rec.rawKey, nil
}

func (rec *Record) Value() (string, error) {
	if !rec.hasValue {
		value, err := rec.schema.EncodeValue(rec.payload)
		if err != nil {
			return "", err
		}
		rec.value, rec.hasValue = value, true
	}
	return rec.value, nil
}

func (rec *Record) Payload() (map[string]any, error) {
	if !rec.hasPayload {
		payload, err := rec.schema.DecodeValue(rec.value)
		if err != nil {
			return nil, err
		}
		rec.payload, rec.hasPayload = payload, true
	}
	return rec.payload, nil
}

// ID returns the record id, which is the first key field and must be a uint.
func (rec *Record) ID() (uint64, error) {
	fields, err := rec.Fields()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 || fields[0].Kind() != KindUint {
		return 0, fmt.Errorf("%w: record key does not start with a uint id", ErrSchemaMismatch)
	}
	return fields[0].Uint(), nil
}

func (rec *Record) String() string {
	raw, err := rec.RawKey()
	if err != nil {
		return fmt.Sprintf("<bad record: %v>", err)
	}
	value, err := rec.Value()
	if err != nil {
		return fmt.Sprintf("<bad record: %v>", err)
	}
	if value == "" {
		return hexstr(raw)
	}
	return hexstr(raw) + " => " + value
}
