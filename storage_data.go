package ringdb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

func init() {
	RegisterStorage("data", func(opt StorageOptions) (Storage, error) {
		if opt.Schema == nil {
			return nil, fmt.Errorf("ringdb: data storage requires a record schema")
		}
		return openFileStorage(&dataFileFormat{schema: opt.Schema}, opt)
	})
}

// dataFileFormat is a JSON document holding a list of records. Each record
// object carries the key fields by name plus either flattened payload fields
// or a nested payload object under "data". Requires the record schema to map
// keys to their binary form.
type dataFileFormat struct {
	schema *RecordSchema
}

func (ff *dataFileFormat) load(r io.Reader, put func(key []byte, value string) error) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	for i, row := range rows {
		key, payload, err := ff.splitRow(row)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		value, err := ff.schema.EncodeValue(payload)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := put(key, value); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (ff *dataFileFormat) splitRow(row map[string]any) ([]byte, map[string]any, error) {
	kf := ff.schema.Key().Fields()
	vals := make([]FieldValue, 0, len(kf))
	for _, f := range kf {
		raw, ok := row[f.Name]
		if !ok {
			return nil, nil, fmt.Errorf("missing key field %q", f.Name)
		}
		v, err := fieldValueFromJSON(f, raw)
		if err != nil {
			return nil, nil, err
		}
		vals = append(vals, v)
	}
	key, err := ff.schema.Key().EncodeKey(vals...)
	if err != nil {
		return nil, nil, err
	}

	var payload map[string]any
	if nested, ok := row["data"].(map[string]any); ok && len(row) == len(kf)+1 {
		payload = nested
	} else {
		payload = make(map[string]any, len(row))
		for k, v := range row {
			payload[k] = v
		}
		for _, f := range kf {
			delete(payload, f.Name)
		}
		if len(payload) == 0 {
			payload = nil
		}
	}
	return key, payload, nil
}

func fieldValueFromJSON(f Field, raw any) (FieldValue, error) {
	switch f.Kind {
	case KindUint:
		num, ok := raw.(float64)
		if !ok || num < 0 || num != float64(uint64(num)) {
			return FieldValue{}, fmt.Errorf("key field %q: %v is not a valid id", f.Name, raw)
		}
		return Uint(uint64(num)), nil
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return FieldValue{}, fmt.Errorf("key field %q: %v is not a string", f.Name, raw)
		}
		return Str(s), nil
	case KindBytes:
		s, ok := raw.(string)
		if !ok {
			return FieldValue{}, fmt.Errorf("key field %q: %v is not a hex string", f.Name, raw)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return FieldValue{}, fmt.Errorf("key field %q: %w", f.Name, err)
		}
		return Blob(b), nil
	default:
		return FieldValue{}, fmt.Errorf("key field %q: invalid kind", f.Name)
	}
}

func fieldValueToJSON(v FieldValue) any {
	switch v.Kind() {
	case KindUint:
		return v.Uint()
	case KindString:
		return v.Str()
	default:
		return hex.EncodeToString(v.Blob())
	}
}

func (ff *dataFileFormat) save(w io.Writer, cur Cursor) error {
	kf := ff.schema.Key().Fields()
	rows := make([]map[string]any, 0)
	for cur.Next() {
		vals, err := ff.schema.Key().DecodeKey(cur.Key())
		if err != nil {
			return err
		}
		payload, err := ff.schema.DecodeValue(cur.Value())
		if err != nil {
			return err
		}
		row := make(map[string]any, len(kf)+len(payload))
		for k, v := range payload {
			row[k] = v
		}
		for i, f := range kf {
			row[f.Name] = fieldValueToJSON(vals[i])
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
