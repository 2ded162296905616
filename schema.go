package ringdb

import "fmt"

// IndexDef defines a derived index sequence. The indexer maps a primary
// record to zero or more index key tuples; the primary id is appended to
// every tuple as the final key field, so index keys are unique per record
// and point back to their source.
type IndexDef struct {
	Name    string
	Key     *KeySchema
	Indexer func(id uint64, data map[string]any) [][]FieldValue

	full *KeySchema // Key fields + trailing id field
}

// Schema describes the logical namespace: the primary record schema plus the
// derived index sequences every ring maintains.
type Schema struct {
	main    *RecordSchema
	indexes []*IndexDef
	byName  map[string]*IndexDef
}

func NewSchema(main *RecordSchema, indexes ...*IndexDef) *Schema {
	if main == nil {
		panic("ringdb: schema requires a primary record schema")
	}
	kf := main.Key().Fields()
	if len(kf) != 1 || kf[0].Kind != KindUint {
		panic(fmt.Sprintf("ringdb: primary key must be a single uint field, got %d fields", len(kf)))
	}
	scm := &Schema{main: main, byName: make(map[string]*IndexDef)}
	for _, def := range indexes {
		scm.addIndex(def)
	}
	return scm
}

func (scm *Schema) addIndex(def *IndexDef) {
	if def.Name == "" || def.Key == nil || def.Indexer == nil {
		panic(fmt.Sprintf("ringdb: index %q needs a name, a key schema and an indexer", def.Name))
	}
	if scm.byName[def.Name] != nil {
		panic(fmt.Sprintf("ringdb: schema already has index named %q", def.Name))
	}
	fields := append(append([]Field(nil), def.Key.Fields()...), Field{Name: "id", Kind: KindUint})
	def.full = NewKeySchema(fields...)
	scm.indexes = append(scm.indexes, def)
	scm.byName[def.Name] = def
}

func (scm *Schema) Main() *RecordSchema {
	return scm.main
}

func (scm *Schema) Indexes() []*IndexDef {
	return scm.indexes
}

func (scm *Schema) Index(name string) *IndexDef {
	return scm.byName[name]
}

// idKey encodes the primary key for an id.
func (scm *Schema) idKey(id uint64) []byte {
	raw, err := scm.main.Key().EncodeKey(Uint(id))
	if err != nil {
		panic(err) // single uint field, cannot mismatch
	}
	return raw
}

// keyID decodes the id out of a primary raw key.
func (scm *Schema) keyID(raw []byte) (uint64, error) {
	vals, err := scm.main.Key().DecodeKey(raw)
	if err != nil {
		return 0, err
	}
	return vals[0].Uint(), nil
}

// indexKeys computes the full index keys of def for one record.
func (def *IndexDef) indexKeys(id uint64, data map[string]any) ([][]byte, error) {
	if data == nil {
		return nil, nil
	}
	tuples := def.Indexer(id, data)
	keys := make([][]byte, 0, len(tuples))
	for _, tup := range tuples {
		vals := append(append([]FieldValue(nil), tup...), Uint(id))
		raw, err := def.full.EncodeKey(vals...)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", def.Name, err)
		}
		keys = append(keys, raw)
	}
	return keys, nil
}
