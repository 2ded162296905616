package ringdb

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RingConfig describes one layer of the stack.
type RingConfig struct {
	Name     string `mapstructure:"name"`
	Format   string `mapstructure:"format"` // storage format tag; "" = memory
	Path     string `mapstructure:"path"`
	StartID  uint64 `mapstructure:"start_id"`
	StopID   uint64 `mapstructure:"stop_id"` // 0 = unbounded
	ReadOnly bool   `mapstructure:"readonly"`
}

// Ring is a named, ordered, id-range-bounded layer of the stack. It owns one
// DataBlock for the primary sequence plus one Block per derived index
// sequence. Neighbor navigation goes through the position in the database's
// ring slice; all chain walks are iterative.
type Ring struct {
	db       *DB
	pos      int
	name     string
	startID  uint64
	stopID   uint64
	readonly bool

	main    *DataBlock
	indexes []*indexBlock
	logger  *zap.Logger
}

type indexBlock struct {
	def   *IndexDef
	block *Block
}

func openRing(db *DB, cfg RingConfig) (*Ring, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("ringdb: ring needs a name")
	}
	if cfg.StopID != 0 && cfg.StopID <= cfg.StartID {
		return nil, fmt.Errorf("ringdb: ring %s: empty id range [%d, %d)", cfg.Name, cfg.StartID, cfg.StopID)
	}
	format := cfg.Format
	if format == "" {
		format = "memory"
	}

	r := &Ring{
		db:       db,
		name:     cfg.Name,
		startID:  cfg.StartID,
		stopID:   cfg.StopID,
		readonly: cfg.ReadOnly,
		logger:   db.logger.With(zap.String("ring", cfg.Name)),
	}

	// Shadow copies forwarded up from older rings sit below startID, so the
	// load check only rejects ids at or above the ring's ceiling.
	checkKey := func(key []byte) error {
		id, err := db.schema.keyID(key)
		if err != nil {
			return err
		}
		if cfg.StopID != 0 && id >= cfg.StopID {
			return ringErrf(cfg.Name, "main", id, ErrIDOutOfRange, "[%d, %d)", cfg.StartID, cfg.StopID)
		}
		return nil
	}

	mainStore, err := OpenStorage(format, StorageOptions{
		Path:     cfg.Path,
		Schema:   db.schema.Main(),
		CheckKey: checkKey,
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.main = newDataBlock(db.schema, cfg.Name, cfg.StartID, cfg.StopID, mainStore, r.logger)
	r.main.onChange = r.propagateChange

	for _, def := range db.schema.Indexes() {
		idxFormat, idxPath := "memory", ""
		if cfg.Path != "" {
			idxFormat = "index"
			idxPath = cfg.Path + "." + def.Name + ".idx"
		}
		store, err := OpenStorage(idxFormat, StorageOptions{Path: idxPath, Logger: r.logger})
		if err != nil {
			r.closeBlocks()
			return nil, err
		}
		r.indexes = append(r.indexes, &indexBlock{def: def, block: newBlock(def.Name, store, r.logger)})
	}

	// A populated primary with an empty index sequence means the index side
	// file is missing or was discarded; rebuild it from the primary records.
	for _, ib := range r.indexes {
		if ib.block.Len() == 0 && r.main.Len() > 0 {
			if err := r.rebuildIndex(ib); err != nil {
				r.closeBlocks()
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Ring) rebuildIndex(ib *indexBlock) error {
	for cur := r.main.Scan(nil, nil); cur.Next(); {
		id, err := r.db.schema.keyID(cur.Key())
		if err != nil {
			return err
		}
		value := cur.Value()
		keys, err := r.indexKeysOf(ib.def, id, &value)
		if err != nil {
			return err
		}
		for _, key := range keys {
			ib.block.Put(key, "")
		}
	}
	if ib.block.Len() > 0 {
		r.logger.Info("index rebuilt from primary records",
			zap.String("index", ib.def.Name), zap.Int("entries", ib.block.Len()))
	}
	return nil
}

func (r *Ring) Name() string      { return r.name }
func (r *Ring) StartID() uint64   { return r.startID }
func (r *Ring) StopID() uint64    { return r.stopID }
func (r *Ring) ReadOnly() bool    { return r.readonly }
func (r *Ring) Block() *DataBlock { return r.main }

// prev is the ring directly below (older, lower priority). Neighbor lookups
// take the db lock, so a concurrent Append is never observed half-linked.
func (r *Ring) prev() *Ring {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if r.pos == 0 {
		return nil
	}
	return r.db.rings[r.pos-1]
}

// next is the ring directly above (younger, higher priority).
func (r *Ring) next() *Ring {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if r.pos+1 >= len(r.db.rings) {
		return nil
	}
	return r.db.rings[r.pos+1]
}

// prevHop steps to the ring below, counting the move as a forwarding hop.
func (r *Ring) prevHop() *Ring {
	p := r.prev()
	if p != nil {
		mForwards.Inc()
	}
	return p
}

// nextHop steps to the ring above, counting the move as a forwarding hop.
func (r *Ring) nextHop() *Ring {
	n := r.next()
	if n != nil {
		mForwards.Inc()
	}
	return n
}

func (r *Ring) inRange(id uint64) bool {
	return id >= r.startID && (r.stopID == 0 || id < r.stopID)
}

// writableFor reports whether an insert of id may land here.
func (r *Ring) writableFor(id uint64) bool {
	return !r.readonly && r.inRange(id)
}

// find walks from this ring downward to the first ring whose primary block
// holds id.
func (r *Ring) find(id uint64) *Ring {
	for cur := r; cur != nil; cur = cur.prevHop() {
		if cur.main.has(id) {
			return cur
		}
	}
	return nil
}

func (r *Ring) selectValue(id uint64) (string, error) {
	holder := r.find(id)
	if holder == nil {
		return "", ringErrf(r.name, "main", id, ErrNotFound, "")
	}
	value, ok := holder.main.Select(id)
	if !ok {
		return "", ringErrf(holder.name, "main", id, ErrNotFound, "")
	}
	return value, nil
}

// insert walks downward from this ring to the first ring willing to accept
// the record; inserts never forward upward. Explicit ids are checked for
// duplicates across the whole reachable chain first.
func (r *Ring) insert(hasID bool, id uint64, value string) (uint64, error) {
	if hasID {
		if holder := r.find(id); holder != nil {
			return 0, ringErrf(holder.name, "main", id, ErrDuplicateID, "")
		}
	}
	for cur := r; cur != nil; cur = cur.prevHop() {
		if hasID {
			if !cur.writableFor(id) {
				continue
			}
			if err := cur.main.Insert(id, value); err != nil {
				return 0, err
			}
			return id, cur.flush()
		}
		if cur.readonly {
			continue
		}
		newID, err := cur.main.InsertAuto(value)
		if err != nil {
			continue // range exhausted, try an older ring
		}
		return newID, cur.flush()
	}
	return 0, ringErrf(r.name, "main", id, ErrNoWritableRing, "")
}

// update probes top-down for the ring holding id, computes the new value
// once, and writes it in place when that ring is writable. When the holder
// is read-only the already-computed result is forwarded upward to the first
// writable ring; the edits are never replayed.
func (r *Ring) update(id uint64, edits []Edit) (map[string]any, error) {
	holder := r.find(id)
	if holder == nil {
		return nil, ringErrf(r.name, "main", id, ErrNotFound, "")
	}
	oldValue, ok := holder.main.Select(id)
	if !ok {
		return nil, ringErrf(holder.name, "main", id, ErrNotFound, "")
	}

	payload, err := r.db.schema.Main().DecodeValue(oldValue)
	if err != nil {
		return nil, ringErrf(holder.name, "main", id, err, "decoding old value")
	}
	payload, err = applyEdits(payload, edits)
	if err != nil {
		return nil, ringErrf(holder.name, "main", id, err, "applying edits")
	}
	newValue, err := r.db.schema.Main().EncodeValue(payload)
	if err != nil {
		return nil, ringErrf(holder.name, "main", id, err, "encoding new value")
	}

	target := holder
	if holder.readonly {
		for target = holder.nextHop(); target != nil && target.readonly; target = target.nextHop() {
		}
		if target == nil {
			return nil, ringErrf(holder.name, "main", id, ErrReadOnly, "no writable ring above")
		}
		holder.logger.Debug("forwarding computed update", zap.Uint64("id", id), zap.String("target", target.name))
	}
	target.main.Store(id, newValue)
	if err := target.flush(); err != nil {
		return nil, err
	}
	return payload, nil
}

// deleteID removes the topmost copy of id. A read-only holder fails with
// ErrReadOnly rather than retrying at a lower layer, which would silently
// unshadow a stale copy.
func (r *Ring) deleteID(id uint64) (bool, error) {
	holder := r.find(id)
	if holder == nil {
		return false, nil
	}
	if holder.readonly {
		return false, ringErrf(holder.name, "main", id, ErrReadOnly, "")
	}
	existed := holder.main.DeleteID(id)
	if !existed {
		return false, nil
	}
	return true, holder.flush()
}

// scan merges this ring's local scan with the scans of all rings below it,
// ascending by key; duplicate keys yield the entry from the higher ring.
func (r *Ring) scan(start, stop []byte) Cursor {
	var curs []Cursor
	for cur := r; cur != nil; cur = cur.prev() {
		curs = append(curs, cur.main.Scan(start, stop))
	}
	// collected top-down; the merge wants bottom-up
	for i, j := 0, len(curs)-1; i < j; i, j = i+1, j-1 {
		curs[i], curs[j] = curs[j], curs[i]
	}
	return newMergeCursor(curs)
}

// scanIndex is scan over one derived index sequence.
func (r *Ring) scanIndex(name string, start, stop []byte) (Cursor, error) {
	var curs []Cursor
	for cur := r; cur != nil; cur = cur.prev() {
		ib := cur.index(name)
		if ib == nil {
			return nil, fmt.Errorf("ringdb: unknown index %q", name)
		}
		curs = append(curs, ib.block.Scan(start, stop))
	}
	for i, j := 0, len(curs)-1; i < j; i, j = i+1, j-1 {
		curs[i], curs[j] = curs[j], curs[i]
	}
	return newMergeCursor(curs), nil
}

func (r *Ring) index(name string) *indexBlock {
	for _, ib := range r.indexes {
		if ib.def.Name == name {
			return ib
		}
	}
	return nil
}

// propagateChange updates every derived index sequence of this ring, then
// notifies subscribers. Index maintenance failures are logged, not
// surfaced: propagation is best-effort from the primary writer's view but
// runs exactly once per mutation.
func (r *Ring) propagateChange(chg *Change) {
	for _, ib := range r.indexes {
		if err := r.applyToIndex(ib, chg); err != nil {
			r.logger.Error("index propagation failed",
				zap.String("index", ib.def.Name), zap.Uint64("id", chg.ID), zap.Error(err))
		}
	}
	mChanges.Inc()
	r.db.notify(chg)
}

func (r *Ring) applyToIndex(ib *indexBlock, chg *Change) error {
	oldKeys, err := r.indexKeysOf(ib.def, chg.ID, chg.OldValue)
	if err != nil {
		return err
	}
	newKeys, err := r.indexKeysOf(ib.def, chg.ID, chg.NewValue)
	if err != nil {
		return err
	}
	for _, key := range oldKeys {
		if !containsKey(newKeys, key) {
			ib.block.Delete(key)
		}
	}
	for _, key := range newKeys {
		if !containsKey(oldKeys, key) {
			ib.block.Put(key, "")
		}
	}
	return nil
}

func (r *Ring) indexKeysOf(def *IndexDef, id uint64, value *string) ([][]byte, error) {
	if value == nil {
		return nil, nil
	}
	payload, err := r.db.schema.Main().DecodeValue(*value)
	if err != nil {
		return nil, err
	}
	return def.indexKeys(id, payload)
}

// flush persists the primary block and every index block, with the
// database-wide debounce setting.
func (r *Ring) flush() error {
	return r.FlushDebounced(r.db.opt.FlushDebounce)
}

// FlushDebounced flushes all blocks of this ring.
func (r *Ring) FlushDebounced(debounce time.Duration) error {
	if err := r.main.Flush(debounce); err != nil {
		return err
	}
	for _, ib := range r.indexes {
		if err := ib.block.Flush(debounce); err != nil {
			return err
		}
	}
	return nil
}

func (r *Ring) closeBlocks() error {
	var firstErr error
	if r.main != nil {
		if err := r.main.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, ib := range r.indexes {
		if err := ib.block.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RingStats is a point-in-time summary of one ring.
type RingStats struct {
	Name          string
	StartID       uint64
	StopID        uint64
	ReadOnly      bool
	Records       int
	Autoincrement uint64
	Dirty         bool
}

func (r *Ring) Stats() RingStats {
	return RingStats{
		Name:          r.name,
		StartID:       r.startID,
		StopID:        r.stopID,
		ReadOnly:      r.readonly,
		Records:       r.main.Len(),
		Autoincrement: r.main.Autoincrement(),
		Dirty:         r.main.Dirty(),
	}
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if string(k) == string(key) {
			return true
		}
	}
	return false
}
