package ringdb

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Block owns exactly one Storage instance for a single sequence and adds
// bookkeeping on top of it: a dirty flag gating flush, and the debounced
// flush machinery. Blocks are created when their ring is opened and
// destroyed when it closes; no two blocks ever share a Storage.
type Block struct {
	seq    string
	store  Storage
	logger *zap.Logger

	mu         sync.Mutex
	dirty      bool
	flushTimer *time.Timer

	// onChange is the propagation hook installed by the owning ring; it runs
	// exactly once per successful mutation of the primary sequence.
	onChange func(*Change)
}

func newBlock(seq string, store Storage, logger *zap.Logger) *Block {
	b := &Block{}
	initBlock(b, seq, store, logger)
	return b
}

// initBlock fills a caller-allocated Block in place; embedders must not copy
// a Block once its mutex is in use.
func initBlock(b *Block, seq string, store Storage, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.seq = seq
	b.store = store
	b.logger = logger
}

func (b *Block) Seq() string {
	return b.seq
}

func (b *Block) Len() int {
	return b.store.Len()
}

func (b *Block) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *Block) Get(key []byte) (string, bool) {
	return b.store.Get(key)
}

func (b *Block) Put(key []byte, value string) {
	b.store.Put(key, value)
	b.markDirty()
}

func (b *Block) Delete(key []byte) bool {
	existed := b.store.Delete(key)
	if existed {
		b.markDirty()
	}
	return existed
}

func (b *Block) Scan(start, stop []byte) Cursor {
	return b.store.Scan(start, stop)
}

func (b *Block) Erase() {
	b.store.Erase()
	b.markDirty()
}

func (b *Block) markDirty() {
	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
}

func (b *Block) propagate(chg *Change) {
	if b.onChange != nil {
		b.onChange(chg)
	}
}

// Flush persists the block if dirty. With debounce == 0 the write happens
// immediately; otherwise exactly one flush is scheduled after the debounce
// window, and re-arming cancels the previous pending one, so repeated calls
// coalesce into a single durable write.
func (b *Block) Flush(debounce time.Duration) error {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	if debounce > 0 {
		if b.flushTimer != nil {
			b.flushTimer.Stop()
		}
		b.flushTimer = time.AfterFunc(debounce, b.flushScheduled)
		b.mu.Unlock()
		return nil
	}
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.dirty = false
	b.mu.Unlock()

	if err := b.store.Flush(); err != nil {
		b.markDirty()
		return fmt.Errorf("flushing %s: %w", b.seq, err)
	}
	mFlushes.Inc()
	return nil
}

func (b *Block) flushScheduled() {
	if err := b.Flush(0); err != nil {
		b.logger.Error("debounced flush failed", zap.String("seq", b.seq), zap.Error(err))
	}
}

// Close flushes pending changes and releases the storage.
func (b *Block) Close() error {
	b.mu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()
	flushErr := b.Flush(0)
	closeErr := b.store.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// DataBlock specializes Block for the primary object sequence: keys are
// encoded ids, the block knows the id range of its ring, and it tracks the
// autoincrement high-water mark (the highest id ever assigned through it).
// All operations are local; forwarding decisions belong to the owning ring.
type DataBlock struct {
	Block
	schema   *Schema
	ringName string
	startID  uint64
	stopID   uint64 // 0 = unbounded

	aiMu    sync.Mutex
	autoinc uint64
}

func newDataBlock(schema *Schema, ringName string, startID, stopID uint64, store Storage, logger *zap.Logger) *DataBlock {
	b := &DataBlock{
		schema:   schema,
		ringName: ringName,
		startID:  startID,
		stopID:   stopID,
	}
	initBlock(&b.Block, "main", store, logger)
	for cur := store.Scan(nil, nil); cur.Next(); {
		if id, err := schema.keyID(cur.Key()); err == nil && id > b.autoinc {
			b.autoinc = id
		}
	}
	return b
}

func (b *DataBlock) Autoincrement() uint64 {
	b.aiMu.Lock()
	defer b.aiMu.Unlock()
	return b.autoinc
}

func (b *DataBlock) inRange(id uint64) bool {
	return id >= b.startID && (b.stopID == 0 || id < b.stopID)
}

// tryReserveID picks the next id for an auto-assigned insert,
// max(autoincrement+1, startID), and bumps the high-water mark. Returns
// false without side effects when the range is exhausted.
func (b *DataBlock) tryReserveID() (uint64, bool) {
	b.aiMu.Lock()
	defer b.aiMu.Unlock()
	id := b.autoinc + 1
	if id < b.startID {
		id = b.startID
	}
	if b.stopID != 0 && id >= b.stopID {
		return 0, false
	}
	b.autoinc = id
	return id, true
}

// noteID records an explicitly assigned id.
func (b *DataBlock) noteID(id uint64) {
	b.aiMu.Lock()
	if id > b.autoinc {
		b.autoinc = id
	}
	b.aiMu.Unlock()
}

func (b *DataBlock) key(id uint64) []byte {
	return b.schema.idKey(id)
}

// Select is a local lookup only; forwarding on miss is the owning ring's
// decision.
func (b *DataBlock) Select(id uint64) (string, bool) {
	return b.Get(b.key(id))
}

func (b *DataBlock) has(id uint64) bool {
	_, ok := b.Get(b.key(id))
	return ok
}

// Insert stores a new record under an explicitly chosen id.
func (b *DataBlock) Insert(id uint64, value string) error {
	if !b.inRange(id) {
		return ringErrf(b.ringName, b.seq, id, ErrIDOutOfRange, "[%d, %d)", b.startID, b.stopID)
	}
	if b.has(id) {
		return ringErrf(b.ringName, b.seq, id, ErrDuplicateID, "")
	}
	b.noteID(id)
	key := b.key(id)
	b.Put(key, value)
	b.propagate(newChange(OpPut, b.ringName, id, key, nil, &value))
	return nil
}

// InsertAuto stores a new record under the next assignable id.
func (b *DataBlock) InsertAuto(value string) (uint64, error) {
	id, ok := b.tryReserveID()
	if !ok {
		return 0, ringErrf(b.ringName, b.seq, b.Autoincrement()+1, ErrIDOutOfRange, "[%d, %d)", b.startID, b.stopID)
	}
	key := b.key(id)
	b.Put(key, value)
	b.propagate(newChange(OpPut, b.ringName, id, key, nil, &value))
	return id, nil
}

// Store writes a value in place, replacing any local entry. Used for
// in-place updates and for landing forwarded update results; the id range is
// deliberately not enforced, because forwarded records legitimately shadow
// ids owned by lower rings.
func (b *DataBlock) Store(id uint64, value string) {
	key := b.key(id)
	var old *string
	if v, ok := b.Get(key); ok {
		old = &v
	}
	b.Put(key, value)
	b.propagate(newChange(OpPut, b.ringName, id, key, old, &value))
}

// DeleteID removes a record locally. Returns true iff it existed.
func (b *DataBlock) DeleteID(id uint64) bool {
	key := b.key(id)
	v, ok := b.Get(key)
	if !ok {
		return false
	}
	b.Delete(key)
	b.propagate(newChange(OpDelete, b.ringName, id, key, &v, nil))
	return true
}
