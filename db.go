package ringdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DB is the ordered stack of rings presenting a single logical namespace.
// Reads probe top-down; writes land where permitted or forward along the
// chain. The database exclusively owns the ring chain; rings are linked only
// after their storage is fully loaded.
type DB struct {
	schema *Schema
	opt    Options
	logger *zap.Logger

	mu    sync.RWMutex
	rings []*Ring

	// idLocks serializes read-modify-write operations per id; operations on
	// different ids proceed in parallel. Entries are reference-counted and
	// removed when the last holder releases, so the map stays proportional to
	// the number of in-flight mutations, not the id space.
	idLocks *xsync.MapOf[uint64, *idLock]

	subsMu sync.RWMutex
	subs   []func(*Change)

	closed bool
}

// Options tunes database behavior.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// FlushDebounce delays durable writes after a mutation, coalescing
	// bursts into a single file rewrite. Zero flushes immediately.
	FlushDebounce time.Duration
}

// New creates an empty database; rings are added with Append.
func New(schema *Schema, opt Options) *DB {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &DB{
		schema:  schema,
		opt:     opt,
		logger:  opt.Logger,
		idLocks: xsync.NewMapOf[uint64, *idLock](),
	}
}

// Open creates a database and appends every ring of the configuration,
// bottom to top.
func Open(cfg *Config, schema *Schema, opt Options) (*DB, error) {
	if cfg.FlushDebounce > 0 && opt.FlushDebounce == 0 {
		opt.FlushDebounce = cfg.FlushDebounce
	}
	db := New(schema, opt)
	for _, rc := range cfg.Rings {
		if _, err := db.Append(rc); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Schema() *Schema {
	return db.schema
}

// Append opens a new ring and links it on top of the stack. The ring's
// storage is loaded before the ring becomes observable, so concurrent
// readers never see a partially-linked state.
func (db *DB) Append(cfg RingConfig) (*Ring, error) {
	r, err := openRing(db, cfg)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		r.closeBlocks()
		return nil, fmt.Errorf("ringdb: database closed")
	}
	for _, existing := range db.rings {
		if existing.name == cfg.Name {
			r.closeBlocks()
			return nil, fmt.Errorf("ringdb: ring %q already exists", cfg.Name)
		}
		if ringRangesOverlap(existing, r) && !existing.readonly && !r.readonly {
			r.closeBlocks()
			return nil, fmt.Errorf("ringdb: rings %q and %q both claim writable authority over overlapping id ranges", existing.name, cfg.Name)
		}
	}
	r.pos = len(db.rings)
	db.rings = append(db.rings, r)
	db.logger.Info("ring appended",
		zap.String("ring", r.name),
		zap.Uint64("start_id", r.startID),
		zap.Uint64("stop_id", r.stopID),
		zap.Bool("readonly", r.readonly),
		zap.Int("records", r.main.Len()))
	return r, nil
}

func ringRangesOverlap(a, b *Ring) bool {
	aUnbounded := a.stopID == 0
	bUnbounded := b.stopID == 0
	if aUnbounded && bUnbounded {
		return true
	}
	if aUnbounded {
		return b.stopID > a.startID
	}
	if bUnbounded {
		return a.stopID > b.startID
	}
	return a.startID < b.stopID && b.startID < a.stopID
}

// Top is the youngest ring (no next), Bottom the oldest (no prev).
func (db *DB) Top() *Ring {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if len(db.rings) == 0 {
		return nil
	}
	return db.rings[len(db.rings)-1]
}

func (db *DB) Bottom() *Ring {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if len(db.rings) == 0 {
		return nil
	}
	return db.rings[0]
}

// Ring finds a ring by name.
func (db *DB) Ring(name string) *Ring {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, r := range db.rings {
		if r.name == name {
			return r
		}
	}
	return nil
}

// RingOf finds the ring currently holding id.
func (db *DB) RingOf(id uint64) *Ring {
	top := db.Top()
	if top == nil {
		return nil
	}
	return top.find(id)
}

func (db *DB) Rings() []*Ring {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Ring, len(db.rings))
	copy(out, db.rings)
	return out
}

func (db *DB) top() (*Ring, error) {
	top := db.Top()
	if top == nil {
		return nil, fmt.Errorf("ringdb: database has no rings")
	}
	return top, nil
}

// idLock is one entry of the per-id lock table. refs is only touched inside
// Compute callbacks, which the map serializes per key.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// lockID serializes mutations of one id. Returns the unlock func, which also
// drops the table entry once no other holder remains.
func (db *DB) lockID(id uint64) func() {
	l, _ := db.idLocks.Compute(id, func(old *idLock, loaded bool) (*idLock, bool) {
		if !loaded {
			old = &idLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		db.idLocks.Compute(id, func(old *idLock, loaded bool) (*idLock, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Select returns the record stored under id, probing rings top-down.
func (db *DB) Select(id uint64) (*Record, error) {
	top, err := db.top()
	if err != nil {
		return nil, err
	}
	mSelects.Inc()
	value, err := top.selectValue(id)
	if err != nil {
		return nil, err
	}
	return RawRecord(db.schema.Main(), db.schema.idKey(id), value), nil
}

// Insert stores a new record under the next assignable id and returns it.
func (db *DB) Insert(payload map[string]any) (uint64, error) {
	top, err := db.top()
	if err != nil {
		return 0, err
	}
	value, err := db.schema.Main().EncodeValue(payload)
	if err != nil {
		return 0, err
	}
	mInserts.Inc()
	return top.insert(false, 0, value)
}

// InsertID stores a new record under an explicitly chosen id. Fails with
// ErrDuplicateID if the id exists anywhere in the chain.
func (db *DB) InsertID(id uint64, payload map[string]any) error {
	top, err := db.top()
	if err != nil {
		return err
	}
	value, err := db.schema.Main().EncodeValue(payload)
	if err != nil {
		return err
	}
	unlock := db.lockID(id)
	defer unlock()
	mInserts.Inc()
	_, err = top.insert(true, id, value)
	return err
}

// Update applies edits to the record stored under id and returns the new
// payload. The result is computed once; if the holding ring is read-only it
// is forwarded upward as-is.
func (db *DB) Update(id uint64, edits ...Edit) (map[string]any, error) {
	top, err := db.top()
	if err != nil {
		return nil, err
	}
	unlock := db.lockID(id)
	defer unlock()
	mUpdates.Inc()
	return top.update(id, edits)
}

// Delete removes the topmost copy of id. Returns true iff a record existed;
// deleting a missing id is not an error.
func (db *DB) Delete(id uint64) (bool, error) {
	top, err := db.top()
	if err != nil {
		return false, err
	}
	unlock := db.lockID(id)
	defer unlock()
	mDeletes.Inc()
	return top.deleteID(id)
}

// Scan iterates records with start <= id < stop in ascending id order,
// merged across all rings. stop == 0 means unbounded.
func (db *DB) Scan(start, stop uint64) (*RecordCursor, error) {
	top, err := db.top()
	if err != nil {
		return nil, err
	}
	mScans.Inc()
	startKey := db.schema.idKey(start)
	var stopKey []byte
	if stop != 0 {
		stopKey = db.schema.idKey(stop)
	}
	return &RecordCursor{schema: db.schema, cur: top.scan(startKey, stopKey)}, nil
}

// ScanIndex iterates one derived index sequence across all rings, bounded by
// partial key tuples (nil = unbounded). The lower bound is inclusive, the
// upper exclusive; bounds use the open encoding, so a bare prefix matches
// every key extending it.
func (db *DB) ScanIndex(name string, start, stop []FieldValue) (Cursor, error) {
	top, err := db.top()
	if err != nil {
		return nil, err
	}
	def := db.schema.Index(name)
	if def == nil {
		return nil, fmt.Errorf("ringdb: unknown index %q", name)
	}
	var startKey, stopKey []byte
	if start != nil {
		if startKey, err = def.full.EncodeBound(start...); err != nil {
			return nil, err
		}
	}
	if stop != nil {
		if stopKey, err = def.full.EncodeBound(stop...); err != nil {
			return nil, err
		}
	}
	mScans.Inc()
	return top.scanIndex(name, startKey, stopKey)
}

// Subscribe registers a change listener. Listeners run synchronously on the
// mutating goroutine, once per committed change.
func (db *DB) Subscribe(fn func(*Change)) {
	db.subsMu.Lock()
	db.subs = append(db.subs, fn)
	db.subsMu.Unlock()
}

func (db *DB) notify(chg *Change) {
	db.subsMu.RLock()
	subs := db.subs
	db.subsMu.RUnlock()
	for _, fn := range subs {
		fn(chg)
	}
}

// FlushAll flushes every ring. Rings flush concurrently; the first error is
// returned.
func (db *DB) FlushAll(debounce time.Duration) error {
	var g errgroup.Group
	for _, r := range db.Rings() {
		r := r
		g.Go(func() error {
			return r.FlushDebounced(debounce)
		})
	}
	return g.Wait()
}

// Close flushes and closes every ring.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	rings := db.rings
	db.mu.Unlock()

	var g errgroup.Group
	for _, r := range rings {
		r := r
		g.Go(func() error {
			return r.closeBlocks()
		})
	}
	err := g.Wait()
	db.logger.Info("database closed", zap.Int("rings", len(rings)))
	return err
}

// RecordCursor yields primary records as (id, payload) pairs.
type RecordCursor struct {
	schema *Schema
	cur    Cursor
	rec    *Record
	id     uint64
	err    error
}

func (c *RecordCursor) Next() bool {
	c.rec, c.err = nil, nil
	if !c.cur.Next() {
		return false
	}
	id, err := c.schema.keyID(c.cur.Key())
	if err != nil {
		c.err = err
		return false
	}
	c.id = id
	c.rec = RawRecord(c.schema.Main(), c.cur.Key(), c.cur.Value())
	return true
}

func (c *RecordCursor) ID() uint64      { return c.id }
func (c *RecordCursor) Record() *Record { return c.rec }
func (c *RecordCursor) Err() error      { return c.err }
