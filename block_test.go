package ringdb

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingStorage wraps a memStorage and counts durable writes.
type countingStorage struct {
	*memStorage
	flushes atomic.Int32
}

func (s *countingStorage) Flush() error {
	s.flushes.Add(1)
	return nil
}

func TestBlockFlushImmediate(t *testing.T) {
	s := &countingStorage{memStorage: newMemStorage()}
	b := newBlock("main", s, nil)

	ensure(b.Flush(0))
	if n := s.flushes.Load(); n != 0 {
		t.Errorf("** clean block flushed %d times, wanted 0", n)
	}

	b.Put([]byte("a"), "1")
	if !b.Dirty() {
		t.Fatalf("** block not dirty after Put")
	}
	ensure(b.Flush(0))
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** flushed %d times, wanted 1", n)
	}
	if b.Dirty() {
		t.Errorf("** block still dirty after flush")
	}

	ensure(b.Flush(0))
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** clean flush wrote again, total %d", n)
	}
}

func TestBlockFlushDebounceCoalesces(t *testing.T) {
	s := &countingStorage{memStorage: newMemStorage()}
	b := newBlock("main", s, nil)

	// a burst of mutations, each scheduling a debounced flush
	for i := 0; i < 10; i++ {
		b.Put([]byte{byte(i)}, "v")
		ensure(b.Flush(30 * time.Millisecond))
	}
	if n := s.flushes.Load(); n != 0 {
		t.Fatalf("** flush ran before the debounce window, %d times", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.flushes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond) // catch any extra scheduled flushes
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** burst of 10 mutations flushed %d times, wanted 1", n)
	}
	if b.Dirty() {
		t.Errorf("** block still dirty after the debounced flush")
	}
}

func TestBlockImmediateFlushCancelsPending(t *testing.T) {
	s := &countingStorage{memStorage: newMemStorage()}
	b := newBlock("main", s, nil)

	b.Put([]byte("a"), "1")
	ensure(b.Flush(30 * time.Millisecond))
	ensure(b.Flush(0))
	if n := s.flushes.Load(); n != 1 {
		t.Fatalf("** flushed %d times, wanted 1", n)
	}
	time.Sleep(100 * time.Millisecond)
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** cancelled timer still fired, total %d", n)
	}
}

func TestBlockCloseFlushes(t *testing.T) {
	s := &countingStorage{memStorage: newMemStorage()}
	b := newBlock("main", s, nil)

	b.Put([]byte("a"), "1")
	ensure(b.Flush(time.Hour)) // pending far in the future
	ensure(b.Close())
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** Close flushed %d times, wanted 1", n)
	}
}

func TestDataBlockFlushMachinery(t *testing.T) {
	scm := NewSchema(testRecordSchema())
	s := &countingStorage{memStorage: newMemStorage()}
	b := newDataBlock(scm, "hot", 0, 0, s, nil)

	ensure(b.Insert(1, "a"))
	if !b.Dirty() {
		t.Fatalf("** data block not dirty after Insert")
	}
	ensure(b.Flush(0))
	if n := s.flushes.Load(); n != 1 {
		t.Errorf("** flushed %d times, wanted 1", n)
	}
	if b.Dirty() {
		t.Errorf("** data block still dirty after flush")
	}
}

func TestDataBlockAutoincrement(t *testing.T) {
	scm := NewSchema(testRecordSchema())

	store := newMemStorage()
	store.Put(scm.idKey(3), "a")
	store.Put(scm.idKey(7), "b")
	b := newDataBlock(scm, "hot", 0, 0, store, nil)
	if ai := b.Autoincrement(); ai != 7 {
		t.Fatalf("** Autoincrement() = %d after load, wanted 7", ai)
	}

	id := must(b.InsertAuto("c"))
	if id != 8 {
		t.Errorf("** InsertAuto assigned %d, wanted 8", id)
	}
	ensure(b.Insert(20, "d"))
	if id := must(b.InsertAuto("e")); id != 21 {
		t.Errorf("** InsertAuto after explicit 20 assigned %d, wanted 21", id)
	}
}

func TestDataBlockAutoincrementStartsAtRangeFloor(t *testing.T) {
	scm := NewSchema(testRecordSchema())
	b := newDataBlock(scm, "hot", 100, 200, newMemStorage(), nil)
	if id := must(b.InsertAuto("a")); id != 100 {
		t.Errorf("** first InsertAuto assigned %d, wanted 100", id)
	}
}

func TestDataBlockRangeExhaustion(t *testing.T) {
	scm := NewSchema(testRecordSchema())
	b := newDataBlock(scm, "hot", 10, 12, newMemStorage(), nil)
	must(b.InsertAuto("a"))
	must(b.InsertAuto("b"))
	if _, err := b.InsertAuto("c"); !errors.Is(err, ErrIDOutOfRange) {
		t.Errorf("** exhausted range: got %v, wanted ErrIDOutOfRange", err)
	}
	if err := b.Insert(12, "d"); !errors.Is(err, ErrIDOutOfRange) {
		t.Errorf("** Insert(12) in [10, 12): got %v, wanted ErrIDOutOfRange", err)
	}
	if err := b.Insert(9, "d"); !errors.Is(err, ErrIDOutOfRange) {
		t.Errorf("** Insert(9) in [10, 12): got %v, wanted ErrIDOutOfRange", err)
	}
}

func TestDataBlockDuplicateAndDelete(t *testing.T) {
	scm := NewSchema(testRecordSchema())
	b := newDataBlock(scm, "hot", 0, 0, newMemStorage(), nil)
	ensure(b.Insert(5, "a"))
	if err := b.Insert(5, "b"); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("** duplicate Insert: got %v, wanted ErrDuplicateID", err)
	}
	if !b.DeleteID(5) {
		t.Errorf("** DeleteID(5) = false")
	}
	if b.DeleteID(5) {
		t.Errorf("** second DeleteID(5) = true")
	}
}

func TestDataBlockStoreShadowsOutOfRange(t *testing.T) {
	scm := NewSchema(testRecordSchema())
	b := newDataBlock(scm, "hot", 100, 0, newMemStorage(), nil)
	// forwarded copies of ids owned by lower rings are stored as-is
	b.Store(50, "shadow")
	if v, ok := b.Select(50); !ok || v != "shadow" {
		t.Errorf("** Select(50) = %q, %v", v, ok)
	}
}
