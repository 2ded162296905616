package ringdb

import (
	"bytes"
	"slices"
	"sort"
	"sync"
)

func init() {
	RegisterStorage("memory", func(opt StorageOptions) (Storage, error) {
		return newMemStorage(), nil
	})
}

// memStorage keeps entries in a slice sorted by key. Scans copy the matching
// window, so a cursor observes a snapshot of whatever was committed at call
// time regardless of concurrent writes.
type memStorage struct {
	mu    sync.RWMutex
	items []memKV
}

type memKV struct {
	key   []byte
	value string
}

func newMemStorage() *memStorage {
	return &memStorage{}
}

func (s *memStorage) Get(key []byte) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.find(key)
	if !ok {
		return "", false
	}
	return s.items[i].value, true
}

func (s *memStorage) Put(key []byte, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(key)
	if ok {
		s.items[i].value = value
		return
	}
	s.items = slices.Insert(s.items, i, memKV{key: slices.Clone(key), value: value})
}

func (s *memStorage) Delete(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(key)
	if !ok {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

func (s *memStorage) Scan(start, stop []byte) Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := 0
	if start != nil {
		lo, _ = s.find(start)
	}
	hi := len(s.items)
	if stop != nil {
		hi, _ = s.find(stop)
	}
	if hi < lo {
		hi = lo
	}
	return &memCursor{items: slices.Clone(s.items[lo:hi]), pos: -1}
}

func (s *memStorage) Erase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

func (s *memStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *memStorage) Flush() error { return nil }
func (s *memStorage) Close() error { return nil }

// find returns the position of key, or the position it would be inserted at.
func (s *memStorage) find(key []byte) (idx int, ok bool) {
	items := s.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

type memCursor struct {
	items []memKV
	pos   int
}

func (c *memCursor) Next() bool {
	if c.pos+1 >= len(c.items) {
		c.pos = len(c.items)
		return false
	}
	c.pos++
	return true
}

func (c *memCursor) Key() []byte {
	return c.items[c.pos].key
}

func (c *memCursor) Value() string {
	return c.items[c.pos].value
}
