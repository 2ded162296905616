package ringdb

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Cursor iterates over key-value entries in ascending binary key order.
type Cursor interface {
	Next() bool
	Key() []byte
	Value() string
}

// Storage is a sorted byte-key to string-value map with range scans.
// Backends differ only in durability: Flush persists to the durable medium
// if there is one and is a no-op otherwise. Each Storage instance is owned
// by exactly one Block.
type Storage interface {
	// Get retrieves a value by key.
	Get(key []byte) (string, bool)

	// Put stores a key-value pair, replacing any existing entry.
	Put(key []byte, value string)

	// Delete removes a key. Returns true iff an entry existed.
	Delete(key []byte) bool

	// Scan iterates the half-open range [start, stop) in ascending key
	// order. A nil bound means unbounded on that side.
	Scan(start, stop []byte) Cursor

	// Erase removes all entries.
	Erase()

	// Len returns the number of entries.
	Len() int

	// Flush persists to the durable medium, if any.
	Flush() error

	// Close releases resources. It does not flush.
	Close() error
}

// StorageOptions parameterizes backend construction. CheckKey, when set, is
// applied to every key loaded from a durable medium; loaders fail fast on
// the first rejected key and on duplicate keys.
type StorageOptions struct {
	Path     string
	Schema   *RecordSchema
	CheckKey func(key []byte) error
	Logger   *zap.Logger
}

func (opt StorageOptions) logger() *zap.Logger {
	if opt.Logger == nil {
		return zap.NewNop()
	}
	return opt.Logger
}

// StorageOpener constructs and loads a storage backend.
type StorageOpener func(opt StorageOptions) (Storage, error)

var storageBackends = struct {
	mu sync.RWMutex
	m  map[string]StorageOpener
}{m: make(map[string]StorageOpener)}

// RegisterStorage registers a backend constructor under a format tag.
// Format tags are resolved at configuration time, never via reflection.
func RegisterStorage(format string, opener StorageOpener) {
	storageBackends.mu.Lock()
	defer storageBackends.mu.Unlock()
	if storageBackends.m[format] != nil {
		panic(fmt.Sprintf("ringdb: storage format %q registered twice", format))
	}
	storageBackends.m[format] = opener
}

// OpenStorage opens a storage backend by format tag.
func OpenStorage(format string, opt StorageOptions) (Storage, error) {
	storageBackends.mu.RLock()
	opener := storageBackends.m[format]
	storageBackends.mu.RUnlock()
	if opener == nil {
		return nil, fmt.Errorf("ringdb: unknown storage format %q", format)
	}
	return opener(opt)
}
