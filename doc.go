// Package ringdb is an embedded, multi-layer object store: a stack of
// independent storage generations ("rings") presenting a single logical
// key-value namespace with byte-ordered keys, range scans, and automatic
// propagation of primary-data changes to derived index sequences.
//
// Each ring is authoritative for a half-open id range and may be read-only.
// Reads probe the stack top-down; inserts land in the first ring writable
// for the id, walking downward; updates compute the new value once and, when
// the holding ring is read-only, forward the result upward to the first
// writable ring, shadowing the old copy. Scans merge all rings in ascending
// key order, with higher rings shadowing lower ones on duplicate keys.
//
// Storage backends are selected by format tag at configuration time:
// in-memory, newline-delimited JSON index files, JSON data-record files,
// msgpack snapshots, and bbolt files. The development-grade file backends
// load fully into memory on open and rewrite the whole file on flush;
// flushes are debounced, so a burst of mutations coalesces into one write.
package ringdb
