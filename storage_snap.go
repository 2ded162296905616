package ringdb

import (
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	RegisterStorage("snapshot", func(opt StorageOptions) (Storage, error) {
		return openFileStorage(snapshotFileFormat{}, opt)
	})
}

// snapshotFileFormat is a msgpack stream of alternating key and value
// entries. Binary, compact, not meant to be edited by hand.
type snapshotFileFormat struct{}

func (snapshotFileFormat) load(r io.Reader, put func(key []byte, value string) error) error {
	dec := msgpack.NewDecoder(r)
	for {
		key, err := dec.DecodeBytes()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if err := put(key, value); err != nil {
			return err
		}
	}
}

func (snapshotFileFormat) save(w io.Writer, cur Cursor) error {
	enc := msgpack.NewEncoder(w)
	for cur.Next() {
		if err := enc.EncodeBytes(cur.Key()); err != nil {
			return err
		}
		if err := enc.EncodeString(cur.Value()); err != nil {
			return err
		}
	}
	return nil
}
