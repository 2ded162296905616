package ringdb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

func init() {
	RegisterStorage("index", func(opt StorageOptions) (Storage, error) {
		return openFileStorage(indexFileFormat{}, opt)
	})
}

// fileFormat is the serialization of one development-grade file backend.
type fileFormat interface {
	load(r io.Reader, put func(key []byte, value string) error) error
	save(w io.Writer, cur Cursor) error
}

// fileStorage is the common shape of the file-backed backends: the entire
// file is loaded into memory on open and rewritten on flush.
type fileStorage struct {
	*memStorage
	path   string
	format fileFormat
	logger *zap.Logger
}

func openFileStorage(format fileFormat, opt StorageOptions) (*fileStorage, error) {
	if opt.Path == "" {
		return nil, fmt.Errorf("ringdb: file storage requires a path")
	}
	fs := &fileStorage{
		memStorage: newMemStorage(),
		path:       opt.Path,
		format:     format,
		logger:     opt.logger(),
	}
	if err := fs.load(opt); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *fileStorage) load(opt StorageOptions) error {
	f, err := os.Open(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ringdb: opening %s: %w", fs.path, err)
	}
	defer f.Close()

	err = fs.format.load(bufio.NewReader(f), func(key []byte, value string) error {
		if opt.CheckKey != nil {
			if err := opt.CheckKey(key); err != nil {
				return err
			}
		}
		if _, exists := fs.Get(key); exists {
			return fmt.Errorf("duplicate key %s", hexstr(key))
		}
		fs.Put(key, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ringdb: loading %s: %w", fs.path, err)
	}
	fs.logger.Debug("storage loaded", zap.String("path", fs.path), zap.Int("records", fs.Len()))
	return nil
}

// Flush rewrites the whole file. The write goes to a temp file first and is
// moved into place, so a crash mid-flush keeps the previous contents.
func (fs *fileStorage) Flush() error {
	tmp := fs.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("ringdb: flushing %s: %w", fs.path, err)
	}
	w := bufio.NewWriter(f)
	if err := fs.format.save(w, fs.Scan(nil, nil)); err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ringdb: flushing %s: %w", fs.path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ringdb: flushing %s: %w", fs.path, err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ringdb: flushing %s: %w", fs.path, err)
	}
	fs.logger.Debug("storage flushed", zap.String("path", fs.path), zap.Int("records", fs.Len()))
	return nil
}

// indexFileFormat is newline-delimited JSON: each line is [key] or
// [key, value] with the key spelled as an array of byte values.
type indexFileFormat struct{}

func (indexFileFormat) load(r io.Reader, put func(key []byte, value string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var row []json.RawMessage
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
		if len(row) < 1 || len(row) > 2 {
			return fmt.Errorf("line %d: expected [key] or [key, value], got %d elements", lineno, len(row))
		}
		var ints []uint16
		if err := json.Unmarshal(row[0], &ints); err != nil {
			return fmt.Errorf("line %d: bad key: %w", lineno, err)
		}
		key := make([]byte, len(ints))
		for i, v := range ints {
			if v > 0xFF {
				return fmt.Errorf("line %d: key byte %d out of range", lineno, v)
			}
			key[i] = byte(v)
		}
		var value string
		if len(row) == 2 {
			if err := json.Unmarshal(row[1], &value); err != nil {
				return fmt.Errorf("line %d: bad value: %w", lineno, err)
			}
		}
		if err := put(key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	return sc.Err()
}

func (indexFileFormat) save(w io.Writer, cur Cursor) error {
	for cur.Next() {
		key := cur.Key()
		ints := make([]uint16, len(key))
		for i, b := range key {
			ints[i] = uint16(b)
		}
		var row []any
		if value := cur.Value(); value != "" {
			row = []any{ints, value}
		} else {
			row = []any{ints}
		}
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}
