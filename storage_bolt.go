package ringdb

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

func init() {
	RegisterStorage("bolt", openBoltStorage)
}

var boltDataBucket = []byte("data")

// boltStorage keeps the working set in memory like the other file backends
// and uses a bbolt file as the durable medium: the bucket is read fully on
// open and rewritten in a single transaction on flush.
type boltStorage struct {
	*memStorage
	path   string
	bdb    *bbolt.DB
	logger *zap.Logger
}

func openBoltStorage(opt StorageOptions) (Storage, error) {
	if opt.Path == "" {
		return nil, fmt.Errorf("ringdb: bolt storage requires a path")
	}
	bdb, err := bbolt.Open(opt.Path, 0666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ringdb: opening %s: %w", opt.Path, err)
	}

	s := &boltStorage{
		memStorage: newMemStorage(),
		path:       opt.Path,
		bdb:        bdb,
		logger:     opt.logger(),
	}
	err = bdb.View(func(btx *bbolt.Tx) error {
		buck := btx.Bucket(boltDataBucket)
		if buck == nil {
			return nil
		}
		return buck.ForEach(func(k, v []byte) error {
			if opt.CheckKey != nil {
				if err := opt.CheckKey(k); err != nil {
					return err
				}
			}
			s.Put(k, string(v))
			return nil
		})
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("ringdb: loading %s: %w", opt.Path, err)
	}
	s.logger.Debug("storage loaded", zap.String("path", opt.Path), zap.Int("records", s.Len()))
	return s, nil
}

func (s *boltStorage) Flush() error {
	err := s.bdb.Update(func(btx *bbolt.Tx) error {
		if btx.Bucket(boltDataBucket) != nil {
			if err := btx.DeleteBucket(boltDataBucket); err != nil {
				return err
			}
		}
		buck, err := btx.CreateBucket(boltDataBucket)
		if err != nil {
			return err
		}
		for cur := s.Scan(nil, nil); cur.Next(); {
			if err := buck.Put(cur.Key(), []byte(cur.Value())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ringdb: flushing %s: %w", s.path, err)
	}
	s.logger.Debug("storage flushed", zap.String("path", s.path), zap.Int("records", s.Len()))
	return nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}
