package storage

import (
	"bytes"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// BoltDB is the default persistent store. bbolt allows a single writer at a
// time, which gives Update the serialisation the settlement engine relies on.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (and migrates) the bbolt file at path.
func NewBoltDB(path string, options *bolt.Options) (*BoltDB, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// View runs fn inside a read-only bbolt transaction.
func (b *BoltDB) View(fn func(Tx) error) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketRecords)})
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// Update runs fn inside a read-write bbolt transaction. bbolt rolls the
// transaction back when fn returns an error.
func (b *BoltDB) Update(fn func(Tx) error) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketRecords), writable: true})
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// Close releases the underlying Bolt database handle.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltTx struct {
	bucket   *bolt.Bucket
	writable bool
}

func (tx *boltTx) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	raw := tx.bucket.Get(key)
	if raw == nil {
		return nil, false, nil
	}
	// bbolt memory is only valid for the life of the transaction.
	return bytes.Clone(raw), true, nil
}

func (tx *boltTx) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	return tx.bucket.Get(key) != nil, nil
}

func (tx *boltTx) Put(key []byte, value []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return tx.bucket.Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return tx.bucket.Delete(key)
}

func (tx *boltTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	c := tx.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(bytes.Clone(k), bytes.Clone(v)); err != nil {
			return err
		}
	}
	return nil
}
