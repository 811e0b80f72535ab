package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	// ErrReadOnly is returned when a write is attempted inside a View transaction.
	ErrReadOnly = errors.New("storage: transaction is read-only")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("storage: database closed")
	// ErrEmptyKey rejects zero-length keys.
	ErrEmptyKey = errors.New("storage: key must not be empty")
)

// Tx is a unit of work against the key-value store. Writes made through a Tx
// become visible to other callers only when the enclosing Update returns nil.
type Tx interface {
	Get(key []byte) ([]byte, bool, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// Iterate visits every key with the supplied prefix in ascending order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Database is a transactional key-value store. Update runs fn inside a single
// writer transaction; any error returned by fn discards every write it made.
type Database interface {
	View(fn func(Tx) error) error
	Update(fn func(Tx) error) error
	Close() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

// View runs fn against a read-only view of the committed data.
func (db *MemDB) View(fn func(Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return fn(&memTx{db: db})
}

// Update serialises writers and applies the buffered writes only when fn
// succeeds.
func (db *MemDB) Update(fn func(Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	tx := &memTx{db: db, writable: true, pending: make(map[string][]byte), deleted: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	for key := range tx.deleted {
		delete(db.data, key)
	}
	for key, value := range tx.pending {
		db.data[key] = value
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

type memTx struct {
	db       *MemDB
	writable bool
	pending  map[string][]byte
	deleted  map[string]struct{}
}

func (tx *memTx) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	if value, ok := tx.pending[string(key)]; ok {
		return bytes.Clone(value), true, nil
	}
	if _, gone := tx.deleted[string(key)]; gone {
		return nil, false, nil
	}
	value, ok := tx.db.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (tx *memTx) Has(key []byte) (bool, error) {
	_, ok, err := tx.Get(key)
	return ok, err
}

func (tx *memTx) Put(key []byte, value []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	delete(tx.deleted, string(key))
	tx.pending[string(key)] = bytes.Clone(value)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	delete(tx.pending, string(key))
	tx.deleted[string(key)] = struct{}{}
	return nil
}

func (tx *memTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	for key, value := range tx.db.data {
		if _, gone := tx.deleted[key]; gone {
			continue
		}
		if bytes.HasPrefix([]byte(key), prefix) {
			merged[key] = value
		}
	}
	for key, value := range tx.pending {
		if bytes.HasPrefix([]byte(key), prefix) {
			merged[key] = value
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := fn([]byte(key), bytes.Clone(merged[key])); err != nil {
			return err
		}
	}
	return nil
}

// --- Persistent DB (LevelDB) ---

// LevelDB is a persistent key-value store using LevelDB transactions.
type LevelDB struct {
	db *leveldb.DB
	mu sync.Mutex
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// View reads from a consistent snapshot.
func (ldb *LevelDB) View(fn func(Tx) error) error {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	defer snap.Release()
	return fn(&levelSnapshotTx{snap: snap})
}

// Update opens a LevelDB transaction and commits it only when fn succeeds.
func (ldb *LevelDB) Update(fn func(Tx) error) error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	if err := fn(&levelTx{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelTx struct {
	tr *leveldb.Transaction
}

func (tx *levelTx) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	value, err := tx.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *levelTx) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	return tx.tr.Has(key, nil)
}

func (tx *levelTx) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return tx.tr.Put(key, value, nil)
}

func (tx *levelTx) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return tx.tr.Delete(key, nil)
}

func (tx *levelTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := tx.tr.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(bytes.Clone(iter.Key()), bytes.Clone(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

type levelSnapshotTx struct {
	snap *leveldb.Snapshot
}

func (tx *levelSnapshotTx) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	value, err := tx.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *levelSnapshotTx) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	return tx.snap.Has(key, nil)
}

func (tx *levelSnapshotTx) Put([]byte, []byte) error { return ErrReadOnly }

func (tx *levelSnapshotTx) Delete([]byte) error { return ErrReadOnly }

func (tx *levelSnapshotTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := tx.snap.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(bytes.Clone(iter.Key()), bytes.Clone(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}
