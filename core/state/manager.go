package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"paywall/storage"
)

var (
	// ErrRecordExists is returned by KVCreate when the key is already occupied.
	ErrRecordExists = errors.New("state: record already exists")
	// ErrNotRentExempt is returned when the payer cannot back a new record.
	ErrNotRentExempt = errors.New("state: record not rent exempt")
	// ErrBalanceOverflow guards balance credits against wrapping.
	ErrBalanceOverflow = errors.New("state: balance overflow")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// Manager exposes typed record access on top of a single storage transaction.
// A Manager must not outlive the transaction it wraps.
type Manager struct {
	tx   storage.Tx
	rent RentPolicy
}

// NewManager creates a state manager operating on the provided transaction.
func NewManager(tx storage.Tx, rent RentPolicy) *Manager {
	return &Manager{tx: tx, rent: rent}
}

// Rent returns the rent policy applied to record creation.
func (m *Manager) Rent() RentPolicy { return m.rent }

// KVPut stores the RLP encoding of value under key, replacing any prior value.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.tx.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.tx.Get(key)
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether key is occupied.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.tx.Has(key)
}

// KVCreate writes value under key only when the key is free. The payer backs
// the new record according to the rent policy. Existence of the key is the
// uniqueness lock: the second create of the same key fails with
// ErrRecordExists and the caller's transaction is expected to abort.
func (m *Manager) KVCreate(key []byte, value interface{}, payer [20]byte) error {
	exists, err := m.KVHas(key)
	if err != nil {
		return err
	}
	if exists {
		return ErrRecordExists
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	if err := m.chargeRent(payer, len(encoded)); err != nil {
		return err
	}
	return m.tx.Put(key, encoded)
}

// KVIterate passes every raw record under prefix to fn in key order.
func (m *Manager) KVIterate(prefix []byte, fn func(key []byte, raw []byte) error) error {
	return m.tx.Iterate(prefix, fn)
}

// KVDecode decodes a raw record produced by KVIterate.
func KVDecode(raw []byte, out interface{}) error {
	return rlp.DecodeBytes(raw, out)
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.tx.Delete(key)
}
