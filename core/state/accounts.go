package state

import "math"

type storedBalance struct {
	Amount uint64
}

func balanceKey(currency [20]byte, owner [20]byte) []byte {
	return Key(balancePrefix, currency[:], owner[:])
}

// Balance returns the owner's balance in currency and whether the funding
// account exists at all. A zero balance on an existing account is distinct from
// a missing account.
func (m *Manager) Balance(currency [20]byte, owner [20]byte) (uint64, bool, error) {
	var rec storedBalance
	ok, err := m.KVGet(balanceKey(currency, owner), &rec)
	if err != nil || !ok {
		return 0, ok, err
	}
	return rec.Amount, true, nil
}

// SetBalance writes the balance, opening the funding account if needed.
func (m *Manager) SetBalance(currency [20]byte, owner [20]byte, amount uint64) error {
	return m.KVPut(balanceKey(currency, owner), &storedBalance{Amount: amount})
}

// Credit adds amount to the owner's account, opening it if needed.
func (m *Manager) Credit(currency [20]byte, owner [20]byte, amount uint64) error {
	current, _, err := m.Balance(currency, owner)
	if err != nil {
		return err
	}
	if current > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return m.SetBalance(currency, owner, current+amount)
}

// Debit removes amount from the owner's account.
func (m *Manager) Debit(currency [20]byte, owner [20]byte, amount uint64) error {
	current, _, err := m.Balance(currency, owner)
	if err != nil {
		return err
	}
	if current < amount {
		return ErrInsufficientBalance
	}
	return m.SetBalance(currency, owner, current-amount)
}
