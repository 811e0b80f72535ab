package state

import (
	"errors"

	"github.com/holiman/uint256"
)

// RecordOverhead approximates the per-record bookkeeping cost in bytes.
const RecordOverhead = 128

// RentPolicy prices the storage backing every created record must carry.
// A zero PerByte disables rent.
type RentPolicy struct {
	PerByte  uint64
	Currency [20]byte
	Reserve  [20]byte
}

// Enabled reports whether records must be backed.
func (p RentPolicy) Enabled() bool { return p.PerByte > 0 }

// Required returns the deposit for a record of the given encoded size.
func (p RentPolicy) Required(size int) (uint64, error) {
	if !p.Enabled() || size < 0 {
		return 0, nil
	}
	deposit := new(uint256.Int).Mul(uint256.NewInt(uint64(size)+RecordOverhead), uint256.NewInt(p.PerByte))
	if !deposit.IsUint64() {
		return 0, ErrBalanceOverflow
	}
	return deposit.Uint64(), nil
}

func (m *Manager) chargeRent(payer [20]byte, size int) error {
	deposit, err := m.rent.Required(size)
	if err != nil {
		return err
	}
	if deposit == 0 {
		return nil
	}
	if err := m.Debit(m.rent.Currency, payer, deposit); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return ErrNotRentExempt
		}
		return err
	}
	return m.Credit(m.rent.Currency, m.rent.Reserve, deposit)
}
