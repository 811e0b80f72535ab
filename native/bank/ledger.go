package bank

import (
	"errors"
	"fmt"

	"paywall/core/state"
)

var (
	// ErrUnauthorized is returned when the authority does not control the
	// debited account.
	ErrUnauthorized = errors.New("bank: authority does not control source account")
	// ErrInsufficientFunds is returned when the source cannot cover a transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrZeroAmount rejects zero-value movements; callers skip them instead.
	ErrZeroAmount = errors.New("bank: amount must be positive")
	// ErrCredentialExists is returned when a credential mint is created twice.
	ErrCredentialExists = errors.New("bank: credential already exists")
	// ErrCredentialNotFound is returned for unknown credential ids.
	ErrCredentialNotFound = errors.New("bank: credential not found")
	// ErrCapabilityMismatch is returned when a capability targets another mint.
	ErrCapabilityMismatch = errors.New("bank: capability does not match credential authority")
	// ErrCapabilitySpent is returned when a capability is reused.
	ErrCapabilitySpent = errors.New("bank: capability already spent")
	// ErrSupplyExhausted is returned when a single-unit credential is minted twice.
	ErrSupplyExhausted = errors.New("bank: credential supply exhausted")
	// ErrTransferBlocked is returned when a frozen credential is moved.
	ErrTransferBlocked = errors.New("bank: credential is transfer blocked")
	// ErrNotOwner is returned when the caller does not hold the credential.
	ErrNotOwner = errors.New("bank: caller does not own credential")
)

// Ledger moves fungible balances and single-unit access credentials inside a
// state transaction.
type Ledger struct {
	state *state.Manager
}

// NewLedger binds a ledger to the supplied state manager.
func NewLedger(manager *state.Manager) *Ledger {
	return &Ledger{state: manager}
}

// HasAccount reports whether owner holds a funding account in currency.
func (l *Ledger) HasAccount(currency [20]byte, owner [20]byte) (bool, error) {
	_, ok, err := l.state.Balance(currency, owner)
	return ok, err
}

// Balance returns the owner's balance in currency.
func (l *Ledger) Balance(currency [20]byte, owner [20]byte) (uint64, error) {
	amount, _, err := l.state.Balance(currency, owner)
	return amount, err
}

// Fund credits an account directly. It is used by operator tooling to seed
// development balances and never by settlement.
func (l *Ledger) Fund(currency [20]byte, owner [20]byte, amount uint64) error {
	if amount == 0 {
		_, exists, err := l.state.Balance(currency, owner)
		if err != nil || exists {
			return err
		}
		return l.state.SetBalance(currency, owner, 0)
	}
	return l.state.Credit(currency, owner, amount)
}

// Transfer moves amount of currency from one account to another. The authority
// must be the owner of the source account.
func (l *Ledger) Transfer(from, to, currency [20]byte, amount uint64, authority [20]byte) error {
	if authority != from {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if err := l.state.Debit(currency, from, amount); err != nil {
		if errors.Is(err, state.ErrInsufficientBalance) {
			return ErrInsufficientFunds
		}
		return err
	}
	if err := l.state.Credit(currency, to, amount); err != nil {
		return fmt.Errorf("bank: credit recipient: %w", err)
	}
	return nil
}
