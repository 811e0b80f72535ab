package bank

import (
	"errors"

	"paywall/core/state"
)

var credentialPrefix = []byte("bank/credential/")

// Credential is a single-unit, zero-decimal token proving access to an
// article. Its id doubles as its mint authority key.
type Credential struct {
	ID           [32]byte
	Article      [32]byte
	Owner        [20]byte
	Transferable bool
	Supply       uint64
	Decimals     uint8
	Minted       bool
}

// Frozen reports whether the credential is bound to its holder.
func (c *Credential) Frozen() bool { return c != nil && !c.Transferable }

func credentialKey(id [32]byte) []byte {
	return state.Key(credentialPrefix, id[:])
}

// MintCapability authorises exactly one mint of one credential. It carries no
// exported state and cannot be serialised.
type MintCapability struct {
	key   [32]byte
	spent bool
}

// NewMintCapability derives a capability for the credential whose authority key
// is key.
func NewMintCapability(key [32]byte) *MintCapability {
	return &MintCapability{key: key}
}

// Spent reports whether the capability has been used.
func (c *MintCapability) Spent() bool { return c == nil || c.spent }

// MarshalJSON refuses to expose the capability.
func (c *MintCapability) MarshalJSON() ([]byte, error) {
	return nil, errors.New("bank: mint capability is not serialisable")
}

// MarshalText refuses to expose the capability.
func (c *MintCapability) MarshalText() ([]byte, error) {
	return nil, errors.New("bank: mint capability is not serialisable")
}

// CreateCredentialMint registers an unminted credential with supply one. The
// payer backs the record under the active rent policy.
func (l *Ledger) CreateCredentialMint(id, article [32]byte, transferable bool, payer [20]byte) (*Credential, error) {
	cred := &Credential{ID: id, Article: article, Transferable: transferable, Supply: 1}
	if err := l.state.KVCreate(credentialKey(id), cred, payer); err != nil {
		if errors.Is(err, state.ErrRecordExists) {
			return nil, ErrCredentialExists
		}
		return nil, err
	}
	return cred, nil
}

// Credential loads a credential by id.
func (l *Ledger) Credential(id [32]byte) (*Credential, error) {
	var cred Credential
	ok, err := l.state.KVGet(credentialKey(id), &cred)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &cred, nil
}

// Mint issues amount units of the credential to the recipient. Only a single
// unit can ever exist and the capability is spent on success.
func (l *Ledger) Mint(id [32]byte, to [20]byte, amount uint64, capability *MintCapability) error {
	if capability == nil || capability.key != id {
		return ErrCapabilityMismatch
	}
	if capability.spent {
		return ErrCapabilitySpent
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	cred, err := l.Credential(id)
	if err != nil {
		return err
	}
	if cred.Minted || amount != cred.Supply {
		return ErrSupplyExhausted
	}
	cred.Owner = to
	cred.Minted = true
	if err := l.state.KVPut(credentialKey(id), cred); err != nil {
		return err
	}
	capability.spent = true
	return nil
}

// TransferCredential moves a minted credential to a new holder. Frozen
// credentials never move.
func (l *Ledger) TransferCredential(caller [20]byte, id [32]byte, to [20]byte) (*Credential, error) {
	cred, err := l.Credential(id)
	if err != nil {
		return nil, err
	}
	if !cred.Minted || cred.Owner != caller {
		return nil, ErrNotOwner
	}
	if cred.Frozen() {
		return nil, ErrTransferBlocked
	}
	cred.Owner = to
	if err := l.state.KVPut(credentialKey(id), cred); err != nil {
		return nil, err
	}
	return cred, nil
}
