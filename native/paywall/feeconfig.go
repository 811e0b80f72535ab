package paywall

import (
	"paywall/core/events"
	"paywall/core/state"
)

// SetFeeConfig upserts the global fee schedule. The caller must belong to the
// configured admin principal set.
func (e *Engine) SetFeeConfig(caller [20]byte, protocolBps, referrerBps uint16, treasury [20]byte) (*FeeConfig, error) {
	if !e.IsAdmin(caller) {
		return nil, ErrAdminMismatch
	}
	if uint32(protocolBps)+uint32(referrerBps) > BasisPoints {
		return nil, ErrFeesTooHigh
	}
	if isZeroAddress(treasury) {
		return nil, ErrInvalidTreasury
	}
	cfg := &FeeConfig{
		ProtocolBps: protocolBps,
		ReferrerBps: referrerBps,
		Treasury:    treasury,
		UpdatedAt:   uint64(e.now()),
	}
	err := e.update(func(t *txn) error {
		exists, err := t.state.KVHas(feeConfigKey())
		if err != nil {
			return err
		}
		if exists {
			err = t.state.KVPut(feeConfigKey(), cfg)
		} else {
			err = t.state.KVCreate(feeConfigKey(), cfg, caller)
		}
		if err != nil {
			return mapStateErr(err)
		}
		t.emit(events.FeeUpdated{ProtocolBps: protocolBps, ReferrerBps: referrerBps, Treasury: treasury})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FeeConfig returns the current fee schedule.
func (e *Engine) FeeConfig() (*FeeConfig, error) {
	var cfg *FeeConfig
	err := e.view(func(t *txn) error {
		var err error
		cfg, err = loadFeeConfig(t.state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFeeConfig(manager *state.Manager) (*FeeConfig, error) {
	var cfg FeeConfig
	ok, err := manager.KVGet(feeConfigKey(), &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFeeConfigMissing
	}
	return &cfg, nil
}
