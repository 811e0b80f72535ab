package paywall

import (
	"errors"
	"testing"

	"paywall/core/events"
)

func TestSetFeeConfigRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SetFeeConfig([20]byte{0x01}, 100, 100, testTreasury); !errors.Is(err, ErrAdminMismatch) {
		t.Fatalf("expected ErrAdminMismatch, got %v", err)
	}
	if Classify(ErrAdminMismatch) != KindAuthorization {
		t.Fatalf("admin mismatch must classify as authorization")
	}
	if _, err := f.engine.FeeConfig(); !errors.Is(err, ErrFeeConfigMissing) {
		t.Fatalf("expected ErrFeeConfigMissing, got %v", err)
	}
}

func TestSetFeeConfigRejectsOversubscription(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SetFeeConfig(testAdmin, 6000, 5000, testTreasury); !errors.Is(err, ErrFeesTooHigh) {
		t.Fatalf("expected ErrFeesTooHigh, got %v", err)
	}
	if _, err := f.engine.SetFeeConfig(testAdmin, 10_000, 0, testTreasury); err != nil {
		t.Fatalf("exactly 10000 bps must be accepted: %v", err)
	}
	if _, err := f.engine.SetFeeConfig(testAdmin, 100, 100, [20]byte{}); !errors.Is(err, ErrInvalidTreasury) {
		t.Fatalf("expected ErrInvalidTreasury, got %v", err)
	}
}

func TestSetFeeConfigUpserts(t *testing.T) {
	f := newFixture(t)
	f.setFees(t, 250, 100)
	f.setFees(t, 250, 100)
	f.setFees(t, 300, 50)
	cfg, err := f.engine.FeeConfig()
	if err != nil {
		t.Fatalf("fee config: %v", err)
	}
	if cfg.ProtocolBps != 300 || cfg.ReferrerBps != 50 || cfg.Treasury != testTreasury {
		t.Fatalf("unexpected config %+v", cfg)
	}
	recorded := f.recorder.Events()
	if len(recorded) != 3 {
		t.Fatalf("expected one FeeUpdated per write, got %d", len(recorded))
	}
	if _, ok := recorded[2].(events.FeeUpdated); !ok {
		t.Fatalf("unexpected event %T", recorded[2])
	}
}
