package crypto

import (
	"strings"
	"testing"
)

func TestAccountAddressRoundTrip(t *testing.T) {
	var raw [AddressLength]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	encoded := FormatAccount(raw)
	if !strings.HasPrefix(encoded, "pw1") {
		t.Fatalf("expected pw1 prefix, got %s", encoded)
	}
	decoded, err := ParseAddress(AccountPrefix, encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != raw {
		t.Fatalf("round trip mismatch: %x != %x", decoded, raw)
	}
}

func TestParseAddressRejectsWrongPrefix(t *testing.T) {
	var raw [AddressLength]byte
	raw[0] = 0xAA
	if _, err := ParseAddress(AccountPrefix, FormatCurrency(raw)); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := Keccak256Hash([]byte("article"), []byte{1, 2, 3})
	parsed, err := ParseHash(FormatHash(h))
	if err != nil {
		t.Fatalf("parse hash: %v", err)
	}
	if parsed != h {
		t.Fatalf("hash mismatch")
	}
	if _, err := ParseHash("0x1234"); err == nil {
		t.Fatalf("expected short hash to fail")
	}
}

func TestGeneratedKeyHasAccountPrefix(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %s", addr.Prefix())
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatalf("restored key derives a different address")
	}
}
