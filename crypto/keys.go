package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// AccountPrefix is used for creator, buyer, treasury and referrer identities.
	AccountPrefix AddressPrefix = "pw"
	// CurrencyPrefix is used for fungible payment currencies.
	CurrencyPrefix AddressPrefix = "pwc"
)

// AddressLength is the size in bytes of an identity or currency address.
const AddressLength = 20

var (
	errAddressLength = errors.New("address must be 20 bytes long")
	errPrefix        = errors.New("unexpected address prefix")
	errHashLength    = errors.New("hash must be 32 bytes long")
)

// Address represents a 20-byte identity with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress wraps raw bytes into a prefixed address. It panics on malformed
// input since callers always pass fixed-size arrays.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic(errAddressLength)
	}
	var out Address
	out.prefix = prefix
	copy(out.bytes[:], b)
	return out
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte array.
func (a Address) Bytes() [AddressLength]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// DecodeAddress parses any bech32 address regardless of prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, errAddressLength
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAddress decodes the address and requires the expected prefix.
func ParseAddress(expected AddressPrefix, addrStr string) ([AddressLength]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	if addr.prefix != expected {
		return [AddressLength]byte{}, fmt.Errorf("%w: want %s, got %s", errPrefix, expected, addr.prefix)
	}
	return addr.bytes, nil
}

// FormatAccount renders a raw identity with the account prefix.
func FormatAccount(b [AddressLength]byte) string {
	return NewAddress(AccountPrefix, b[:]).String()
}

// FormatCurrency renders a raw currency id with the currency prefix.
func FormatCurrency(b [AddressLength]byte) string {
	return NewAddress(CurrencyPrefix, b[:]).String()
}

// Keccak256Hash returns the Keccak-256 digest of the concatenated parts.
func Keccak256Hash(parts ...[]byte) [32]byte {
	return [32]byte(crypto.Keccak256Hash(parts...))
}

// FormatHash renders a 32-byte derived key as 0x-prefixed hex.
func FormatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash accepts 0x-prefixed or bare hex.
func ParseHash(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("decode hash: %w", err)
	}
	if len(decoded) != len(out) {
		return out, errHashLength
	}
	copy(out[:], decoded)
	return out, nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account identity controlled by the key.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
