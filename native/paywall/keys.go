package paywall

import (
	"encoding/binary"

	"paywall/core/state"
	"paywall/crypto"
)

const (
	seedArticle    = "article"
	seedReceipt    = "receipt"
	seedFeeConfig  = "fee_config"
	seedCredential = "access_token"
)

var (
	articlePrefix  = []byte("paywall/article/")
	receiptPrefix  = []byte("paywall/receipt/")
	feePrefix      = []byte("paywall/fee/")
	metadataPrefix = []byte("paywall/metadata/pending/")
)

// ArticleAddress derives the address of the creator's article with the given
// sequence number.
func ArticleAddress(creator [20]byte, sequence uint64) [32]byte {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], sequence)
	return crypto.Keccak256Hash([]byte(seedArticle), creator[:], seq[:])
}

// ReceiptAddress derives the receipt address for an (article, buyer) pair.
func ReceiptAddress(article [32]byte, buyer [20]byte) [32]byte {
	return crypto.Keccak256Hash([]byte(seedReceipt), article[:], buyer[:])
}

// FeeConfigAddress returns the singleton fee schedule address.
func FeeConfigAddress() [32]byte {
	return crypto.Keccak256Hash([]byte(seedFeeConfig))
}

// CredentialAddress derives the mint authority for the credential granted on
// an (article, buyer) purchase. The credential id equals this key.
func CredentialAddress(article [32]byte, buyer [20]byte) [32]byte {
	return crypto.Keccak256Hash([]byte(seedCredential), article[:], buyer[:])
}

func articleKey(id [32]byte) []byte { return state.Key(articlePrefix, id[:]) }

func receiptKey(id [32]byte) []byte { return state.Key(receiptPrefix, id[:]) }

func metadataKey(id [32]byte) []byte { return state.Key(metadataPrefix, id[:]) }

func feeConfigKey() []byte {
	id := FeeConfigAddress()
	return state.Key(feePrefix, id[:])
}
