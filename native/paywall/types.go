package paywall

import (
	"bytes"
	"encoding/binary"

	"lukechampine.com/blake3"
)

const (
	// MaxURILength bounds the encrypted content locator in bytes.
	MaxURILength = 200
	// BasisPoints is the denominator for every fee and royalty ratio.
	BasisPoints = 10_000
)

// Article is a purchasable content listing.
type Article struct {
	ID           [32]byte
	Creator      [20]byte
	Sequence     uint64
	URI          string
	PayCurrency  [20]byte
	Price        uint64
	RoyaltyBps   uint16
	Transferable bool
	Sales        uint64
	CreatedAt    uint64
}

// NewArticle carries the creator supplied fields of a listing.
type NewArticle struct {
	Sequence     uint64
	URI          string
	PayCurrency  [20]byte
	Price        uint64
	RoyaltyBps   uint16
	Transferable bool
}

// Receipt is the immutable proof of purchase. Its storage address doubles as
// the per-(article, buyer) purchase lock.
type Receipt struct {
	Article       [32]byte
	Buyer         [20]byte
	PaidAmount    uint64
	ProtocolFee   uint64
	ReferrerFee   uint64
	CreatorAmount uint64
	Credential    [32]byte
	PurchasedAt   uint64
	Digest        [32]byte
}

func (r *Receipt) canonicalHash() [32]byte {
	buf := bytes.NewBuffer(make([]byte, 0, 160))
	buf.WriteString(seedReceipt)
	buf.Write(r.Article[:])
	buf.Write(r.Buyer[:])
	var word [8]byte
	for _, v := range []uint64{r.PaidAmount, r.ProtocolFee, r.ReferrerFee, r.CreatorAmount} {
		binary.BigEndian.PutUint64(word[:], v)
		buf.Write(word[:])
	}
	buf.Write(r.Credential[:])
	binary.BigEndian.PutUint64(word[:], r.PurchasedAt)
	buf.Write(word[:])
	return blake3.Sum256(buf.Bytes())
}

// Seal stamps the receipt digest.
func (r *Receipt) Seal() { r.Digest = r.canonicalHash() }

// Verify reports whether the stored digest matches the receipt fields.
func (r *Receipt) Verify() bool {
	return r != nil && r.Digest == r.canonicalHash()
}

// FeeConfig is the global fee schedule.
type FeeConfig struct {
	ProtocolBps uint16
	ReferrerBps uint16
	Treasury    [20]byte
	UpdatedAt   uint64
}

// Referrer is an optional third-party payee. The zero value means absent.
type Referrer struct {
	Address [20]byte
	Present bool
}

// WithReferrer returns a present referrer.
func WithReferrer(addr [20]byte) Referrer {
	return Referrer{Address: addr, Present: true}
}

// NoReferrer returns an absent referrer.
func NoReferrer() Referrer { return Referrer{} }

// PurchaseRequest describes a buyer's attempt to buy an article.
type PurchaseRequest struct {
	Article     [32]byte
	Buyer       [20]byte
	PayCurrency [20]byte
	Referrer    Referrer
}

// Split is the fee breakdown of a price.
type Split struct {
	Price         uint64
	ProtocolFee   uint64
	ReferrerFee   uint64
	CreatorAmount uint64
}

// PurchaseResult summarises a settled purchase.
type PurchaseResult struct {
	Receipt    *Receipt
	Split      Split
	Credential [32]byte
	Referrer   Referrer
	Sales      uint64
}
