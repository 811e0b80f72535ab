package events

import (
	"strconv"

	"paywall/core/types"
	"paywall/crypto"
)

const (
	TypeArticleCreated         = "paywall.article.created"
	TypeArticleUpdated         = "paywall.article.updated"
	TypeFeeUpdated             = "paywall.fee.updated"
	TypePurchased              = "paywall.purchased"
	TypeAccessCredentialMinted = "paywall.credential.minted"
	TypeCredentialTransferred  = "paywall.credential.transferred"
)

// ArticleCreated carries every field of a newly listed article.
type ArticleCreated struct {
	Article      [32]byte
	Creator      [20]byte
	Sequence     uint64
	URI          string
	PayCurrency  [20]byte
	Price        uint64
	RoyaltyBps   uint16
	Transferable bool
}

// EventType satisfies the events.Event interface.
func (ArticleCreated) EventType() string { return TypeArticleCreated }

func (e ArticleCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeArticleCreated,
		Attributes: map[string]string{
			"article":      crypto.FormatHash(e.Article),
			"creator":      crypto.FormatAccount(e.Creator),
			"sequence":     strconv.FormatUint(e.Sequence, 10),
			"uri":          e.URI,
			"payCurrency":  crypto.FormatCurrency(e.PayCurrency),
			"price":        strconv.FormatUint(e.Price, 10),
			"royaltyBps":   strconv.FormatUint(uint64(e.RoyaltyBps), 10),
			"transferable": strconv.FormatBool(e.Transferable),
		},
	}
}

// ArticleUpdated is emitted when a creator reprices an article.
type ArticleUpdated struct {
	Article [32]byte
	Price   uint64
}

// EventType satisfies the events.Event interface.
func (ArticleUpdated) EventType() string { return TypeArticleUpdated }

func (e ArticleUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeArticleUpdated,
		Attributes: map[string]string{
			"article": crypto.FormatHash(e.Article),
			"price":   strconv.FormatUint(e.Price, 10),
		},
	}
}

// FeeUpdated is emitted on every fee schedule upsert.
type FeeUpdated struct {
	ProtocolBps uint16
	ReferrerBps uint16
	Treasury    [20]byte
}

// EventType satisfies the events.Event interface.
func (FeeUpdated) EventType() string { return TypeFeeUpdated }

func (e FeeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeUpdated,
		Attributes: map[string]string{
			"protocolBps": strconv.FormatUint(uint64(e.ProtocolBps), 10),
			"referrerBps": strconv.FormatUint(uint64(e.ReferrerBps), 10),
			"treasury":    crypto.FormatAccount(e.Treasury),
		},
	}
}

// Purchased records the full numeric breakdown of a settlement. Referrer is
// only rendered when HasReferrer is set.
type Purchased struct {
	Article       [32]byte
	Buyer         [20]byte
	Price         uint64
	ProtocolFee   uint64
	ReferrerFee   uint64
	CreatorAmount uint64
	Referrer      [20]byte
	HasReferrer   bool
	PurchasedAt   int64
}

// EventType satisfies the events.Event interface.
func (Purchased) EventType() string { return TypePurchased }

func (e Purchased) Event() *types.Event {
	attrs := map[string]string{
		"article":       crypto.FormatHash(e.Article),
		"buyer":         crypto.FormatAccount(e.Buyer),
		"price":         strconv.FormatUint(e.Price, 10),
		"protocolFee":   strconv.FormatUint(e.ProtocolFee, 10),
		"referrerFee":   strconv.FormatUint(e.ReferrerFee, 10),
		"creatorAmount": strconv.FormatUint(e.CreatorAmount, 10),
		"purchasedAt":   strconv.FormatInt(e.PurchasedAt, 10),
	}
	if e.HasReferrer {
		attrs["referrer"] = crypto.FormatAccount(e.Referrer)
	}
	return &types.Event{Type: TypePurchased, Attributes: attrs}
}

// AccessCredentialMinted is emitted alongside Purchased.
type AccessCredentialMinted struct {
	Article      [32]byte
	Buyer        [20]byte
	Credential   [32]byte
	Transferable bool
}

// EventType satisfies the events.Event interface.
func (AccessCredentialMinted) EventType() string { return TypeAccessCredentialMinted }

func (e AccessCredentialMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeAccessCredentialMinted,
		Attributes: map[string]string{
			"article":      crypto.FormatHash(e.Article),
			"buyer":        crypto.FormatAccount(e.Buyer),
			"credential":   crypto.FormatHash(e.Credential),
			"transferable": strconv.FormatBool(e.Transferable),
		},
	}
}

// CredentialTransferred is emitted when a transferable credential changes hands.
type CredentialTransferred struct {
	Credential [32]byte
	From       [20]byte
	To         [20]byte
}

// EventType satisfies the events.Event interface.
func (CredentialTransferred) EventType() string { return TypeCredentialTransferred }

func (e CredentialTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeCredentialTransferred,
		Attributes: map[string]string{
			"credential": crypto.FormatHash(e.Credential),
			"from":       crypto.FormatAccount(e.From),
			"to":         crypto.FormatAccount(e.To),
		},
	}
}
