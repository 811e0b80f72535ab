package paywall

import (
	"encoding/hex"
	"errors"
	"fmt"

	"paywall/core/state"
)

var errStopIteration = errors.New("paywall: stop iteration")

// TokenStandard identifies how a credential should be presented by metadata
// registries.
type TokenStandard uint8

const (
	StandardNonFungible TokenStandard = iota
	// StandardNonFungibleEdition marks soulbound credentials.
	StandardNonFungibleEdition
)

func (s TokenStandard) String() string {
	switch s {
	case StandardNonFungibleEdition:
		return "non_fungible_edition"
	default:
		return "non_fungible"
	}
}

// MetadataIntent is a deferred display-metadata registration for a minted
// credential. Intents are written in the purchase transaction and drained by
// a registrar outside of it.
type MetadataIntent struct {
	Credential [32]byte
	Article    [32]byte
	Owner      [20]byte
	Creator    [20]byte
	Name       string
	URI        string
	Standard   TokenStandard
	CreatedAt  uint64
}

// CredentialName returns the display name of the credential for article.
func CredentialName(article [32]byte) string {
	return fmt.Sprintf("Access to Article #%s", hex.EncodeToString(article[:4]))
}

// CredentialURI returns the metadata locator of the credential for article.
func CredentialURI(articleURI string) string {
	return articleURI + "?access_token=true"
}

func enqueueMetadata(t *txn, article *Article, owner [20]byte, credential [32]byte, now uint64) error {
	standard := StandardNonFungible
	if !article.Transferable {
		standard = StandardNonFungibleEdition
	}
	intent := &MetadataIntent{
		Credential: credential,
		Article:    article.ID,
		Owner:      owner,
		Creator:    article.Creator,
		Name:       CredentialName(article.ID),
		URI:        CredentialURI(article.URI),
		Standard:   standard,
		CreatedAt:  now,
	}
	return t.state.KVPut(metadataKey(credential), intent)
}

// PendingMetadata returns up to limit undelivered intents in key order. A
// non-positive limit returns all of them.
func (e *Engine) PendingMetadata(limit int) ([]MetadataIntent, error) {
	var out []MetadataIntent
	err := e.view(func(t *txn) error {
		return t.state.KVIterate(metadataPrefix, func(_ []byte, raw []byte) error {
			var intent MetadataIntent
			if err := state.KVDecode(raw, &intent); err != nil {
				return err
			}
			out = append(out, intent)
			if limit > 0 && len(out) >= limit {
				return errStopIteration
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return out, nil
}

// MarkMetadataRegistered removes a delivered intent from the outbox.
func (e *Engine) MarkMetadataRegistered(credential [32]byte) error {
	return e.update(func(t *txn) error {
		return t.state.KVDelete(metadataKey(credential))
	})
}
