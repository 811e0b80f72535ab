package server

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"paywall/crypto"
	"paywall/native/bank"
	"paywall/native/paywall"
	"paywall/services/paywalld/index"
)

type createArticleRequest struct {
	Sequence     uint64 `json:"sequence,string"`
	URI          string `json:"uri"`
	PayCurrency  string `json:"payCurrency"`
	Price        uint64 `json:"price,string"`
	RoyaltyBps   uint16 `json:"royaltyBps"`
	Transferable bool   `json:"transferable"`
}

type updatePriceRequest struct {
	Price uint64 `json:"price,string"`
}

type purchaseRequest struct {
	PayCurrency string `json:"payCurrency"`
	Referrer    string `json:"referrer,omitempty"`
}

type setFeesRequest struct {
	ProtocolBps uint16 `json:"protocolBps"`
	ReferrerBps uint16 `json:"referrerBps"`
	Treasury    string `json:"treasury"`
}

type transferCredentialRequest struct {
	To string `json:"to"`
}

type articleResponse struct {
	ID           string `json:"id"`
	Creator      string `json:"creator"`
	Sequence     uint64 `json:"sequence,string"`
	URI          string `json:"uri"`
	PayCurrency  string `json:"payCurrency"`
	Price        uint64 `json:"price,string"`
	RoyaltyBps   uint16 `json:"royaltyBps"`
	Transferable bool   `json:"transferable"`
	Sales        uint64 `json:"sales,string"`
	CreatedAt    uint64 `json:"createdAt"`
}

type splitResponse struct {
	Price         uint64 `json:"price,string"`
	ProtocolFee   uint64 `json:"protocolFee,string"`
	ReferrerFee   uint64 `json:"referrerFee,string"`
	CreatorAmount uint64 `json:"creatorAmount,string"`
}

type receiptResponse struct {
	Article       string `json:"article"`
	Buyer         string `json:"buyer"`
	PaidAmount    uint64 `json:"paidAmount,string"`
	ProtocolFee   uint64 `json:"protocolFee,string"`
	ReferrerFee   uint64 `json:"referrerFee,string"`
	CreatorAmount uint64 `json:"creatorAmount,string"`
	Credential    string `json:"credential"`
	PurchasedAt   uint64 `json:"purchasedAt"`
	Digest        string `json:"digest"`
}

type purchaseResponse struct {
	Receipt  receiptResponse `json:"receipt"`
	Split    splitResponse   `json:"split"`
	Referrer string          `json:"referrer,omitempty"`
	Sales    uint64          `json:"sales,string"`
}

type feeConfigResponse struct {
	ProtocolBps uint16 `json:"protocolBps"`
	ReferrerBps uint16 `json:"referrerBps"`
	Treasury    string `json:"treasury"`
	UpdatedAt   uint64 `json:"updatedAt"`
}

type credentialResponse struct {
	ID           string `json:"id"`
	Article      string `json:"article"`
	Owner        string `json:"owner"`
	Transferable bool   `json:"transferable"`
	Supply       uint64 `json:"supply,string"`
	Minted       bool   `json:"minted"`
}

type indexedArticle struct {
	ID           string    `json:"id"`
	Creator      string    `json:"creator"`
	Sequence     uint64    `json:"sequence,string"`
	URI          string    `json:"uri"`
	PayCurrency  string    `json:"payCurrency"`
	Price        uint64    `json:"price,string"`
	RoyaltyBps   uint16    `json:"royaltyBps"`
	Transferable bool      `json:"transferable"`
	Sales        uint64    `json:"sales,string"`
	CreatedAt    time.Time `json:"createdAt"`
}

type indexedPurchase struct {
	Article       string    `json:"article"`
	Buyer         string    `json:"buyer"`
	Price         uint64    `json:"price,string"`
	ProtocolFee   uint64    `json:"protocolFee,string"`
	ReferrerFee   uint64    `json:"referrerFee,string"`
	CreatorAmount uint64    `json:"creatorAmount,string"`
	Referrer      string    `json:"referrer,omitempty"`
	PurchasedAt   time.Time `json:"purchasedAt"`
}

func articleFrom(a *paywall.Article) articleResponse {
	return articleResponse{
		ID:           crypto.FormatHash(a.ID),
		Creator:      crypto.FormatAccount(a.Creator),
		Sequence:     a.Sequence,
		URI:          a.URI,
		PayCurrency:  crypto.FormatCurrency(a.PayCurrency),
		Price:        a.Price,
		RoyaltyBps:   a.RoyaltyBps,
		Transferable: a.Transferable,
		Sales:        a.Sales,
		CreatedAt:    a.CreatedAt,
	}
}

func splitFrom(s paywall.Split) splitResponse {
	return splitResponse{
		Price:         s.Price,
		ProtocolFee:   s.ProtocolFee,
		ReferrerFee:   s.ReferrerFee,
		CreatorAmount: s.CreatorAmount,
	}
}

func receiptFrom(r *paywall.Receipt) receiptResponse {
	return receiptResponse{
		Article:       crypto.FormatHash(r.Article),
		Buyer:         crypto.FormatAccount(r.Buyer),
		PaidAmount:    r.PaidAmount,
		ProtocolFee:   r.ProtocolFee,
		ReferrerFee:   r.ReferrerFee,
		CreatorAmount: r.CreatorAmount,
		Credential:    crypto.FormatHash(r.Credential),
		PurchasedAt:   r.PurchasedAt,
		Digest:        hex.EncodeToString(r.Digest[:]),
	}
}

func feeConfigFrom(cfg *paywall.FeeConfig) feeConfigResponse {
	return feeConfigResponse{
		ProtocolBps: cfg.ProtocolBps,
		ReferrerBps: cfg.ReferrerBps,
		Treasury:    crypto.FormatAccount(cfg.Treasury),
		UpdatedAt:   cfg.UpdatedAt,
	}
}

func credentialFrom(c *bank.Credential) credentialResponse {
	return credentialResponse{
		ID:           crypto.FormatHash(c.ID),
		Article:      crypto.FormatHash(c.Article),
		Owner:        crypto.FormatAccount(c.Owner),
		Transferable: c.Transferable,
		Supply:       c.Supply,
		Minted:       c.Minted,
	}
}

func indexedArticlesFrom(rows []index.Article) []indexedArticle {
	out := make([]indexedArticle, 0, len(rows))
	for _, row := range rows {
		out = append(out, indexedArticle{
			ID:           row.ID,
			Creator:      row.Creator,
			Sequence:     uint64(row.Sequence),
			URI:          row.URI,
			PayCurrency:  row.PayCurrency,
			Price:        uint64(row.Price),
			RoyaltyBps:   row.RoyaltyBps,
			Transferable: row.Transferable,
			Sales:        uint64(row.Sales),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return out
}

func indexedPurchasesFrom(rows []index.Purchase) []indexedPurchase {
	out := make([]indexedPurchase, 0, len(rows))
	for _, row := range rows {
		out = append(out, indexedPurchase{
			Article:       row.Article,
			Buyer:         row.Buyer,
			Price:         uint64(row.Price),
			ProtocolFee:   uint64(row.ProtocolFee),
			ReferrerFee:   uint64(row.ReferrerFee),
			CreatorAmount: uint64(row.CreatorAmount),
			Referrer:      row.Referrer,
			PurchasedAt:   row.PurchasedAt.UTC(),
		})
	}
	return out
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(crypto.AccountPrefix, strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseCurrency(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(crypto.CurrencyPrefix, strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseID(field, raw string) ([32]byte, error) {
	id, err := crypto.ParseHash(strings.TrimSpace(raw))
	if err != nil {
		return [32]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return id, nil
}

// parseReferrer treats an empty value as no referrer.
func parseReferrer(raw string) (paywall.Referrer, error) {
	if strings.TrimSpace(raw) == "" {
		return paywall.NoReferrer(), nil
	}
	addr, err := parseAccount("referrer", raw)
	if err != nil {
		return paywall.Referrer{}, err
	}
	return paywall.WithReferrer(addr), nil
}
