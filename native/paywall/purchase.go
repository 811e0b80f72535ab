package paywall

import (
	"errors"

	"paywall/core/events"
	"paywall/core/state"
	"paywall/native/bank"
)

func validateReferrer(req PurchaseRequest) error {
	if !req.Referrer.Present {
		return nil
	}
	if isZeroAddress(req.Referrer.Address) || req.Referrer.Address == req.Buyer {
		return ErrInvalidReferrer
	}
	return nil
}

// quote computes the split for a purchase inside an open transaction. The
// referrer share is only paid when the referrer holds a funding account in the
// article's currency.
func quote(t *txn, article *Article, referrer Referrer) (Split, *FeeConfig, bool, error) {
	cfg, err := loadFeeConfig(t.state)
	if err != nil {
		return Split{}, nil, false, err
	}
	payReferrer := false
	if referrer.Present {
		payReferrer, err = t.ledger.HasAccount(article.PayCurrency, referrer.Address)
		if err != nil {
			return Split{}, nil, false, err
		}
	}
	split, err := ComputeSplit(article.Price, *cfg, payReferrer)
	if err != nil {
		return Split{}, nil, false, err
	}
	return split, cfg, payReferrer, nil
}

// Quote previews the split of a purchase without side effects.
func (e *Engine) Quote(articleID [32]byte, referrer Referrer) (Split, error) {
	if referrer.Present && isZeroAddress(referrer.Address) {
		return Split{}, ErrInvalidReferrer
	}
	var split Split
	err := e.view(func(t *txn) error {
		article, err := loadArticle(t.state, articleID)
		if err != nil {
			return err
		}
		split, _, _, err = quote(t, article, referrer)
		return err
	})
	return split, err
}

// Purchase settles a buyer's purchase of an article. Payment split, receipt,
// sales counter and credential mint commit together or not at all.
func (e *Engine) Purchase(req PurchaseRequest) (*PurchaseResult, error) {
	result, err := e.purchase(req)
	if err != nil {
		e.observer.PurchaseRejected(Classify(err))
		return nil, err
	}
	e.observer.PurchaseSettled(result.Split)
	return result, nil
}

func (e *Engine) purchase(req PurchaseRequest) (*PurchaseResult, error) {
	if err := validateReferrer(req); err != nil {
		return nil, err
	}
	var result *PurchaseResult
	err := e.update(func(t *txn) error {
		article, err := loadArticle(t.state, req.Article)
		if err != nil {
			return err
		}
		if req.PayCurrency != article.PayCurrency {
			return ErrInvalidPaymentMint
		}
		receiptID := ReceiptAddress(article.ID, req.Buyer)
		taken, err := t.state.KVHas(receiptKey(receiptID))
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyPurchased
		}
		split, cfg, payReferrer, err := quote(t, article, req.Referrer)
		if err != nil {
			return err
		}
		balance, err := t.ledger.Balance(article.PayCurrency, req.Buyer)
		if err != nil {
			return err
		}
		if balance < split.Price {
			return ErrInsufficientPayment
		}

		if err := e.pay(t, req.Buyer, article.Creator, article.PayCurrency, split.CreatorAmount); err != nil {
			return err
		}
		if err := e.pay(t, req.Buyer, cfg.Treasury, article.PayCurrency, split.ProtocolFee); err != nil {
			return err
		}
		if payReferrer {
			if err := e.pay(t, req.Buyer, req.Referrer.Address, article.PayCurrency, split.ReferrerFee); err != nil {
				return err
			}
		}

		credentialID := CredentialAddress(article.ID, req.Buyer)
		receipt := &Receipt{
			Article:       article.ID,
			Buyer:         req.Buyer,
			PaidAmount:    split.Price,
			ProtocolFee:   split.ProtocolFee,
			ReferrerFee:   split.ReferrerFee,
			CreatorAmount: split.CreatorAmount,
			Credential:    credentialID,
			PurchasedAt:   uint64(e.now()),
		}
		receipt.Seal()
		if err := t.state.KVCreate(receiptKey(receiptID), receipt, req.Buyer); err != nil {
			if errors.Is(err, state.ErrRecordExists) {
				return ErrAlreadyPurchased
			}
			return mapStateErr(err)
		}

		if article.Sales == ^uint64(0) {
			return ErrOverflow
		}
		article.Sales++
		if err := t.state.KVPut(articleKey(article.ID), article); err != nil {
			return err
		}

		if _, err := t.ledger.CreateCredentialMint(credentialID, article.ID, article.Transferable, req.Buyer); err != nil {
			return mapStateErr(err)
		}
		capability := bank.NewMintCapability(credentialID)
		if err := t.ledger.Mint(credentialID, req.Buyer, 1, capability); err != nil {
			return mapStateErr(err)
		}
		if err := enqueueMetadata(t, article, req.Buyer, credentialID, receipt.PurchasedAt); err != nil {
			return err
		}

		t.emit(events.Purchased{
			Article:       article.ID,
			Buyer:         req.Buyer,
			Price:         split.Price,
			ProtocolFee:   split.ProtocolFee,
			ReferrerFee:   split.ReferrerFee,
			CreatorAmount: split.CreatorAmount,
			Referrer:      req.Referrer.Address,
			HasReferrer:   req.Referrer.Present,
			PurchasedAt:   int64(receipt.PurchasedAt),
		})
		t.emit(events.AccessCredentialMinted{
			Article:      article.ID,
			Buyer:        req.Buyer,
			Credential:   credentialID,
			Transferable: article.Transferable,
		})
		result = &PurchaseResult{
			Receipt:    receipt,
			Split:      split,
			Credential: credentialID,
			Referrer:   req.Referrer,
			Sales:      article.Sales,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pay moves amount from the buyer. Zero amounts issue no transfer, including
// the creator leg when the protocol fee takes the whole price; the ledger
// rejects zero-value transfers.
func (e *Engine) pay(t *txn, buyer, to, currency [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return mapStateErr(t.ledger.Transfer(buyer, to, currency, amount, buyer))
}

// Receipt returns the stored receipt for an (article, buyer) pair after
// checking its digest.
func (e *Engine) Receipt(article [32]byte, buyer [20]byte) (*Receipt, error) {
	var receipt Receipt
	err := e.view(func(t *txn) error {
		ok, err := t.state.KVGet(receiptKey(ReceiptAddress(article, buyer)), &receipt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReceiptNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !receipt.Verify() {
		return nil, ErrReceiptTampered
	}
	return &receipt, nil
}

// HasPurchased reports whether buyer already holds a receipt for article.
func (e *Engine) HasPurchased(article [32]byte, buyer [20]byte) (bool, error) {
	var ok bool
	err := e.view(func(t *txn) error {
		var err error
		ok, err = t.state.KVHas(receiptKey(ReceiptAddress(article, buyer)))
		return err
	})
	return ok, err
}

// Credential returns the access credential with the given id.
func (e *Engine) Credential(id [32]byte) (*bank.Credential, error) {
	var cred *bank.Credential
	err := e.view(func(t *txn) error {
		var err error
		cred, err = t.ledger.Credential(id)
		return mapStateErr(err)
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// TransferCredential moves a transferable credential from caller to a new
// holder. Credentials of non-transferable articles fail ErrTransferBlocked.
func (e *Engine) TransferCredential(caller [20]byte, id [32]byte, to [20]byte) (*bank.Credential, error) {
	if isZeroAddress(to) || to == caller {
		return nil, ErrInvalidRecipient
	}
	var cred *bank.Credential
	err := e.update(func(t *txn) error {
		var err error
		cred, err = t.ledger.TransferCredential(caller, id, to)
		if err != nil {
			return mapStateErr(err)
		}
		t.emit(events.CredentialTransferred{Credential: id, From: caller, To: to})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Balance returns the owner's balance in currency.
func (e *Engine) Balance(currency, owner [20]byte) (uint64, error) {
	var amount uint64
	err := e.view(func(t *txn) error {
		var err error
		amount, err = t.ledger.Balance(currency, owner)
		return err
	})
	return amount, err
}

// Fund credits a funding account outside of settlement. Operator tooling uses
// it to seed balances; amount zero only opens the account.
func (e *Engine) Fund(currency, owner [20]byte, amount uint64) error {
	return e.update(func(t *txn) error {
		return mapStateErr(t.ledger.Fund(currency, owner, amount))
	})
}
