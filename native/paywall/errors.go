package paywall

import "errors"

var (
	ErrUriTooLong         = errors.New("paywall: uri exceeds 200 bytes")
	ErrInvalidRoyalty     = errors.New("paywall: royalty bps exceeds 10000")
	ErrInvalidPrice       = errors.New("paywall: price must be positive")
	ErrFeesTooHigh        = errors.New("paywall: protocol and referrer bps exceed 10000")
	ErrInvalidPaymentMint = errors.New("paywall: payment currency does not match article")
	ErrInvalidReferrer    = errors.New("paywall: invalid referrer")
	ErrInvalidTreasury    = errors.New("paywall: treasury must be set")
	ErrInvalidRecipient   = errors.New("paywall: invalid credential recipient")

	ErrUnauthorized  = errors.New("paywall: caller is not authorized")
	ErrAdminMismatch = errors.New("paywall: caller is not a fee admin")

	ErrAlreadyPurchased    = errors.New("paywall: article already purchased by buyer")
	ErrArticleNotFound     = errors.New("paywall: article not found")
	ErrArticleExists       = errors.New("paywall: article already exists")
	ErrReceiptNotFound     = errors.New("paywall: receipt not found")
	ErrCredentialNotFound  = errors.New("paywall: credential not found")
	ErrFeeConfigMissing    = errors.New("paywall: fee config not initialised")
	ErrInsufficientPayment = errors.New("paywall: buyer balance below price")
	ErrTransferBlocked     = errors.New("paywall: credential is bound to its buyer")
	ErrNotRentExempt       = errors.New("paywall: record not rent exempt")
	ErrReceiptTampered     = errors.New("paywall: receipt digest mismatch")

	ErrOverflow = errors.New("paywall: arithmetic overflow")
)

// Kind groups errors by the class of caller mistake.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUriTooLong, KindValidation},
	{ErrInvalidRoyalty, KindValidation},
	{ErrInvalidPrice, KindValidation},
	{ErrFeesTooHigh, KindValidation},
	{ErrInvalidPaymentMint, KindValidation},
	{ErrInvalidReferrer, KindValidation},
	{ErrInvalidTreasury, KindValidation},
	{ErrInvalidRecipient, KindValidation},
	{ErrUnauthorized, KindAuthorization},
	{ErrAdminMismatch, KindAuthorization},
	{ErrAlreadyPurchased, KindState},
	{ErrArticleNotFound, KindState},
	{ErrArticleExists, KindState},
	{ErrReceiptNotFound, KindState},
	{ErrCredentialNotFound, KindState},
	{ErrFeeConfigMissing, KindState},
	{ErrInsufficientPayment, KindState},
	{ErrTransferBlocked, KindState},
	{ErrNotRentExempt, KindState},
	{ErrReceiptTampered, KindState},
	{ErrOverflow, KindArithmetic},
}

// Classify returns the taxonomy bucket of err, unwrapping as needed.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range kinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrArticleNotFound) ||
		errors.Is(err, ErrReceiptNotFound) ||
		errors.Is(err, ErrCredentialNotFound) ||
		errors.Is(err, ErrFeeConfigMissing)
}
