package paywall

import "github.com/holiman/uint256"

var bpsDenominator = uint256.NewInt(BasisPoints)

// bpsOf returns floor(amount*bps/10000) using a 256-bit intermediate.
func bpsOf(amount uint64, bps uint16) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	return product.Div(product, bpsDenominator).Uint64()
}

// ComputeSplit divides price between protocol, referrer and creator. The
// referrer share applies only when payReferrer is set. The caller guarantees
// protocolBps+referrerBps <= 10000.
func ComputeSplit(price uint64, cfg FeeConfig, payReferrer bool) (Split, error) {
	if uint32(cfg.ProtocolBps)+uint32(cfg.ReferrerBps) > BasisPoints {
		return Split{}, ErrFeesTooHigh
	}
	split := Split{Price: price, ProtocolFee: bpsOf(price, cfg.ProtocolBps)}
	if payReferrer {
		split.ReferrerFee = bpsOf(price, cfg.ReferrerBps)
	}
	fees := split.ProtocolFee + split.ReferrerFee
	if fees > price {
		return Split{}, ErrOverflow
	}
	split.CreatorAmount = price - fees
	return split, nil
}
