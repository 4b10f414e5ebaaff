// Package fees splits trade amounts into protocol and subject fees.
package fees

import (
	"math/big"

	"moxie-indexer/internal/domain"
)

// PctBase is the fixed-point scale of fee percentages (1e18 = 100%).
var PctBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Rates is one side's fee percentages, scaled by PctBase.
type Rates struct {
	ProtocolPct *big.Int
	SubjectPct  *big.Int
}

// Config holds the buy-side and sell-side fee rates.
type Config struct {
	Buy  Rates
	Sell Rates
}

// Fees is the result of a split.
type Fees struct {
	ProtocolFee *big.Int
	SubjectFee  *big.Int
}

// Total returns ProtocolFee + SubjectFee.
func (f Fees) Total() *big.Int {
	return new(big.Int).Add(f.ProtocolFee, f.SubjectFee)
}

// ConfigFromSummary builds a Config from the Summary fee settings.
// Missing percentages are treated as zero.
func ConfigFromSummary(s *domain.Summary) Config {
	return Config{
		Buy: Rates{
			ProtocolPct: orZero(s.ProtocolBuyFeePct),
			SubjectPct:  orZero(s.SubjectBuyFeePct),
		},
		Sell: Rates{
			ProtocolPct: orZero(s.ProtocolSellFeePct),
			SubjectPct:  orZero(s.SubjectSellFeePct),
		},
	}
}

// Calculate computes amount * pct / PctBase for both percentages of r.
// Division truncates toward zero, which is floor for non-negative amounts.
func Calculate(amount *big.Int, r Rates) Fees {
	return Fees{
		ProtocolFee: apply(amount, r.ProtocolPct),
		SubjectFee:  apply(amount, r.SubjectPct),
	}
}

// BuySide computes fees for a deposit into the bonding curve.
func (c Config) BuySide(amount *big.Int) Fees {
	return Calculate(amount, c.Buy)
}

// SellSide computes fees for proceeds of a sale.
func (c Config) SellSide(amount *big.Int) Fees {
	return Calculate(amount, c.Sell)
}

func apply(amount, pct *big.Int) *big.Int {
	if amount == nil || pct == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, pct)
	return v.Quo(v, PctBase)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
