package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Subject is a subject token and its live market state.
type Subject struct {
	ID             string          `json:"id"` // token contract address
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Decimals       uint8           `json:"decimals"`
	Subject        string          `json:"subject,omitempty"`     // user id the token represents
	Beneficiary    string          `json:"beneficiary,omitempty"` // receiver of subject fees
	Reserve        *big.Int        `json:"reserve"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	TotalSupply    *big.Int        `json:"total_supply"`
	UniqueHolders  int64           `json:"unique_holders"` // portfolios with a positive balance
	Volume         *big.Int        `json:"volume"`
	BeneficiaryFee *big.Int        `json:"beneficiary_fee"`
	ProtocolFee    *big.Int        `json:"protocol_fee"`
}

// TokenMetadata is the ERC20 metadata read from a subject token contract.
type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// NewSubject returns a subject with zeroed market fields.
func NewSubject(id string, meta TokenMetadata) *Subject {
	return &Subject{
		ID:             id,
		Name:           meta.Name,
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
		Reserve:        new(big.Int),
		CurrentPrice:   decimal.Zero,
		TotalSupply:    new(big.Int),
		Volume:         new(big.Int),
		BeneficiaryFee: new(big.Int),
		ProtocolFee:    new(big.Int),
	}
}

// SyncHolder counts p as a holder while its balance is positive. p.Holder
// records whether p is currently counted.
func (s *Subject) SyncHolder(p *Portfolio) {
	holds := p.Balance != nil && p.Balance.Sign() > 0
	switch {
	case holds && !p.Holder:
		p.Holder = true
		s.UniqueHolders++
	case !holds && p.Holder:
		p.Holder = false
		s.UniqueHolders--
	}
}
