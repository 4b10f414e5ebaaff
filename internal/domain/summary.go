package domain

import "math/big"

// SummaryID is the id of the protocol Summary singleton.
const SummaryID = "SUMMARY"

// Summary holds protocol-wide fee settings.
// Percentages are fixed point with 18 decimals.
type Summary struct {
	ID                           string   `json:"id"`
	ProtocolBuyFeePct            *big.Int `json:"protocol_buy_fee_pct"`
	ProtocolSellFeePct           *big.Int `json:"protocol_sell_fee_pct"`
	SubjectBuyFeePct             *big.Int `json:"subject_buy_fee_pct"`
	SubjectSellFeePct            *big.Int `json:"subject_sell_fee_pct"`
	ActiveProtocolFeeBeneficiary string   `json:"active_protocol_fee_beneficiary,omitempty"`
}

// ProtocolFeeBeneficiary is an address that has received protocol fees.
type ProtocolFeeBeneficiary struct {
	ID          string   `json:"id"`
	Beneficiary string   `json:"beneficiary"`
	TotalFees   *big.Int `json:"total_fees"`
}

// CheckpointID is the id of the processor checkpoint singleton.
const CheckpointID = "CHECKPOINT"

// Checkpoint records the position of the last fully applied event.
type Checkpoint struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
	TxHash      string `json:"tx_hash"`
	RunID       string `json:"run_id"`
}
