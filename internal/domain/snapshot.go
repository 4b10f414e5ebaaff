package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Bucket sizes in seconds.
const (
	SecondsInHour int64 = 60 * 60
	SecondsInDay  int64 = SecondsInHour * 24
)

// SubjectSnapshot is a subject's metrics over one time bucket.
// Start values are fixed when the bucket opens; End values follow the
// subject on every save; Change is End minus Start.
// Hourly and daily snapshots share this shape and differ only by Kind.
type SubjectSnapshot struct {
	ID           string `json:"id"` // subject-bucketEnd
	Subject      string `json:"subject"`
	Beneficiary  string `json:"beneficiary,omitempty"`
	EndTimestamp int64  `json:"end_timestamp"` // exclusive bucket end, unix seconds

	Reserve     *big.Int `json:"reserve"`
	TotalSupply *big.Int `json:"total_supply"`

	StartPrice  decimal.Decimal `json:"start_price"`
	EndPrice    decimal.Decimal `json:"end_price"`
	PriceChange decimal.Decimal `json:"price_change"`

	StartUniqueHolders  int64 `json:"start_unique_holders"`
	EndUniqueHolders    int64 `json:"end_unique_holders"`
	UniqueHoldersChange int64 `json:"unique_holders_change"`

	StartVolume  *big.Int `json:"start_volume"`
	EndVolume    *big.Int `json:"end_volume"`
	VolumeChange *big.Int `json:"volume_change"`

	StartBeneficiaryFee  *big.Int `json:"start_beneficiary_fee"`
	EndBeneficiaryFee    *big.Int `json:"end_beneficiary_fee"`
	BeneficiaryFeeChange *big.Int `json:"beneficiary_fee_change"`

	StartProtocolFee  *big.Int `json:"start_protocol_fee"`
	EndProtocolFee    *big.Int `json:"end_protocol_fee"`
	ProtocolFeeChange *big.Int `json:"protocol_fee_change"`
}
