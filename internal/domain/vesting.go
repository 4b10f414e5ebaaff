package domain

import "math/big"

// Revocable describes whether a token lock can be revoked by its manager.
type Revocable string

// Revocable states.
const (
	RevocableNotSet   Revocable = "NotSet"
	RevocableEnabled  Revocable = "Enabled"
	RevocableDisabled Revocable = "Disabled"
)

// RevocableFromCode maps the on-chain enum to Revocable.
func RevocableFromCode(code uint8) Revocable {
	switch code {
	case 0:
		return RevocableNotSet
	case 1:
		return RevocableEnabled
	default:
		return RevocableDisabled
	}
}

// TokenLockManager is a vesting manager contract.
type TokenLockManager struct {
	ID                       string   `json:"id"` // manager contract address
	MasterCopy               string   `json:"master_copy"`
	Tokens                   *big.Int `json:"tokens"`
	TokenLockCount           *big.Int `json:"token_lock_count"`
	TokenDestinations        []string `json:"token_destinations"`
	SubjectTokenDestinations []string `json:"subject_token_destinations"`
	MoxiePassToken           string   `json:"moxie_pass_token,omitempty"`
	TokenManager             string   `json:"token_manager,omitempty"`
}

// TokenLockWallet is a vesting wallet created by a manager.
type TokenLockWallet struct {
	ID                        string    `json:"id"` // wallet contract address
	Manager                   string    `json:"manager"`
	InitHash                  string    `json:"init_hash"`
	Beneficiary               string    `json:"beneficiary"`
	Token                     string    `json:"token"`
	ManagedAmount             *big.Int  `json:"managed_amount"`
	Balance                   *big.Int  `json:"balance"`
	StartTime                 *big.Int  `json:"start_time"`
	EndTime                   *big.Int  `json:"end_time"`
	Periods                   *big.Int  `json:"periods"`
	ReleaseStartTime          *big.Int  `json:"release_start_time"`
	VestingCliffTime          *big.Int  `json:"vesting_cliff_time"`
	Revocable                 Revocable `json:"revocable"`
	TokenDestinationsApproved bool      `json:"token_destinations_approved"`
	TokensWithdrawn           *big.Int  `json:"tokens_withdrawn"`
	TokensRevoked             *big.Int  `json:"tokens_revoked"`
	TokensReleased            *big.Int  `json:"tokens_released"`
	LockAccepted              bool      `json:"lock_accepted"`
	BlockNumberCreated        uint64    `json:"block_number_created"`
	TxHash                    string    `json:"tx_hash"`
}

// AuthorizedFunction is a function call a manager allows wallets to make.
type AuthorizedFunction struct {
	ID      string `json:"id"` // signature-manager
	Sig     string `json:"sig"`
	SigHash string `json:"sig_hash"`
	Target  string `json:"target"`
	Manager string `json:"manager"`
}

// VestingSummary totals the tokens placed under lock.
type VestingSummary struct {
	ID          string   `json:"id"`
	TotalLocked *big.Int `json:"total_locked"`
}
