// Package event defines the decoded chain events the indexer consumes.
package event

import "math/big"

// Kind identifies a decoded event type.
type Kind string

// Event kinds.
const (
	KindTransfer                       Kind = "Transfer"
	KindAuctionNewSellOrder            Kind = "AuctionNewSellOrder"
	KindAuctionCancellationSellOrder   Kind = "AuctionCancellationSellOrder"
	KindAuctionClaimedFromOrder        Kind = "AuctionClaimedFromOrder"
	KindTokenDeployed                  Kind = "TokenDeployed"
	KindSubjectSharePurchased          Kind = "SubjectSharePurchased"
	KindSubjectShareSold               Kind = "SubjectShareSold"
	KindSubjectTokenTransfer           Kind = "SubjectTokenTransfer"
	KindUpdateFees                     Kind = "UpdateFees"
	KindUpdateProtocolFeeBeneficiary   Kind = "UpdateProtocolFeeBeneficiary"
	KindMasterCopyUpdated              Kind = "MasterCopyUpdated"
	KindTokenLockCreated               Kind = "TokenLockCreated"
	KindTokensDeposited                Kind = "TokensDeposited"
	KindTokensWithdrawn                Kind = "TokensWithdrawn"
	KindFunctionCallAuth               Kind = "FunctionCallAuth"
	KindTokenDestinationAllowed        Kind = "TokenDestinationAllowed"
	KindSubjectTokenDestinationAllowed Kind = "SubjectTokenDestinationAllowed"
	KindMoxiePassTokenUpdated          Kind = "MoxiePassTokenUpdated"
	KindTokenManagerUpdated            Kind = "TokenManagerUpdated"
)

// Block is the block an event was emitted in.
type Block struct {
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// Meta is the envelope shared by every event.
type Meta struct {
	Kind     Kind
	TxHash   string // lowercase 0x transaction hash
	LogIndex uint64 // log index within the block
	Block    Block
	Address  string // emitting contract, lowercase 0x address
}

// Header returns the envelope. Embedding Meta makes a type an Event.
func (m Meta) Header() Meta {
	return m
}

// Position returns the ordering key of the event.
func (m Meta) Position() Position {
	return Position{BlockNumber: m.Block.Number, LogIndex: m.LogIndex}
}

// Event is a decoded chain event.
type Event interface {
	Header() Meta
}

// Transfer is a protocol-token ERC20 Transfer.
type Transfer struct {
	Meta
	From  string
	To    string
	Value *big.Int
}

// AuctionIntent is a staged auction event: a new sell order, a
// cancellation or a claim. Meta.Kind tells which.
type AuctionIntent struct {
	Meta
	AuctionID  string
	Subject    string // subject token address
	UserID     *big.Int
	BuyAmount  *big.Int
	SellAmount *big.Int
}

// TokenDeployed is emitted by the token manager when a subject token is created.
type TokenDeployed struct {
	Meta
	Token       string
	Beneficiary string
}

// SubjectSharePurchased is a bonding-curve buy: Deposit protocol tokens in, Shares out.
type SubjectSharePurchased struct {
	Meta
	SubjectToken string
	Spender      string // pays the deposit
	Beneficiary  string // receives the shares
	Deposit      *big.Int
	Shares       *big.Int
}

// SubjectShareSold is a bonding-curve sell: Shares in, Proceeds protocol tokens out.
type SubjectShareSold struct {
	Meta
	SubjectToken string
	Seller       string // gives up the shares
	Beneficiary  string // receives the proceeds
	Shares       *big.Int
	Proceeds     *big.Int
}

// SubjectTokenTransfer is an ERC20 Transfer on a watched subject token.
// Meta.Address is the subject token.
type SubjectTokenTransfer struct {
	Meta
	From  string
	To    string
	Value *big.Int
}

// UpdateFees sets the protocol fee percentages.
type UpdateFees struct {
	Meta
	ProtocolBuyFeePct  *big.Int
	ProtocolSellFeePct *big.Int
	SubjectBuyFeePct   *big.Int
	SubjectSellFeePct  *big.Int
}

// UpdateProtocolFeeBeneficiary sets the active protocol fee beneficiary.
type UpdateProtocolFeeBeneficiary struct {
	Meta
	Beneficiary string
}

// MasterCopyUpdated creates or updates a token lock manager.
type MasterCopyUpdated struct {
	Meta
	MasterCopy string
}

// TokenLockCreated reports a new vesting wallet.
type TokenLockCreated struct {
	Meta
	ContractAddress  string
	InitHash         string
	Beneficiary      string
	Token            string
	ManagedAmount    *big.Int
	StartTime        *big.Int
	EndTime          *big.Int
	Periods          *big.Int
	ReleaseStartTime *big.Int
	VestingCliffTime *big.Int
	Revocable        uint8
}

// TokensDeposited reports tokens added to a manager.
type TokensDeposited struct {
	Meta
	Sender string
	Amount *big.Int
}

// TokensWithdrawn reports tokens removed from a manager.
type TokensWithdrawn struct {
	Meta
	Sender string
	Amount *big.Int
}

// FunctionCallAuth grants or revokes (zero Target) a wallet function call.
type FunctionCallAuth struct {
	Meta
	Caller    string
	SigHash   string
	Target    string
	Signature string
}

// DestinationAllowed adds or removes an address from a manager allow-list.
// Meta.Kind is KindTokenDestinationAllowed or KindSubjectTokenDestinationAllowed.
type DestinationAllowed struct {
	Meta
	Dst     string
	Allowed bool
}

// MoxiePassTokenUpdated sets the pass token of a manager.
type MoxiePassTokenUpdated struct {
	Meta
	MoxiePassToken string
}

// TokenManagerUpdated sets the token manager of a manager.
type TokenManagerUpdated struct {
	Meta
	TokenManager string
}
