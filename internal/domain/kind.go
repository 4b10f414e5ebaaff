package domain

// Kind names an entity collection in the entity store.
type Kind string

// Entity kinds.
const (
	KindBlockInfo                    Kind = "block_info"
	KindUser                         Kind = "user"
	KindSubject                      Kind = "subject"
	KindPortfolio                    Kind = "portfolio"
	KindOrder                        Kind = "order"
	KindAuctionOrder                 Kind = "auction_order"
	KindAuctionNewSellOrder          Kind = "auction_new_sell_order"
	KindAuctionCancellationSellOrder Kind = "auction_cancellation_sell_order"
	KindAuctionClaimedFromOrder      Kind = "auction_claimed_from_order"
	KindProtocolTransfer             Kind = "protocol_transfer"
	KindAuctionTransfer              Kind = "auction_transfer"
	KindSubjectHourlySnapshot        Kind = "subject_hourly_snapshot"
	KindSubjectDailySnapshot         Kind = "subject_daily_snapshot"
	KindSummary                      Kind = "summary"
	KindProtocolFeeBeneficiary       Kind = "protocol_fee_beneficiary"
	KindTokenLockManager             Kind = "token_lock_manager"
	KindTokenLockWallet              Kind = "token_lock_wallet"
	KindAuthorizedFunction           Kind = "authorized_function"
	KindVestingSummary               Kind = "vesting_summary"
	KindCheckpoint                   Kind = "checkpoint"
)

// Kinds lists every entity kind. Used by stores that pre-allocate per-kind state.
var Kinds = []Kind{
	KindBlockInfo, KindUser, KindSubject, KindPortfolio, KindOrder, KindAuctionOrder,
	KindAuctionNewSellOrder, KindAuctionCancellationSellOrder, KindAuctionClaimedFromOrder,
	KindProtocolTransfer, KindAuctionTransfer,
	KindSubjectHourlySnapshot, KindSubjectDailySnapshot,
	KindSummary, KindProtocolFeeBeneficiary,
	KindTokenLockManager, KindTokenLockWallet, KindAuthorizedFunction, KindVestingSummary,
	KindCheckpoint,
}

func (k Kind) String() string {
	return string(k)
}
