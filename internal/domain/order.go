package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// OrderType classifies how an order spent or received the protocol token.
type OrderType string

// Order types.
const (
	OrderTypeSell    OrderType = "SELL"
	OrderTypeBuy     OrderType = "BUY"
	OrderTypeAuction OrderType = "AUCTION"
)

// Order is a protocol-token commitment by a user against a subject token.
// Auction orders are hard-deleted on cancellation.
type Order struct {
	ID                      string          `json:"id"`
	ProtocolToken           string          `json:"protocol_token"` // protocol token contract address
	ProtocolTokenAmount     *big.Int        `json:"protocol_token_amount"`
	ProtocolTokenInvestment decimal.Decimal `json:"protocol_token_investment"`
	SubjectToken            string          `json:"subject_token"`
	SubjectAmount           *big.Int        `json:"subject_amount"`
	SubjectAmountLeft       *big.Int        `json:"subject_amount_left"`
	OrderType               OrderType       `json:"order_type"`
	User                    string          `json:"user"`
	Portfolio               string          `json:"portfolio"`
	Price                   decimal.Decimal `json:"price"`
	BlockInfo               string          `json:"block_info"`
}

// AuctionOrderStatus tracks the lifecycle of an auction order.
type AuctionOrderStatus string

// Auction order statuses.
const (
	AuctionOrderPlaced    AuctionOrderStatus = "PLACED"
	AuctionOrderClaimed   AuctionOrderStatus = "CLAIMED"
	AuctionOrderCancelled AuctionOrderStatus = "CANCELLED"
)

// AuctionOrder links orders to the auction intents that touched them. It
// outlives its orders and is never reset: identical intent tuples share
// one record, so Orders queues every order still open under the key and
// History keeps each transition.
type AuctionOrder struct {
	ID                    string              `json:"id"`     // subject-user-buyAmount-sellAmount
	Order                 string              `json:"order"`  // order touched by the latest transition
	Orders                []string            `json:"orders"` // open order ids, oldest first
	Status                AuctionOrderStatus  `json:"status"`
	NewSellOrder          string              `json:"new_sell_order,omitempty"`
	CancellationSellOrder string              `json:"cancellation_sell_order,omitempty"`
	ClaimedFromOrder      string              `json:"claimed_from_order,omitempty"`
	History               []AuctionOrderEntry `json:"history"`
}

// AuctionOrderEntry is one settled intent in an AuctionOrder's history.
type AuctionOrderEntry struct {
	Intent Kind   `json:"intent"`
	ID     string `json:"id"` // intent id
	Order  string `json:"order"`
}

// NewAuctionOrder returns an empty record for key.
func NewAuctionOrder(key string) *AuctionOrder {
	return &AuctionOrder{ID: key, Orders: []string{}, History: []AuctionOrderEntry{}}
}

// Place queues orderID as open. Returns the number of orders that were
// already open under the key.
func (a *AuctionOrder) Place(orderID, intentID string) int {
	open := len(a.Orders)
	a.Orders = append(a.Orders, orderID)
	a.Order = orderID
	a.Status = AuctionOrderPlaced
	a.NewSellOrder = intentID
	a.History = append(a.History, AuctionOrderEntry{Intent: KindAuctionNewSellOrder, ID: intentID, Order: orderID})
	return open
}

// Cancel closes the oldest open order and returns its id. The record turns
// CANCELLED once no order is left open. Reports false if none was open.
func (a *AuctionOrder) Cancel(intentID string) (string, bool) {
	if len(a.Orders) == 0 {
		return "", false
	}
	orderID := a.Orders[0]
	a.Orders = a.Orders[1:]
	a.Order = orderID
	a.CancellationSellOrder = intentID
	if len(a.Orders) == 0 {
		a.Status = AuctionOrderCancelled
	}
	a.History = append(a.History, AuctionOrderEntry{Intent: KindAuctionCancellationSellOrder, ID: intentID, Order: orderID})
	return orderID, true
}

// Claim returns the oldest open order, which the claim draws down. The
// order stays open for later claims. Reports false if none was open.
func (a *AuctionOrder) Claim(intentID string) (string, bool) {
	if len(a.Orders) == 0 {
		return "", false
	}
	orderID := a.Orders[0]
	a.Order = orderID
	a.Status = AuctionOrderClaimed
	a.ClaimedFromOrder = intentID
	a.History = append(a.History, AuctionOrderEntry{Intent: KindAuctionClaimedFromOrder, ID: intentID, Order: orderID})
	return orderID, true
}

// AuctionIntent is a staged auction event waiting for the transfer that settles it.
// The three intent kinds share this shape.
type AuctionIntent struct {
	ID         string   `json:"id"` // txHash-logIndex of the intent event
	AuctionID  string   `json:"auction_id"`
	Subject    string   `json:"subject"` // subject token address
	UserID     *big.Int `json:"user_id"` // auction-side numeric user id
	BuyAmount  *big.Int `json:"buy_amount"`
	SellAmount *big.Int `json:"sell_amount"`
	BlockInfo  string   `json:"block_info"`
	TxHash     string   `json:"tx_hash"`
}
