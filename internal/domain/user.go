package domain

import "math/big"

// User is an account that interacted with the protocol.
// Lazily created on first reference and never deleted.
type User struct {
	ID                  string   `json:"id"` // lowercase 0x address
	ProtocolTokenSpent  *big.Int `json:"protocol_token_spent"`
	AuctionOrders       []string `json:"auction_orders"`  // open auction order ids, placement order
	BuyOrders           []string `json:"buy_orders"`      // bonding-curve buy order ids
	SellOrders          []string `json:"sell_orders"`     // bonding-curve sell order ids
	ProtocolOrders      []string `json:"protocol_orders"` // every order spending the protocol token
	SubjectFeeTransfers []string `json:"subject_fee_transfers"`
}

// NewUser returns a user with zeroed counters and empty order lists.
func NewUser(id string) *User {
	return &User{
		ID:                  id,
		ProtocolTokenSpent:  new(big.Int),
		AuctionOrders:       []string{},
		BuyOrders:           []string{},
		SellOrders:          []string{},
		ProtocolOrders:      []string{},
		SubjectFeeTransfers: []string{},
	}
}

// RemoveAuctionOrder drops orderID from AuctionOrders, keeping the order of the rest.
// Reports whether the id was present.
func (u *User) RemoveAuctionOrder(orderID string) bool {
	for i, id := range u.AuctionOrders {
		if id == orderID {
			u.AuctionOrders = append(u.AuctionOrders[:i], u.AuctionOrders[i+1:]...)
			return true
		}
	}
	return false
}

// Portfolio is a user's position in one subject token.
type Portfolio struct {
	ID                 string   `json:"id"` // user-subject
	User               string   `json:"user"`
	Subject            string   `json:"subject"`
	Balance            *big.Int `json:"balance"` // subject tokens held
	ProtocolTokenSpent *big.Int `json:"protocol_token_spent"`
	Holder             bool     `json:"holder"` // counted in Subject.UniqueHolders
}
