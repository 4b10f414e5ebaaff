package domain

import "math/big"

// ProtocolTransfer is one protocol-token Transfer log.
type ProtocolTransfer struct {
	ID        string   `json:"id"` // txHash-logIndex
	From      string   `json:"from"`
	To        string   `json:"to"`
	Value     *big.Int `json:"value"`
	BlockInfo string   `json:"block_info"`
	TxHash    string   `json:"tx_hash"` // AuctionTransfer id
}

// AuctionTransfer groups the transfers of one transaction.
type AuctionTransfer struct {
	ID string `json:"id"` // transaction hash
}
