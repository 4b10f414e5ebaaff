package domain

// BlockInfo is the block an event was emitted in.
// Created once per block number and never modified.
type BlockInfo struct {
	ID          string `json:"id"`           // decimal block number
	BlockNumber uint64 `json:"block_number"` // chain block height
	Timestamp   int64  `json:"timestamp"`    // block timestamp, unix seconds
	Hash        string `json:"hash"`         // 0x-prefixed block hash
}
