// Package ethrpc reads contract state over Ethereum JSON-RPC.
package ethrpc

import "context"

// BlockLatest selects the latest block in eth_call.
const BlockLatest = "latest"

// RPCClient defines the Ethereum JSON-RPC subset the indexer uses.
type RPCClient interface {
	// Call executes a read-only contract call and returns the raw return data.
	Call(ctx context.Context, msg CallMsg, block string) ([]byte, error)

	// BatchCall executes several read-only calls in one round trip.
	BatchCall(ctx context.Context, msgs []CallMsg, block string) ([]CallResult, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)
}

// CallMsg is the eth_call transaction object.
type CallMsg struct {
	To   string // contract address
	Data []byte // ABI-encoded call data
}
