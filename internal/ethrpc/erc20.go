package ethrpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"moxie-indexer/internal/domain"
)

const erc20MetadataJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataJSON))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}()

// TokenReader reads ERC20 metadata through eth_call.
type TokenReader struct {
	rpc   RPCClient
	block string
}

// NewTokenReader creates a TokenReader calling against the latest block.
func NewTokenReader(rpc RPCClient) *TokenReader {
	return &TokenReader{rpc: rpc, block: BlockLatest}
}

// metadataMethods are the getters TokenMetadata batches, in result order.
var metadataMethods = []string{"name", "symbol", "decimals"}

// TokenMetadata reads name, symbol and decimals from token in one batch.
func (r *TokenReader) TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error) {
	var meta domain.TokenMetadata

	msgs := make([]CallMsg, len(metadataMethods))
	for i, method := range metadataMethods {
		data, err := erc20ABI.Pack(method)
		if err != nil {
			return meta, fmt.Errorf("pack %s: %w", method, err)
		}
		msgs[i] = CallMsg{To: token, Data: data}
	}

	results, err := r.rpc.BatchCall(ctx, msgs, r.block)
	if err != nil {
		return meta, fmt.Errorf("read metadata of %s: %w", token, err)
	}

	values := make([]interface{}, len(results))
	for i, res := range results {
		method := metadataMethods[i]
		if res.Err != nil {
			return meta, fmt.Errorf("call %s on %s: %w", method, token, res.Err)
		}
		out, err := erc20ABI.Unpack(method, res.Data)
		if err != nil {
			return meta, fmt.Errorf("unpack %s from %s: %w", method, token, err)
		}
		if len(out) != 1 {
			return meta, fmt.Errorf("unpack %s from %s: got %d values", method, token, len(out))
		}
		values[i] = out[0]
	}

	var ok bool
	if meta.Name, ok = values[0].(string); !ok {
		return meta, fmt.Errorf("token %s: name is %T", token, values[0])
	}
	if meta.Symbol, ok = values[1].(string); !ok {
		return meta, fmt.Errorf("token %s: symbol is %T", token, values[1])
	}
	if meta.Decimals, ok = values[2].(uint8); !ok {
		return meta, fmt.Errorf("token %s: decimals is %T", token, values[2])
	}
	return meta, nil
}
