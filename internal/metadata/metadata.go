// Package metadata resolves subject token metadata.
package metadata

import (
	"context"

	"moxie-indexer/internal/domain"
)

// Reader reads ERC20 metadata for a token.
type Reader interface {
	TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error)
}

// Static serves metadata from a fixed table. Unknown tokens get Fallback.
// Used for replays that run without an RPC endpoint.
type Static struct {
	Tokens   map[string]domain.TokenMetadata
	Fallback domain.TokenMetadata
}

// TokenMetadata returns the table entry for token, or Fallback.
func (s Static) TokenMetadata(_ context.Context, token string) (domain.TokenMetadata, error) {
	if meta, ok := s.Tokens[token]; ok {
		return meta, nil
	}
	return s.Fallback, nil
}
