package processor

import (
	"context"
	"fmt"

	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/event"
)

// Intent staging outcomes.
const (
	outcomeStaged      = "staged"
	outcomeBlacklisted = "blacklisted"
)

// dispatch routes ev to its handler and returns a short outcome label.
func (p *Processor) dispatch(ctx context.Context, repo *entity.Repository, ev event.Event) (string, error) {
	switch e := ev.(type) {
	case *event.Transfer:
		outcome, err := p.correlation.Settle(ctx, repo, e)
		return outcome.String(), err
	case *event.AuctionIntent:
		staged, err := p.correlation.Stage(ctx, repo, e)
		if !staged {
			return outcomeBlacklisted, err
		}
		return outcomeStaged, err

	case *event.TokenDeployed:
		return "", p.protocol.TokenDeployed(ctx, repo, e)
	case *event.SubjectSharePurchased:
		return "", p.protocol.SharePurchased(ctx, repo, e)
	case *event.SubjectShareSold:
		return "", p.protocol.ShareSold(ctx, repo, e)
	case *event.SubjectTokenTransfer:
		return "", p.protocol.SubjectTokenTransfer(ctx, repo, e)
	case *event.UpdateFees:
		return "", p.protocol.UpdateFees(ctx, repo, e)
	case *event.UpdateProtocolFeeBeneficiary:
		return "", p.protocol.UpdateProtocolFeeBeneficiary(ctx, repo, e)

	case *event.MasterCopyUpdated:
		return "", p.vesting.MasterCopyUpdated(ctx, repo, e)
	case *event.TokenLockCreated:
		return "", p.vesting.TokenLockCreated(ctx, repo, e)
	case *event.TokensDeposited:
		return "", p.vesting.TokensDeposited(ctx, repo, e)
	case *event.TokensWithdrawn:
		return "", p.vesting.TokensWithdrawn(ctx, repo, e)
	case *event.FunctionCallAuth:
		return "", p.vesting.FunctionCallAuth(ctx, repo, e)
	case *event.DestinationAllowed:
		return "", p.vesting.DestinationAllowed(ctx, repo, e)
	case *event.MoxiePassTokenUpdated:
		return "", p.vesting.MoxiePassTokenUpdated(ctx, repo, e)
	case *event.TokenManagerUpdated:
		return "", p.vesting.TokenManagerUpdated(ctx, repo, e)
	}
	return "", fmt.Errorf("%w: %T", ErrUnhandledEvent, ev)
}
