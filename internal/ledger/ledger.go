// Package ledger keeps user and portfolio protocol-token spend in step.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/entity"
)

// Updater applies signed spend deltas to a user and the matching portfolio.
type Updater struct {
	log zerolog.Logger
}

// NewUpdater creates a new Updater.
func NewUpdater(log zerolog.Logger) *Updater {
	return &Updater{log: log}
}

// Apply adds delta to User.ProtocolTokenSpent and to the (user, subject)
// Portfolio.ProtocolTokenSpent. Both are saved; a negative result is kept as is.
func (u *Updater) Apply(ctx context.Context, repo *entity.Repository, user, subject string, delta *big.Int) error {
	if delta == nil {
		return fmt.Errorf("ledger delta for %s/%s is nil", user, subject)
	}

	usr, err := repo.User(ctx, user)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	portfolio, err := repo.Portfolio(ctx, user, subject)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}

	usr.ProtocolTokenSpent = new(big.Int).Add(usr.ProtocolTokenSpent, delta)
	portfolio.ProtocolTokenSpent = new(big.Int).Add(portfolio.ProtocolTokenSpent, delta)

	if err := repo.SaveUser(ctx, usr); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if err := repo.SavePortfolio(ctx, portfolio); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	u.log.Debug().
		Str("user", user).
		Str("subject", subject).
		Str("delta", delta.String()).
		Str("user_spent", usr.ProtocolTokenSpent.String()).
		Msg("ledger updated")
	return nil
}
