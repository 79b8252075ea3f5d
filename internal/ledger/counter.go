package ledger

import (
	"context"
	"fmt"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// CounterUpdater is the only writer of the upvotes/downvotes columns.
type CounterUpdater struct{}

// AdjustCount applies a ±1 relative change to the counter matching voteType.
// A target removed since the transaction began surfaces as ErrTargetNotFound.
func (CounterUpdater) AdjustCount(ctx context.Context, tx Tx, target models.TargetRef, voteType models.VoteType, delta int) error {
	if delta != 1 && delta != -1 {
		return ValidationError(fmt.Sprintf("counter delta must be +1 or -1, got %d", delta))
	}
	if !voteType.Valid() {
		return ValidationError(fmt.Sprintf("unknown vote type %q", voteType))
	}

	if err := tx.IncrementCounter(ctx, target, voteType.Counter(), delta); err != nil {
		return fmt.Errorf("adjust %s on %s: %w", voteType.Counter(), target, err)
	}
	return nil
}
