package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Recorder appends interaction records and applies the reputation change
// each one implies. It never touches votes or content counters, and it does
// not retry: any failure aborts the caller's transaction.
type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: func() time.Time { return time.Now().UTC() }}
}

// Record appends a forward interaction (upvote, downvote or post).
func (r *Recorder) Record(ctx context.Context, tx Tx, action models.Action, target models.TargetRef, rc ReversalContext) (*models.Interaction, error) {
	switch action {
	case models.ActionUpvote, models.ActionDownvote, models.ActionPost:
	default:
		return nil, ValidationError(fmt.Sprintf("%q cannot be recorded as a ledger interaction", action))
	}

	interaction := r.newInteraction(action, target, rc)
	if err := tx.InsertInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("insert %s interaction: %w", action, err)
	}

	if err := r.applyReputation(ctx, tx, action, target.Kind, rc); err != nil {
		return nil, err
	}
	return interaction, nil
}

// Remove appends a reversal (remove-upvote, remove-downvote or delete). The
// forward record it undoes is matched on the full attribute tuple and must
// not have been reversed already.
func (r *Recorder) Remove(ctx context.Context, tx Tx, reversal models.Action, target models.TargetRef, rc ReversalContext) (*models.Interaction, error) {
	forward, ok := reversal.Forward()
	if !ok || reversal == models.ActionRemoveBookmark {
		return nil, ValidationError(fmt.Sprintf("%q is not a ledger reversal", reversal))
	}

	match := models.InteractionMatch{
		UserID:       rc.ContentAuthor,
		Action:       forward,
		ActionID:     target.ID,
		ActionType:   target.Kind,
		VoteAuthorID: voteAuthor(forward, rc),
	}
	original, err := tx.FindUnreversed(ctx, match)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, NotFound(fmt.Sprintf("no %s interaction on %s to reverse", forward, target), err).
				WithField("acting_user", rc.ActingUser.String())
		}
		return nil, fmt.Errorf("find %s interaction: %w", forward, err)
	}

	interaction := r.newInteraction(reversal, target, rc)
	interaction.ReversesID = &original.ID
	if err := tx.InsertInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("insert %s interaction: %w", reversal, err)
	}

	if err := r.applyReputation(ctx, tx, reversal, target.Kind, rc); err != nil {
		return nil, err
	}
	return interaction, nil
}

func (r *Recorder) newInteraction(action models.Action, target models.TargetRef, rc ReversalContext) *models.Interaction {
	return &models.Interaction{
		ID:           uuid.New(),
		UserID:       rc.ContentAuthor,
		Action:       action,
		ActionID:     target.ID,
		ActionType:   target.Kind,
		VoteAuthorID: voteAuthor(action, rc),
		CreatedAt:    r.now(),
	}
}

func (r *Recorder) applyReputation(ctx context.Context, tx Tx, action models.Action, kind models.TargetKind, rc ReversalContext) error {
	points, err := Delta(action, kind, rc.SelfAction())
	if err != nil {
		return err
	}
	changes := points.Changes(rc)
	if len(changes) == 0 {
		return nil
	}
	if err := tx.AdjustReputation(ctx, changes); err != nil {
		return fmt.Errorf("apply %s reputation: %w", action, err)
	}
	return nil
}

func voteAuthor(action models.Action, rc ReversalContext) *uuid.UUID {
	if !action.IsVote() {
		return nil
	}
	id := rc.ActingUser
	return &id
}
