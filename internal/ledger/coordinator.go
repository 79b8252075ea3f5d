package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Transition names the branch of the vote state machine that ran.
type Transition string

const (
	TransitionCreated  Transition = "created"
	TransitionRemoved  Transition = "removed"
	TransitionSwitched Transition = "switched"
)

// Outcome describes the committed effect of one vote submission.
type Outcome struct {
	Transition   Transition           `json:"transition"`
	Previous     *models.VoteType     `json:"previous"`
	Current      *models.VoteType     `json:"current"`
	Interactions []models.Interaction `json:"interactions"`
}

// Coordinator owns the write path for votes: the vote record, the target
// counters and the vote interactions all change in one transaction.
type Coordinator struct {
	tx       txRunner
	recorder *Recorder
	counters CounterUpdater
	now      func() time.Time
}

func NewCoordinator(store Store, recorder *Recorder, maxRetries int) *Coordinator {
	return &Coordinator{
		tx:       txRunner{store: store, maxRetries: maxRetries},
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SubmitVote applies userID's vote intent on target:
//
//	no vote      -> create it, counter +1, log the vote
//	same type    -> delete it, counter -1, log the removal (toggle off)
//	other type   -> flip it, old counter -1, new counter +1, log removal then vote
//
// An identity with no user behind it is Unauthorized. Failures after the
// target has been resolved are reported as KindVoteFailed and leave no
// partial effect.
func (c *Coordinator) SubmitVote(ctx context.Context, userID uuid.UUID, target models.TargetRef, voteType models.VoteType) (*Outcome, error) {
	if userID == uuid.Nil {
		return nil, Unauthorized("sign in to vote")
	}
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	if !voteType.Valid() {
		return nil, ValidationError(fmt.Sprintf("unknown vote type %q", voteType))
	}

	var outcome *Outcome
	err := c.tx.run(ctx, "submit_vote", func(ctx context.Context, tx Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			if IsKind(err, KindUnauthorized) {
				return err
			}
			return VoteFailed(err)
		}

		t, err := tx.Target(ctx, target)
		if err != nil {
			if errors.Is(err, ErrTargetNotFound) || errors.Is(err, ErrRecordNotFound) {
				return NotFound(fmt.Sprintf("%s not found", target), err)
			}
			return VoteFailed(err)
		}

		o, err := c.transition(ctx, tx, userID, t, voteType)
		if err != nil {
			return VoteFailed(err)
		}
		outcome = o
		return nil
	})
	if err != nil {
		if passthrough(err) || IsKind(err, KindVoteFailed) {
			return nil, err
		}
		return nil, VoteFailed(err)
	}

	zap.L().Debug("vote applied",
		zap.String("user_id", userID.String()),
		zap.String("target", target.String()),
		zap.String("transition", string(outcome.Transition)),
	)
	return outcome, nil
}

func (c *Coordinator) transition(ctx context.Context, tx Tx, userID uuid.UUID, t *models.Target, voteType models.VoteType) (*Outcome, error) {
	rc := ReversalContext{ActingUser: userID, ContentAuthor: t.AuthorID}

	existing, err := tx.FindVote(ctx, userID, t.Ref)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("load existing vote: %w", err)
	}

	switch {
	case existing == nil:
		now := c.now()
		vote := &models.Vote{
			ID:         uuid.New(),
			AuthorID:   userID,
			TargetID:   t.Ref.ID,
			TargetKind: t.Ref.Kind,
			VoteType:   voteType,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertVote(ctx, vote); err != nil {
			return nil, fmt.Errorf("insert vote: %w", err)
		}
		if err := c.counters.AdjustCount(ctx, tx, t.Ref, voteType, 1); err != nil {
			return nil, err
		}
		recorded, err := c.recorder.Record(ctx, tx, voteType.Action(), t.Ref, rc)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Transition:   TransitionCreated,
			Current:      &voteType,
			Interactions: []models.Interaction{*recorded},
		}, nil

	case existing.VoteType == voteType:
		if err := tx.DeleteVote(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("delete vote: %w", err)
		}
		if err := c.counters.AdjustCount(ctx, tx, t.Ref, voteType, -1); err != nil {
			return nil, err
		}
		removed, err := c.recorder.Remove(ctx, tx, voteType.Removal(), t.Ref, rc)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Transition:   TransitionRemoved,
			Previous:     &voteType,
			Interactions: []models.Interaction{*removed},
		}, nil

	default:
		previous := existing.VoteType
		if err := tx.UpdateVoteType(ctx, existing.ID, voteType); err != nil {
			return nil, fmt.Errorf("update vote: %w", err)
		}
		if err := c.counters.AdjustCount(ctx, tx, t.Ref, previous, -1); err != nil {
			return nil, err
		}
		if err := c.counters.AdjustCount(ctx, tx, t.Ref, voteType, 1); err != nil {
			return nil, err
		}
		removed, err := c.recorder.Remove(ctx, tx, previous.Removal(), t.Ref, rc)
		if err != nil {
			return nil, err
		}
		recorded, err := c.recorder.Record(ctx, tx, voteType.Action(), t.Ref, rc)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Transition:   TransitionSwitched,
			Previous:     &previous,
			Current:      &voteType,
			Interactions: []models.Interaction{*removed, *recorded},
		}, nil
	}
}

func validateTarget(target models.TargetRef) error {
	if !target.Kind.Valid() {
		return ValidationError(fmt.Sprintf("unknown target kind %q", target.Kind))
	}
	if target.ID == uuid.Nil {
		return ValidationError("target id is required")
	}
	return nil
}
