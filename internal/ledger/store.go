package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Store is a transactional persistence backend for the ledger.
//
// WithTx runs fn inside one transaction: it commits when fn returns nil and
// rolls back on error or panic. fn may be invoked again by callers that
// retry on ErrConflict, so it must not keep state across invocations.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Health(ctx context.Context) map[string]string
}

// Tx is the set of operations available inside a transaction. Not-found
// conditions are reported with the package sentinels; write conflicts that
// the caller may retry are reported as ErrConflict.
type Tx interface {
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	// AdjustReputation applies all deltas in one batched relative update.
	// Every id must exist.
	AdjustReputation(ctx context.Context, deltas map[uuid.UUID]int) error

	Target(ctx context.Context, ref models.TargetRef) (*models.Target, error)
	// LockTarget is Target plus a row lock held until the transaction ends.
	// Writers that touch the target's counters wait for the holder.
	LockTarget(ctx context.Context, ref models.TargetRef) (*models.Target, error)
	Question(ctx context.Context, id uuid.UUID) (*models.Question, error)
	InsertQuestion(ctx context.Context, q *models.Question) error
	InsertAnswer(ctx context.Context, a *models.Answer) error
	// AnswersOf returns every answer of questionID, oldest first, locking
	// each row like LockTarget.
	AnswersOf(ctx context.Context, questionID uuid.UUID) ([]models.Answer, error)
	// ListAnswers returns one page of questionID's answers and the total
	// number of answers the question has.
	ListAnswers(ctx context.Context, questionID uuid.UUID, page models.AnswerPage) ([]models.Answer, int64, error)
	DeleteTarget(ctx context.Context, ref models.TargetRef) error
	// IncrementCounter adds delta to a counter without reading it first.
	IncrementCounter(ctx context.Context, ref models.TargetRef, field models.CounterField, delta int) error

	// FindVote returns the caller's vote on ref, locking it for the rest of
	// the transaction where the backend supports row locks.
	FindVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error)
	// LookupVote is FindVote without the lock, for read-only callers.
	LookupVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error)
	VotesOn(ctx context.Context, ref models.TargetRef) ([]models.Vote, error)
	InsertVote(ctx context.Context, v *models.Vote) error
	UpdateVoteType(ctx context.Context, voteID uuid.UUID, voteType models.VoteType) error
	DeleteVote(ctx context.Context, voteID uuid.UUID) error

	InsertInteraction(ctx context.Context, i *models.Interaction) error
	// FindUnreversed returns the oldest record matching m that no reversal
	// points to yet.
	FindUnreversed(ctx context.Context, m models.InteractionMatch) (*models.Interaction, error)
	// InteractionsOf returns the records attributed to userID, newest first.
	InteractionsOf(ctx context.Context, userID uuid.UUID) ([]models.Interaction, error)
}
