package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger/ledgertest"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

func TestRecorder_RemoveWithoutForwardRecord(t *testing.T) {
	store := ledgertest.New()
	voter := store.AddUser("voter")
	author := store.AddUser("author")
	target := models.TargetRef{ID: uuid.New(), Kind: models.KindQuestion}
	rc := ledger.ReversalContext{ActingUser: voter.ID, ContentAuthor: author.ID}

	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		_, err := ledger.NewRecorder().Remove(ctx, tx, models.ActionRemoveUpvote, target, rc)
		return err
	})
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindNotFound))
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
	assert.Empty(t, store.Interactions())
}

func TestRecorder_MatchesOnVoter(t *testing.T) {
	store := ledgertest.New()
	alice := store.AddUser("alice")
	carol := store.AddUser("carol")
	author := store.AddUser("author")
	target := models.TargetRef{ID: uuid.New(), Kind: models.KindAnswer}
	rec := ledger.NewRecorder()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if _, err := rec.Record(ctx, tx, models.ActionUpvote, target, ledger.ReversalContext{ActingUser: alice.ID, ContentAuthor: author.ID}); err != nil {
			return err
		}
		_, err := rec.Remove(ctx, tx, models.ActionRemoveUpvote, target, ledger.ReversalContext{ActingUser: carol.ID, ContentAuthor: author.ID})
		return err
	})
	assert.True(t, ledger.IsKind(err, ledger.KindNotFound), "carol cannot reverse alice's upvote")
	assert.Empty(t, store.Interactions())
}

func TestRecorder_RejectsActionsWithoutReputation(t *testing.T) {
	store := ledgertest.New()
	user := store.AddUser("user")
	target := models.TargetRef{ID: uuid.New(), Kind: models.KindQuestion}
	rc := ledger.ReversalContext{ActingUser: user.ID, ContentAuthor: user.ID}
	rec := ledger.NewRecorder()

	for _, action := range []models.Action{models.ActionView, models.ActionBookmark, models.ActionEdit, models.ActionSearch, models.ActionRemoveUpvote} {
		err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
			_, err := rec.Record(ctx, tx, action, target, rc)
			return err
		})
		assert.True(t, ledger.IsKind(err, ledger.KindValidation), "record %s", action)
	}

	for _, action := range []models.Action{models.ActionRemoveBookmark, models.ActionUpvote, models.ActionPost} {
		err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
			_, err := rec.Remove(ctx, tx, action, target, rc)
			return err
		})
		assert.True(t, ledger.IsKind(err, ledger.KindValidation), "remove %s", action)
	}
}

func TestRecorder_ReputationNeedsExistingUsers(t *testing.T) {
	store := ledgertest.New()
	author := store.AddUser("author")
	target := models.TargetRef{ID: uuid.New(), Kind: models.KindQuestion}
	rc := ledger.ReversalContext{ActingUser: uuid.New(), ContentAuthor: author.ID}

	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		_, err := ledger.NewRecorder().Record(ctx, tx, models.ActionUpvote, target, rc)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)

	u, _ := store.User(author.ID)
	assert.Equal(t, 0, u.Reputation)
	assert.Empty(t, store.Interactions())
}
