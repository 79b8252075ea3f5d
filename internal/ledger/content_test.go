package ledger_test

import (
	"context"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

func TestPostQuestion(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")

	q := f.question(t, bob)
	assert.Equal(t, bob.ID, q.AuthorID)
	assert.Equal(t, 5, f.reputation(t, bob.ID))

	log := f.store.Interactions()
	require.Len(t, log, 1)
	assert.Equal(t, models.ActionPost, log[0].Action)
	assert.Equal(t, models.KindQuestion, log[0].ActionType)
	assert.Nil(t, log[0].VoteAuthorID)
}

func TestPostQuestion_Rejects(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")

	_, err := f.svc.PostQuestion(context.Background(), "title", "body")
	assert.True(t, ledger.IsKind(err, ledger.KindUnauthorized))

	_, err = f.svc.PostQuestion(as(bob), "   ", "body")
	assert.True(t, ledger.IsKind(err, ledger.KindValidation))

	ghost := models.User{ID: uuid.New()}
	_, err = f.svc.PostQuestion(as(ghost), "title", "body")
	assert.True(t, ledger.IsKind(err, ledger.KindUnauthorized))
}

func TestPostAnswer(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	carol := f.store.AddUser("carol")
	q := f.question(t, bob)

	f.answer(t, carol, q.ID)
	f.answer(t, carol, q.ID)

	stored, _ := f.store.Question(q.ID)
	assert.Equal(t, 2, stored.Answers)
	assert.Equal(t, 20, f.reputation(t, carol.ID))

	_, err := f.svc.PostAnswer(as(carol), uuid.New(), "orphan")
	assert.True(t, ledger.IsKind(err, ledger.KindNotFound))
	f.requireReplayMatches(t)
}

func TestDeleteContent_OnlyAuthor(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	mallory := f.store.AddUser("mallory")
	q := f.question(t, bob)

	_, err := f.svc.DeleteContent(as(mallory), q.Ref())
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindForbidden))

	_, err = f.svc.DeleteContent(context.Background(), q.Ref())
	assert.True(t, ledger.IsKind(err, ledger.KindUnauthorized))

	_, err = f.svc.DeleteContent(as(bob), models.TargetRef{ID: uuid.New(), Kind: models.KindQuestion})
	assert.True(t, ledger.IsKind(err, ledger.KindNotFound))

	_, ok := f.store.Question(q.ID)
	assert.True(t, ok)
}

func TestDeleteContent_AnswerReversesVotes(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	carol := f.store.AddUser("carol")
	voters := []models.User{f.store.AddUser("dave"), f.store.AddUser("erin"), f.store.AddUser("frank")}
	q := f.question(t, bob)
	a := f.answer(t, carol, q.ID)

	f.vote(t, voters[0], a.Ref(), models.Upvote)
	f.vote(t, voters[1], a.Ref(), models.Downvote)
	f.vote(t, voters[2], a.Ref(), models.Upvote)
	logBefore := len(f.store.Interactions())

	summary, err := f.svc.DeleteContent(as(carol), a.Ref())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Answers)
	assert.Equal(t, 3, summary.Votes)
	assert.Equal(t, 4, summary.Reversals)
	assert.Len(t, f.store.Interactions(), logBefore+4)

	assert.Empty(t, f.store.Votes())
	_, ok := f.store.Answer(a.ID)
	assert.False(t, ok)
	stored, _ := f.store.Question(q.ID)
	assert.Equal(t, 0, stored.Answers)

	for _, v := range voters {
		assert.Equal(t, 0, f.reputation(t, v.ID), v.Username)
	}
	assert.Equal(t, 0, f.reputation(t, carol.ID))
	assert.Equal(t, 5, f.reputation(t, bob.ID))
	f.requireReplayMatches(t)
}

func TestDeleteContent_QuestionCascades(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	carol := f.store.AddUser("carol")
	dave := f.store.AddUser("dave")
	erin := f.store.AddUser("erin")
	q := f.question(t, bob)
	a1 := f.answer(t, carol, q.ID)
	a2 := f.answer(t, dave, q.ID)

	f.vote(t, dave, q.Ref(), models.Upvote)
	f.vote(t, erin, q.Ref(), models.Downvote)
	f.vote(t, erin, a1.Ref(), models.Upvote)
	f.vote(t, carol, a2.Ref(), models.Downvote)
	f.vote(t, bob, a2.Ref(), models.Upvote)

	summary, err := f.svc.DeleteContent(as(bob), q.Ref())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Answers)
	assert.Equal(t, 5, summary.Votes)

	assert.Empty(t, f.store.Votes())
	_, ok := f.store.Question(q.ID)
	assert.False(t, ok)
	for _, u := range []models.User{bob, carol, dave, erin} {
		assert.Equal(t, 0, f.reputation(t, u.ID), u.Username)
	}

	// Every forward record is now reversed exactly once.
	log := f.store.Interactions()
	reversed := make(map[uuid.UUID]int)
	forward := 0
	for _, i := range log {
		if i.ReversesID != nil {
			reversed[*i.ReversesID]++
		} else {
			forward++
		}
	}
	assert.Len(t, reversed, forward)
	for id, n := range reversed {
		assert.Equal(t, 1, n, "record %s", id)
	}
	f.requireReplayMatches(t)
}

func TestDeleteContent_FailureLeavesEverythingInPlace(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	carol := f.store.AddUser("carol")
	q := f.question(t, bob)
	a := f.answer(t, carol, q.ID)
	f.vote(t, carol, q.Ref(), models.Upvote)
	logBefore := len(f.store.Interactions())

	f.store.SetHook(func(ctx context.Context, op string, tx ledger.Tx) error {
		if op == "DeleteTarget" {
			return assert.AnError
		}
		return nil
	})
	_, err := f.svc.DeleteContent(as(bob), q.Ref())
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindInternal))
	f.store.SetHook(nil)

	_, ok := f.store.Answer(a.ID)
	assert.True(t, ok)
	assert.Len(t, f.store.Votes(), 1)
	assert.Len(t, f.store.Interactions(), logBefore)
	f.requireCountersMatchVotes(t, q.Ref())
}

func TestDeleteContent_LocksBeforeReadingVotes(t *testing.T) {
	f := newFixture(t)
	bob := f.store.AddUser("bob")
	carol := f.store.AddUser("carol")
	q := f.question(t, bob)
	f.answer(t, carol, q.ID)

	var ops []string
	f.store.SetHook(func(ctx context.Context, op string, tx ledger.Tx) error {
		ops = append(ops, op)
		return nil
	})
	_, err := f.svc.DeleteContent(as(bob), q.Ref())
	f.store.SetHook(nil)
	require.NoError(t, err)

	require.NotEmpty(t, ops)
	assert.Equal(t, "LockTarget", ops[0])
	assert.NotContains(t, ops, "Target")
	assert.Contains(t, ops, "AnswersOf")
	assert.Less(t, slices.Index(ops, "AnswersOf"), slices.Index(ops, "VotesOn"))
}
