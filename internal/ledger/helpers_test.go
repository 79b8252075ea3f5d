package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger/ledgertest"
	"github.com/emilythestrangee/devoverflow/backend/internal/metrics"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

type fixture struct {
	store *ledgertest.Store
	svc   *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.New()
	return &fixture{
		store: store,
		svc:   ledger.NewService(store, metrics.NewLedgerMetrics(prometheus.NewRegistry()), ledger.DefaultMaxRetries),
	}
}

func as(user models.User) context.Context {
	return ledger.WithIdentity(context.Background(), user.ID)
}

func (f *fixture) question(t *testing.T, author models.User) models.Question {
	t.Helper()
	q, err := f.svc.PostQuestion(as(author), "How do I undo a vote?", "Asking for a friend.")
	require.NoError(t, err)
	return *q
}

func (f *fixture) answer(t *testing.T, author models.User, questionID uuid.UUID) models.Answer {
	t.Helper()
	a, err := f.svc.PostAnswer(as(author), questionID, "Click it again.")
	require.NoError(t, err)
	return *a
}

func (f *fixture) vote(t *testing.T, voter models.User, ref models.TargetRef, vt models.VoteType) *ledger.Outcome {
	t.Helper()
	out, err := f.svc.SubmitVote(as(voter), voteRequest(ref, vt))
	require.NoError(t, err)
	return out
}

func (f *fixture) reputation(t *testing.T, id uuid.UUID) int {
	t.Helper()
	u, ok := f.store.User(id)
	require.True(t, ok, "user %s", id)
	return u.Reputation
}

// requireReplayMatches sums every logged interaction's delta and compares
// the result with stored reputation.
func (f *fixture) requireReplayMatches(t *testing.T) {
	t.Helper()
	replayed := make(map[uuid.UUID]int)
	for _, i := range f.store.Interactions() {
		rc := ledger.ReversalContext{ActingUser: i.UserID, ContentAuthor: i.UserID}
		if i.VoteAuthorID != nil {
			rc.ActingUser = *i.VoteAuthorID
		}
		points, err := ledger.Delta(i.Action, i.ActionType, rc.SelfAction())
		require.NoError(t, err)
		for id, d := range points.Changes(rc) {
			replayed[id] += d
		}
	}
	for _, u := range f.store.Users() {
		require.Equal(t, u.Reputation, replayed[u.ID], "replayed reputation of %s", u.Username)
	}
}

// requireCountersMatchVotes checks denormalized counters against live votes.
func (f *fixture) requireCountersMatchVotes(t *testing.T, ref models.TargetRef) {
	t.Helper()
	up, down := 0, 0
	for _, v := range f.store.Votes() {
		if v.Target() != ref {
			continue
		}
		if v.VoteType == models.Upvote {
			up++
		} else {
			down++
		}
	}

	var gotUp, gotDown int
	switch ref.Kind {
	case models.KindQuestion:
		q, ok := f.store.Question(ref.ID)
		require.True(t, ok)
		gotUp, gotDown = q.Upvotes, q.Downvotes
	case models.KindAnswer:
		a, ok := f.store.Answer(ref.ID)
		require.True(t, ok)
		gotUp, gotDown = a.Upvotes, a.Downvotes
	}
	require.Equal(t, up, gotUp, "upvotes on %s", ref)
	require.Equal(t, down, gotDown, "downvotes on %s", ref)
}

func voteRequest(ref models.TargetRef, vt models.VoteType) ledger.VoteRequest {
	return ledger.VoteRequest{
		TargetID:   ref.ID.String(),
		TargetType: string(ref.Kind),
		VoteType:   string(vt),
	}
}
