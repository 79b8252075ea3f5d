package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

func TestDelta(t *testing.T) {
	tests := []struct {
		name   string
		action models.Action
		kind   models.TargetKind
		self   bool
		want   Points
	}{
		{"upvote question", models.ActionUpvote, models.KindQuestion, false, Points{Performer: 2, Author: 10}},
		{"upvote answer", models.ActionUpvote, models.KindAnswer, false, Points{Performer: 2, Author: 10}},
		{"downvote question", models.ActionDownvote, models.KindQuestion, false, Points{Performer: -1, Author: -2}},
		{"remove upvote", models.ActionRemoveUpvote, models.KindAnswer, false, Points{Performer: -2, Author: -10}},
		{"remove downvote", models.ActionRemoveDownvote, models.KindQuestion, false, Points{Performer: 1, Author: 2}},
		{"post question", models.ActionPost, models.KindQuestion, true, Points{Author: 5}},
		{"post answer", models.ActionPost, models.KindAnswer, true, Points{Author: 10}},
		{"delete question", models.ActionDelete, models.KindQuestion, true, Points{Author: -5}},
		{"delete answer", models.ActionDelete, models.KindAnswer, true, Points{Author: -10}},
		{"self upvote keeps author side only", models.ActionUpvote, models.KindQuestion, true, Points{Author: 10}},
		{"self downvote keeps author side only", models.ActionDownvote, models.KindAnswer, true, Points{Author: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Delta(tt.action, tt.kind, tt.self)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDelta_Rejects(t *testing.T) {
	for _, action := range []models.Action{models.ActionView, models.ActionBookmark, models.ActionEdit, models.ActionSearch, models.ActionRemoveBookmark, "bogus"} {
		_, err := Delta(action, models.KindQuestion, false)
		assert.True(t, IsKind(err, KindValidation), "action %q", action)
	}

	_, err := Delta(models.ActionUpvote, "comment", false)
	assert.True(t, IsKind(err, KindValidation))
}

func TestDelta_UnknownActionIsNotAPointRule(t *testing.T) {
	_, err := Delta("bogus", models.KindQuestion, false)
	require.Error(t, err)
	assert.Equal(t, `unknown action "bogus"`, AsError(err).Message)

	_, err = Delta(models.ActionView, models.KindQuestion, false)
	require.Error(t, err)
	assert.Equal(t, `action "view" has no reputation rule`, AsError(err).Message)
}

func TestDelta_ForwardAndReversalCancel(t *testing.T) {
	pairs := map[models.Action]models.Action{
		models.ActionUpvote:   models.ActionRemoveUpvote,
		models.ActionDownvote: models.ActionRemoveDownvote,
		models.ActionPost:     models.ActionDelete,
	}
	for forward, reversal := range pairs {
		for _, kind := range []models.TargetKind{models.KindQuestion, models.KindAnswer} {
			f, err := Delta(forward, kind, false)
			require.NoError(t, err)
			r, err := Delta(reversal, kind, false)
			require.NoError(t, err)
			assert.Equal(t, 0, f.Performer+r.Performer, "%s/%s performer", forward, kind)
			assert.Equal(t, 0, f.Author+r.Author, "%s/%s author", forward, kind)
		}
	}
}

func TestPoints_Changes(t *testing.T) {
	voter, author := uuid.New(), uuid.New()

	changes := Points{Performer: 2, Author: 10}.Changes(ReversalContext{ActingUser: voter, ContentAuthor: author})
	assert.Equal(t, map[uuid.UUID]int{voter: 2, author: 10}, changes)

	changes = Points{Author: 10}.Changes(ReversalContext{ActingUser: author, ContentAuthor: author})
	assert.Equal(t, map[uuid.UUID]int{author: 10}, changes)

	changes = Points{Performer: 0, Author: 5}.Changes(ReversalContext{ActingUser: voter, ContentAuthor: author})
	assert.Equal(t, map[uuid.UUID]int{author: 5}, changes)
}
