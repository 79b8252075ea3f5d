package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Points is the reputation change produced by one interaction.
type Points struct {
	Performer int
	Author    int
}

// ReversalContext names who acted and whose content was acted on. Forward
// records and their reversals carry the same value, so the two sides cannot
// be swapped on the undo path.
type ReversalContext struct {
	ActingUser    uuid.UUID
	ContentAuthor uuid.UUID
}

func (rc ReversalContext) SelfAction() bool {
	return rc.ActingUser == rc.ContentAuthor
}

type pointRow struct {
	performer      int
	authorQuestion int
	authorAnswer   int
}

var pointTable = map[models.Action]pointRow{
	models.ActionUpvote:         {performer: 2, authorQuestion: 10, authorAnswer: 10},
	models.ActionDownvote:       {performer: -1, authorQuestion: -2, authorAnswer: -2},
	models.ActionRemoveUpvote:   {performer: -2, authorQuestion: -10, authorAnswer: -10},
	models.ActionRemoveDownvote: {performer: 1, authorQuestion: 2, authorAnswer: 2},
	models.ActionPost:           {performer: 0, authorQuestion: 5, authorAnswer: 10},
	models.ActionDelete:         {performer: 0, authorQuestion: -5, authorAnswer: -10},
}

// Delta computes the reputation change for an action on content of the given
// kind. When the performer is the author only the author points apply; the
// performer side is zeroed so one identity is never adjusted twice.
func Delta(action models.Action, kind models.TargetKind, performerIsAuthor bool) (Points, error) {
	if !action.Valid() {
		return Points{}, ValidationError(fmt.Sprintf("unknown action %q", action))
	}
	row, ok := pointTable[action]
	if !ok {
		return Points{}, ValidationError(fmt.Sprintf("action %q has no reputation rule", action))
	}

	var p Points
	switch kind {
	case models.KindQuestion:
		p = Points{Performer: row.performer, Author: row.authorQuestion}
	case models.KindAnswer:
		p = Points{Performer: row.performer, Author: row.authorAnswer}
	default:
		return Points{}, ValidationError(fmt.Sprintf("unknown target kind %q", kind))
	}

	if performerIsAuthor {
		p.Performer = 0
	}
	return p, nil
}

// Changes expands points into per-user deltas, dropping zero entries.
func (p Points) Changes(rc ReversalContext) map[uuid.UUID]int {
	changes := make(map[uuid.UUID]int, 2)
	if rc.SelfAction() {
		if p.Author != 0 {
			changes[rc.ContentAuthor] = p.Author
		}
		return changes
	}
	if p.Performer != 0 {
		changes[rc.ActingUser] = p.Performer
	}
	if p.Author != 0 {
		changes[rc.ContentAuthor] = p.Author
	}
	return changes
}
