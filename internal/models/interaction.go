package models

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionView           Action = "view"
	ActionUpvote         Action = "upvote"
	ActionDownvote       Action = "downvote"
	ActionBookmark       Action = "bookmark"
	ActionPost           Action = "post"
	ActionEdit           Action = "edit"
	ActionDelete         Action = "delete"
	ActionSearch         Action = "search"
	ActionRemoveUpvote   Action = "remove-upvote"
	ActionRemoveDownvote Action = "remove-downvote"
	ActionRemoveBookmark Action = "remove-bookmark"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionUpvote, ActionDownvote, ActionBookmark, ActionPost,
		ActionEdit, ActionDelete, ActionSearch, ActionRemoveUpvote,
		ActionRemoveDownvote, ActionRemoveBookmark:
		return true
	default:
		return false
	}
}

// Forward returns the action a reversal undoes.
func (a Action) Forward() (Action, bool) {
	switch a {
	case ActionRemoveUpvote:
		return ActionUpvote, true
	case ActionRemoveDownvote:
		return ActionDownvote, true
	case ActionDelete:
		return ActionPost, true
	case ActionRemoveBookmark:
		return ActionBookmark, true
	default:
		return "", false
	}
}

func (a Action) IsVote() bool {
	switch a {
	case ActionUpvote, ActionDownvote, ActionRemoveUpvote, ActionRemoveDownvote:
		return true
	default:
		return false
	}
}

// Interaction is an append-only audit record. UserID is the user the record
// is attributed to (the content author); VoteAuthorID names the voter on
// vote-originated records. ReversesID links a reversal to the forward record
// it undoes.
type Interaction struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_interactions_user,priority:1" json:"user"`
	Action       Action     `gorm:"type:varchar(32);not null;index:idx_interactions_action,priority:3" json:"action"`
	ActionID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_interactions_action,priority:1" json:"action_id"`
	ActionType   TargetKind `gorm:"type:varchar(16);not null;index:idx_interactions_action,priority:2" json:"action_type"`
	VoteAuthorID *uuid.UUID `gorm:"type:uuid" json:"vote_author_id,omitempty"`
	ReversesID   *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"reverses_id,omitempty"`
	CreatedAt    time.Time  `gorm:"index:idx_interactions_user,priority:2" json:"created_at"`
}

func (i Interaction) Target() TargetRef {
	return TargetRef{ID: i.ActionID, Kind: i.ActionType}
}

// InteractionMatch is the full attribute tuple a reversal uses to find the
// forward record it undoes.
type InteractionMatch struct {
	UserID       uuid.UUID
	Action       Action
	ActionID     uuid.UUID
	ActionType   TargetKind
	VoteAuthorID *uuid.UUID
}

func (m InteractionMatch) Target() TargetRef {
	return TargetRef{ID: m.ActionID, Kind: m.ActionType}
}

func (m InteractionMatch) Matches(i Interaction) bool {
	if i.UserID != m.UserID || i.Action != m.Action || i.Target() != m.Target() {
		return false
	}
	if m.VoteAuthorID == nil || i.VoteAuthorID == nil {
		return m.VoteAuthorID == nil && i.VoteAuthorID == nil
	}
	return *m.VoteAuthorID == *i.VoteAuthorID
}
