package models

import (
	"time"

	"github.com/google/uuid"
)

type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

func (v VoteType) Valid() bool {
	return v == Upvote || v == Downvote
}

// Action is the interaction logged when a vote of this type is cast.
func (v VoteType) Action() Action {
	if v == Upvote {
		return ActionUpvote
	}
	return ActionDownvote
}

// Removal is the interaction logged when a vote of this type is withdrawn.
func (v VoteType) Removal() Action {
	if v == Upvote {
		return ActionRemoveUpvote
	}
	return ActionRemoveDownvote
}

func (v VoteType) Counter() CounterField {
	if v == Upvote {
		return CounterUpvotes
	}
	return CounterDownvotes
}

// Vote is one user's current stance on one target. At most one exists per
// (author, target); it is flipped in place or deleted, never duplicated.
type Vote struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AuthorID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_votes_author_target,priority:1" json:"author_id"`
	TargetID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_votes_author_target,priority:2;index:idx_votes_target,priority:1" json:"target_id"`
	TargetKind TargetKind `gorm:"type:varchar(16);not null;uniqueIndex:idx_votes_author_target,priority:3;index:idx_votes_target,priority:2" json:"target_kind"`
	VoteType   VoteType   `gorm:"type:varchar(16);not null" json:"vote_type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (v Vote) Target() TargetRef {
	return TargetRef{ID: v.TargetID, Kind: v.TargetKind}
}
