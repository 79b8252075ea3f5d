package models

import (
	"fmt"

	"github.com/google/uuid"
)

// TargetKind discriminates the content types that can receive votes.
type TargetKind string

const (
	KindQuestion TargetKind = "question"
	KindAnswer   TargetKind = "answer"
)

func (k TargetKind) Valid() bool {
	switch k {
	case KindQuestion, KindAnswer:
		return true
	default:
		return false
	}
}

// TargetRef identifies a question or an answer.
type TargetRef struct {
	ID   uuid.UUID  `json:"id"`
	Kind TargetKind `json:"kind"`
}

func (r TargetRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// Target is the vote-relevant view of a question or answer.
type Target struct {
	Ref        TargetRef
	AuthorID   uuid.UUID
	Upvotes    int
	Downvotes  int
	QuestionID uuid.UUID // parent question, answers only
}

// CounterField names a denormalized counter column on content.
type CounterField string

const (
	CounterUpvotes   CounterField = "upvotes"
	CounterDownvotes CounterField = "downvotes"
	CounterAnswers   CounterField = "answers"
)
