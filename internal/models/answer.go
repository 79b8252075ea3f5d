package models

import (
	"time"

	"github.com/google/uuid"
)

type Answer struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	AuthorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`
	Content    string    `gorm:"not null" json:"content"`
	Upvotes    int       `gorm:"not null;default:0" json:"upvotes"`
	Downvotes  int       `gorm:"not null;default:0" json:"downvotes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a Answer) Ref() TargetRef {
	return TargetRef{ID: a.ID, Kind: KindAnswer}
}

type CreateAnswerRequest struct {
	Content string `json:"content" binding:"required"`
}

// AnswerFilter selects the order of a question's answer listing.
type AnswerFilter string

const (
	AnswersLatest  AnswerFilter = "latest"
	AnswersOldest  AnswerFilter = "oldest"
	AnswersPopular AnswerFilter = "popular"
)

// AnswerPage is one window over a question's answers.
type AnswerPage struct {
	Filter AnswerFilter
	Offset int
	Limit  int
}
