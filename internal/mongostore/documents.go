package mongostore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Documents keep ids as canonical uuid strings.

type userDoc struct {
	ID         string    `bson:"_id"`
	Username   string    `bson:"username"`
	Name       string    `bson:"name"`
	Reputation int       `bson:"reputation"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type questionDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	AuthorID  string    `bson:"author_id"`
	Upvotes   int       `bson:"upvotes"`
	Downvotes int       `bson:"downvotes"`
	Answers   int       `bson:"answers"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type answerDoc struct {
	ID         string    `bson:"_id"`
	QuestionID string    `bson:"question_id"`
	AuthorID   string    `bson:"author_id"`
	Content    string    `bson:"content"`
	Upvotes    int       `bson:"upvotes"`
	Downvotes  int       `bson:"downvotes"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type voteDoc struct {
	ID         string    `bson:"_id"`
	AuthorID   string    `bson:"author_id"`
	TargetID   string    `bson:"target_id"`
	TargetKind string    `bson:"target_kind"`
	VoteType   string    `bson:"vote_type"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type interactionDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Action       string    `bson:"action"`
	ActionID     string    `bson:"action_id"`
	ActionType   string    `bson:"action_type"`
	VoteAuthorID *string   `bson:"vote_author_id"`
	ReversesID   *string   `bson:"reverses_id,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

func fromUser(u *models.User) userDoc {
	return userDoc{
		ID:         u.ID.String(),
		Username:   u.Username,
		Name:       u.Name,
		Reputation: u.Reputation,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (d userDoc) model() (*models.User, error) {
	id, err := parseID("user", d.ID)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:         id,
		Username:   d.Username,
		Name:       d.Name,
		Reputation: d.Reputation,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func fromQuestion(q *models.Question) questionDoc {
	return questionDoc{
		ID:        q.ID.String(),
		Title:     q.Title,
		Content:   q.Content,
		AuthorID:  q.AuthorID.String(),
		Upvotes:   q.Upvotes,
		Downvotes: q.Downvotes,
		Answers:   q.Answers,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

func (d questionDoc) target() (*models.Target, error) {
	id, err := parseID("question", d.ID)
	if err != nil {
		return nil, err
	}
	author, err := parseID("question author", d.AuthorID)
	if err != nil {
		return nil, err
	}
	return &models.Target{
		Ref:       models.TargetRef{ID: id, Kind: models.KindQuestion},
		AuthorID:  author,
		Upvotes:   d.Upvotes,
		Downvotes: d.Downvotes,
	}, nil
}

func (d questionDoc) model() (*models.Question, error) {
	t, err := d.target()
	if err != nil {
		return nil, err
	}
	return &models.Question{
		ID:        t.Ref.ID,
		Title:     d.Title,
		Content:   d.Content,
		AuthorID:  t.AuthorID,
		Upvotes:   d.Upvotes,
		Downvotes: d.Downvotes,
		Answers:   d.Answers,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func fromAnswer(a *models.Answer) answerDoc {
	return answerDoc{
		ID:         a.ID.String(),
		QuestionID: a.QuestionID.String(),
		AuthorID:   a.AuthorID.String(),
		Content:    a.Content,
		Upvotes:    a.Upvotes,
		Downvotes:  a.Downvotes,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (d answerDoc) model() (*models.Answer, error) {
	id, err := parseID("answer", d.ID)
	if err != nil {
		return nil, err
	}
	question, err := parseID("answer question", d.QuestionID)
	if err != nil {
		return nil, err
	}
	author, err := parseID("answer author", d.AuthorID)
	if err != nil {
		return nil, err
	}
	return &models.Answer{
		ID:         id,
		QuestionID: question,
		AuthorID:   author,
		Content:    d.Content,
		Upvotes:    d.Upvotes,
		Downvotes:  d.Downvotes,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func fromVote(v *models.Vote) voteDoc {
	return voteDoc{
		ID:         v.ID.String(),
		AuthorID:   v.AuthorID.String(),
		TargetID:   v.TargetID.String(),
		TargetKind: string(v.TargetKind),
		VoteType:   string(v.VoteType),
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
}

func (d voteDoc) model() (*models.Vote, error) {
	id, err := parseID("vote", d.ID)
	if err != nil {
		return nil, err
	}
	author, err := parseID("vote author", d.AuthorID)
	if err != nil {
		return nil, err
	}
	target, err := parseID("vote target", d.TargetID)
	if err != nil {
		return nil, err
	}
	return &models.Vote{
		ID:         id,
		AuthorID:   author,
		TargetID:   target,
		TargetKind: models.TargetKind(d.TargetKind),
		VoteType:   models.VoteType(d.VoteType),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func fromInteraction(i *models.Interaction) interactionDoc {
	return interactionDoc{
		ID:           i.ID.String(),
		UserID:       i.UserID.String(),
		Action:       string(i.Action),
		ActionID:     i.ActionID.String(),
		ActionType:   string(i.ActionType),
		VoteAuthorID: optionalString(i.VoteAuthorID),
		ReversesID:   optionalString(i.ReversesID),
		CreatedAt:    i.CreatedAt,
	}
}

func (d interactionDoc) model() (*models.Interaction, error) {
	id, err := parseID("interaction", d.ID)
	if err != nil {
		return nil, err
	}
	user, err := parseID("interaction user", d.UserID)
	if err != nil {
		return nil, err
	}
	action, err := parseID("interaction target", d.ActionID)
	if err != nil {
		return nil, err
	}
	i := &models.Interaction{
		ID:         id,
		UserID:     user,
		Action:     models.Action(d.Action),
		ActionID:   action,
		ActionType: models.TargetKind(d.ActionType),
		CreatedAt:  d.CreatedAt,
	}
	if i.VoteAuthorID, err = optionalID(d.VoteAuthorID); err != nil {
		return nil, err
	}
	if i.ReversesID, err = optionalID(d.ReversesID); err != nil {
		return nil, err
	}
	return i, nil
}

func parseID(what, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode %s id %q: %w", what, s, err)
	}
	return id, nil
}

func optionalString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func optionalID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
