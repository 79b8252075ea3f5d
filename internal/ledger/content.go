package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Content creates and deletes questions and answers, keeping their post
// records, answer counters and reputation in step.
type Content struct {
	tx       txRunner
	recorder *Recorder
	now      func() time.Time
}

func NewContent(store Store, recorder *Recorder, maxRetries int) *Content {
	return &Content{
		tx:       txRunner{store: store, maxRetries: maxRetries},
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CascadeSummary counts what one DeleteContent call removed.
type CascadeSummary struct {
	Answers   int `json:"answers"`
	Votes     int `json:"votes"`
	Reversals int `json:"reversals"`
}

func (c *Content) PostQuestion(ctx context.Context, userID uuid.UUID, title, body string) (*models.Question, error) {
	if userID == uuid.Nil {
		return nil, Unauthorized("sign in to ask a question")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ValidationError("title is required")
	}

	now := c.now()
	question := &models.Question{
		ID:        uuid.New(),
		Title:     title,
		Content:   body,
		AuthorID:  userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := c.tx.run(ctx, "post_question", func(ctx context.Context, tx Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.InsertQuestion(ctx, question); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		_, err := c.recorder.Record(ctx, tx, models.ActionPost, question.Ref(), selfContext(userID))
		return err
	})
	if err != nil {
		return nil, contentError("post question", err)
	}
	return question, nil
}

func (c *Content) PostAnswer(ctx context.Context, userID, questionID uuid.UUID, body string) (*models.Answer, error) {
	if userID == uuid.Nil {
		return nil, Unauthorized("sign in to answer")
	}
	if strings.TrimSpace(body) == "" {
		return nil, ValidationError("answer content is required")
	}

	now := c.now()
	answer := &models.Answer{
		ID:         uuid.New(),
		QuestionID: questionID,
		AuthorID:   userID,
		Content:    body,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	questionRef := models.TargetRef{ID: questionID, Kind: models.KindQuestion}

	err := c.tx.run(ctx, "post_answer", func(ctx context.Context, tx Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.Target(ctx, questionRef); err != nil {
			if isNotFound(err) {
				return NotFound("question not found", err)
			}
			return err
		}
		if err := tx.InsertAnswer(ctx, answer); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if err := tx.IncrementCounter(ctx, questionRef, models.CounterAnswers, 1); err != nil {
			if errors.Is(err, ErrTargetNotFound) {
				return NotFound("question not found", err)
			}
			return fmt.Errorf("increment answers on %s: %w", questionRef, err)
		}
		_, err := c.recorder.Record(ctx, tx, models.ActionPost, answer.Ref(), selfContext(userID))
		return err
	})
	if err != nil {
		return nil, contentError("post answer", err)
	}
	return answer, nil
}

// DeleteContent removes a question or answer together with everything that
// hangs off it. Every live vote is withdrawn through the recorder so its
// reputation is reversed for both voter and author, and the content's own
// post record is reversed last. Only the author may delete. The target and
// its answers are locked before their votes are read, so a vote or answer
// racing the delete either lands first and is withdrawn, or fails.
func (c *Content) DeleteContent(ctx context.Context, userID uuid.UUID, target models.TargetRef) (*CascadeSummary, error) {
	if userID == uuid.Nil {
		return nil, Unauthorized("sign in to delete content")
	}
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	var summary *CascadeSummary
	err := c.tx.run(ctx, "delete_content", func(ctx context.Context, tx Tx) error {
		summary = &CascadeSummary{}

		t, err := tx.LockTarget(ctx, target)
		if err != nil {
			if isNotFound(err) {
				return NotFound(fmt.Sprintf("%s not found", target), err)
			}
			return err
		}
		if t.AuthorID != userID {
			return Forbidden("only the author can delete this content").
				WithField("target", target.String())
		}

		switch t.Ref.Kind {
		case models.KindAnswer:
			return c.deleteAnswer(ctx, tx, t, summary)
		case models.KindQuestion:
			return c.deleteQuestion(ctx, tx, t, summary)
		default:
			return ValidationError(fmt.Sprintf("unknown target kind %q", t.Ref.Kind))
		}
	})
	if err != nil {
		return nil, contentError("delete content", err)
	}

	zap.L().Info("content deleted",
		zap.String("target", target.String()),
		zap.String("user_id", userID.String()),
		zap.Int("answers", summary.Answers),
		zap.Int("votes", summary.Votes),
	)
	return summary, nil
}

func (c *Content) deleteQuestion(ctx context.Context, tx Tx, q *models.Target, summary *CascadeSummary) error {
	answers, err := tx.AnswersOf(ctx, q.Ref.ID)
	if err != nil {
		return fmt.Errorf("list answers of %s: %w", q.Ref, err)
	}
	for _, a := range answers {
		t := &models.Target{
			Ref:        a.Ref(),
			AuthorID:   a.AuthorID,
			Upvotes:    a.Upvotes,
			Downvotes:  a.Downvotes,
			QuestionID: a.QuestionID,
		}
		if err := c.deleteAnswer(ctx, tx, t, summary); err != nil {
			return err
		}
	}

	if err := c.withdrawVotes(ctx, tx, q, summary); err != nil {
		return err
	}
	return c.deleteTarget(ctx, tx, q, summary)
}

func (c *Content) deleteAnswer(ctx context.Context, tx Tx, a *models.Target, summary *CascadeSummary) error {
	if err := c.withdrawVotes(ctx, tx, a, summary); err != nil {
		return err
	}

	parent := models.TargetRef{ID: a.QuestionID, Kind: models.KindQuestion}
	if err := tx.IncrementCounter(ctx, parent, models.CounterAnswers, -1); err != nil {
		return fmt.Errorf("decrement answers on %s: %w", parent, err)
	}
	if err := c.deleteTarget(ctx, tx, a, summary); err != nil {
		return err
	}
	summary.Answers++
	return nil
}

// withdrawVotes deletes every live vote on t. Each reversal is attributed to
// the voter so both sides of the original vote are undone.
func (c *Content) withdrawVotes(ctx context.Context, tx Tx, t *models.Target, summary *CascadeSummary) error {
	votes, err := tx.VotesOn(ctx, t.Ref)
	if err != nil {
		return fmt.Errorf("list votes on %s: %w", t.Ref, err)
	}
	for _, v := range votes {
		if err := tx.DeleteVote(ctx, v.ID); err != nil {
			return fmt.Errorf("delete vote %s: %w", v.ID, err)
		}
		rc := ReversalContext{ActingUser: v.AuthorID, ContentAuthor: t.AuthorID}
		if _, err := c.recorder.Remove(ctx, tx, v.VoteType.Removal(), t.Ref, rc); err != nil {
			return err
		}
		summary.Votes++
		summary.Reversals++
	}
	return nil
}

func (c *Content) deleteTarget(ctx context.Context, tx Tx, t *models.Target, summary *CascadeSummary) error {
	if err := tx.DeleteTarget(ctx, t.Ref); err != nil {
		return fmt.Errorf("delete %s: %w", t.Ref, err)
	}
	if _, err := c.recorder.Remove(ctx, tx, models.ActionDelete, t.Ref, selfContext(t.AuthorID)); err != nil {
		return err
	}
	summary.Reversals++
	return nil
}

func requireUser(ctx context.Context, tx Tx, userID uuid.UUID) error {
	if _, err := tx.User(ctx, userID); err != nil {
		if isNotFound(err) {
			return Unauthorized("unknown user").WithField("user_id", userID.String())
		}
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}

func selfContext(userID uuid.UUID) ReversalContext {
	return ReversalContext{ActingUser: userID, ContentAuthor: userID}
}

func contentError(op string, err error) error {
	if passthrough(err) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(op+" failed", err)
}
