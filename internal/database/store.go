package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// WithTx runs fn in a READ COMMITTED transaction. Rows that decide a
// transition are read with FOR UPDATE; counters and reputation are changed
// with relative updates so concurrent transactions never overwrite each
// other.
func (s *service) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &tx{db: db})
	})
	return translate(err, nil)
}

type tx struct {
	db *gorm.DB
}

func (t *tx) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := t.db.Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, translate(err, ledger.ErrUserNotFound)
	}
	return &u, nil
}

func (t *tx) InsertUser(ctx context.Context, user *models.User) error {
	return translate(t.db.Create(user).Error, nil)
}

// AdjustReputation applies every delta in one UPDATE. Rows are addressed in
// id order so concurrent adjustments lock users in the same order.
func (t *tx) AdjustReputation(ctx context.Context, deltas map[uuid.UUID]int) error {
	if len(deltas) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var expr strings.Builder
	args := make([]any, 0, 2*len(ids))
	expr.WriteString("reputation + CASE id")
	for _, id := range ids {
		expr.WriteString(" WHEN ?::uuid THEN ?::integer")
		args = append(args, id, deltas[id])
	}
	expr.WriteString(" ELSE 0 END")

	res := t.db.Model(&models.User{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"reputation": gorm.Expr(expr.String(), args...),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("adjusted %d of %d users: %w", res.RowsAffected, len(ids), ledger.ErrUserNotFound)
	}
	return nil
}

func (t *tx) Target(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	return t.target(t.db, ref)
}

// LockTarget reads the row FOR UPDATE. A concurrent vote or answer blocks on
// its counter update until the lock holder commits, then finds the row gone
// if the holder deleted it.
func (t *tx) LockTarget(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	return t.target(t.db.Clauses(clause.Locking{Strength: "UPDATE"}), ref)
}

func (t *tx) target(db *gorm.DB, ref models.TargetRef) (*models.Target, error) {
	switch ref.Kind {
	case models.KindQuestion:
		var q models.Question
		if err := db.Where("id = ?", ref.ID).Take(&q).Error; err != nil {
			return nil, translate(err, ledger.ErrTargetNotFound)
		}
		return &models.Target{Ref: ref, AuthorID: q.AuthorID, Upvotes: q.Upvotes, Downvotes: q.Downvotes}, nil
	case models.KindAnswer:
		var a models.Answer
		if err := db.Where("id = ?", ref.ID).Take(&a).Error; err != nil {
			return nil, translate(err, ledger.ErrTargetNotFound)
		}
		return &models.Target{Ref: ref, AuthorID: a.AuthorID, Upvotes: a.Upvotes, Downvotes: a.Downvotes, QuestionID: a.QuestionID}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", ref.Kind)
	}
}

func (t *tx) Question(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var q models.Question
	if err := t.db.Where("id = ?", id).Take(&q).Error; err != nil {
		return nil, translate(err, ledger.ErrTargetNotFound)
	}
	return &q, nil
}

func (t *tx) InsertQuestion(ctx context.Context, q *models.Question) error {
	return translate(t.db.Create(q).Error, nil)
}

func (t *tx) InsertAnswer(ctx context.Context, a *models.Answer) error {
	return translate(t.db.Create(a).Error, nil)
}

func (t *tx) AnswersOf(ctx context.Context, questionID uuid.UUID) ([]models.Answer, error) {
	var answers []models.Answer
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("question_id = ?", questionID).
		Order("created_at, id").
		Find(&answers).Error
	return answers, translate(err, nil)
}

func (t *tx) ListAnswers(ctx context.Context, questionID uuid.UUID, page models.AnswerPage) ([]models.Answer, int64, error) {
	order, err := answerOrder(page.Filter)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := t.db.Model(&models.Answer{}).Where("question_id = ?", questionID).Count(&total).Error; err != nil {
		return nil, 0, translate(err, nil)
	}

	var answers []models.Answer
	err = t.db.Where("question_id = ?", questionID).
		Order(order).
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&answers).Error
	if err != nil {
		return nil, 0, translate(err, nil)
	}
	return answers, total, nil
}

func (t *tx) DeleteTarget(ctx context.Context, ref models.TargetRef) error {
	model, err := contentModel(ref.Kind)
	if err != nil {
		return err
	}
	res := t.db.Where("id = ?", ref.ID).Delete(model)
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrTargetNotFound
	}
	return nil
}

// IncrementCounter adds delta in place. The guard keeps the column from
// going negative; when it blocks the update the row is counted to tell an
// underflow from a missing target.
func (t *tx) IncrementCounter(ctx context.Context, ref models.TargetRef, field models.CounterField, delta int) error {
	model, err := contentModel(ref.Kind)
	if err != nil {
		return err
	}
	column, err := counterColumn(ref.Kind, field)
	if err != nil {
		return err
	}

	res := t.db.Model(model).
		Where("id = ?", ref.ID).
		Where(column+" + ? >= 0", delta).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := t.db.Model(model).Where("id = ?", ref.ID).Count(&n).Error; err != nil {
		return translate(err, nil)
	}
	if n == 0 {
		return ledger.ErrTargetNotFound
	}
	return ledger.ErrCounterUnderflow
}

func (t *tx) FindVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	var v models.Vote
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("author_id = ? AND target_id = ? AND target_kind = ?", authorID, ref.ID, ref.Kind).
		Take(&v).Error
	if err != nil {
		return nil, translate(err, ledger.ErrRecordNotFound)
	}
	return &v, nil
}

func (t *tx) LookupVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	var v models.Vote
	err := t.db.Where("author_id = ? AND target_id = ? AND target_kind = ?", authorID, ref.ID, ref.Kind).
		Take(&v).Error
	if err != nil {
		return nil, translate(err, ledger.ErrRecordNotFound)
	}
	return &v, nil
}

func (t *tx) VotesOn(ctx context.Context, ref models.TargetRef) ([]models.Vote, error) {
	var votes []models.Vote
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("target_id = ? AND target_kind = ?", ref.ID, ref.Kind).
		Order("created_at, id").
		Find(&votes).Error
	return votes, translate(err, nil)
}

func (t *tx) InsertVote(ctx context.Context, v *models.Vote) error {
	return translate(t.db.Create(v).Error, nil)
}

func (t *tx) UpdateVoteType(ctx context.Context, voteID uuid.UUID, voteType models.VoteType) error {
	res := t.db.Model(&models.Vote{}).
		Where("id = ?", voteID).
		Updates(map[string]any{"vote_type": voteType, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

func (t *tx) DeleteVote(ctx context.Context, voteID uuid.UUID) error {
	res := t.db.Where("id = ?", voteID).Delete(&models.Vote{})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

func (t *tx) InsertInteraction(ctx context.Context, i *models.Interaction) error {
	return translate(t.db.Create(i).Error, nil)
}

func (t *tx) FindUnreversed(ctx context.Context, m models.InteractionMatch) (*models.Interaction, error) {
	q := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND action = ? AND action_id = ? AND action_type = ?", m.UserID, m.Action, m.ActionID, m.ActionType).
		Where("NOT EXISTS (SELECT 1 FROM interactions r WHERE r.reverses_id = interactions.id)")
	if m.VoteAuthorID != nil {
		q = q.Where("vote_author_id = ?", *m.VoteAuthorID)
	} else {
		q = q.Where("vote_author_id IS NULL")
	}

	var i models.Interaction
	if err := q.Order("created_at, id").Take(&i).Error; err != nil {
		return nil, translate(err, ledger.ErrRecordNotFound)
	}
	return &i, nil
}

func (t *tx) InteractionsOf(ctx context.Context, userID uuid.UUID) ([]models.Interaction, error) {
	var out []models.Interaction
	err := t.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&out).Error
	return out, translate(err, nil)
}

func contentModel(kind models.TargetKind) (any, error) {
	switch kind {
	case models.KindQuestion:
		return &models.Question{}, nil
	case models.KindAnswer:
		return &models.Answer{}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", kind)
	}
}

func answerOrder(filter models.AnswerFilter) (string, error) {
	switch filter {
	case models.AnswersLatest:
		return "created_at DESC, id DESC", nil
	case models.AnswersOldest:
		return "created_at, id", nil
	case models.AnswersPopular:
		return "upvotes DESC, created_at DESC, id DESC", nil
	default:
		return "", fmt.Errorf("unknown answer filter %q", filter)
	}
}

func counterColumn(kind models.TargetKind, field models.CounterField) (string, error) {
	switch field {
	case models.CounterUpvotes, models.CounterDownvotes:
		return string(field), nil
	case models.CounterAnswers:
		if kind == models.KindQuestion {
			return string(field), nil
		}
	}
	return "", errors.New("no counter " + string(field) + " on " + string(kind))
}
