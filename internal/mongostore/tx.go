package mongostore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// tx runs every operation with the session context handed to it, which
// binds the operation to the enclosing transaction.
type tx struct {
	db *mongo.Database
}

func (t *tx) coll(name string) *mongo.Collection {
	return t.db.Collection(name)
}

func (t *tx) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc userDoc
	if err := t.coll(collUsers).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, translate(err, ledger.ErrUserNotFound)
	}
	return doc.model()
}

func (t *tx) InsertUser(ctx context.Context, user *models.User) error {
	_, err := t.coll(collUsers).InsertOne(ctx, fromUser(user))
	return translate(err, nil)
}

func (t *tx) AdjustReputation(ctx context.Context, deltas map[uuid.UUID]int) error {
	if len(deltas) == 0 {
		return nil
	}

	ids := make([]string, 0, len(deltas))
	byID := make(map[string]int, len(deltas))
	for id, d := range deltas {
		ids = append(ids, id.String())
		byID[id.String()] = d
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	ops := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{
				"$inc": bson.M{"reputation": byID[id]},
				"$set": bson.M{"updated_at": now},
			}))
	}

	res, err := t.coll(collUsers).BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return translate(err, nil)
	}
	if res.MatchedCount != int64(len(ids)) {
		return fmt.Errorf("adjusted %d of %d users: %w", res.MatchedCount, len(ids), ledger.ErrUserNotFound)
	}
	return nil
}

func (t *tx) Target(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	filter := bson.M{"_id": ref.ID.String()}
	switch ref.Kind {
	case models.KindQuestion:
		var doc questionDoc
		if err := t.coll(collQuestions).FindOne(ctx, filter).Decode(&doc); err != nil {
			return nil, translate(err, ledger.ErrTargetNotFound)
		}
		return doc.target()
	case models.KindAnswer:
		var doc answerDoc
		if err := t.coll(collAnswers).FindOne(ctx, filter).Decode(&doc); err != nil {
			return nil, translate(err, ledger.ErrTargetNotFound)
		}
		a, err := doc.model()
		if err != nil {
			return nil, err
		}
		return &models.Target{Ref: ref, AuthorID: a.AuthorID, Upvotes: a.Upvotes, Downvotes: a.Downvotes, QuestionID: a.QuestionID}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", ref.Kind)
	}
}

// LockTarget reads like Target. Snapshot transactions take no read locks; a
// concurrent writer of the same document aborts with a write conflict, which
// keeps a delete from missing a vote or answer committed after its snapshot.
func (t *tx) LockTarget(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	return t.Target(ctx, ref)
}

func (t *tx) Question(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var doc questionDoc
	if err := t.coll(collQuestions).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, translate(err, ledger.ErrTargetNotFound)
	}
	return doc.model()
}

func (t *tx) InsertQuestion(ctx context.Context, q *models.Question) error {
	_, err := t.coll(collQuestions).InsertOne(ctx, fromQuestion(q))
	return translate(err, nil)
}

func (t *tx) InsertAnswer(ctx context.Context, a *models.Answer) error {
	_, err := t.coll(collAnswers).InsertOne(ctx, fromAnswer(a))
	return translate(err, nil)
}

func (t *tx) AnswersOf(ctx context.Context, questionID uuid.UUID) ([]models.Answer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := t.coll(collAnswers).Find(ctx, bson.M{"question_id": questionID.String()}, opts)
	if err != nil {
		return nil, translate(err, nil)
	}
	return decodeAnswers(ctx, cursor)
}

func (t *tx) ListAnswers(ctx context.Context, questionID uuid.UUID, page models.AnswerPage) ([]models.Answer, int64, error) {
	order, err := answerSort(page.Filter)
	if err != nil {
		return nil, 0, err
	}

	filter := bson.M{"question_id": questionID.String()}
	total, err := t.coll(collAnswers).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, nil)
	}

	opts := options.Find().
		SetSort(order).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	cursor, err := t.coll(collAnswers).Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate(err, nil)
	}
	answers, err := decodeAnswers(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return answers, total, nil
}

func decodeAnswers(ctx context.Context, cursor *mongo.Cursor) ([]models.Answer, error) {
	var docs []answerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err, nil)
	}
	answers := make([]models.Answer, 0, len(docs))
	for _, d := range docs {
		a, err := d.model()
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, nil
}

func answerSort(filter models.AnswerFilter) (bson.D, error) {
	switch filter {
	case models.AnswersLatest:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, nil
	case models.AnswersOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}, nil
	case models.AnswersPopular:
		return bson.D{{Key: "upvotes", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, nil
	default:
		return nil, fmt.Errorf("unknown answer filter %q", filter)
	}
}

func (t *tx) DeleteTarget(ctx context.Context, ref models.TargetRef) error {
	name, err := contentCollection(ref.Kind)
	if err != nil {
		return err
	}
	res, err := t.coll(name).DeleteOne(ctx, bson.M{"_id": ref.ID.String()})
	if err != nil {
		return translate(err, nil)
	}
	if res.DeletedCount == 0 {
		return ledger.ErrTargetNotFound
	}
	return nil
}

func (t *tx) IncrementCounter(ctx context.Context, ref models.TargetRef, field models.CounterField, delta int) error {
	name, err := contentCollection(ref.Kind)
	if err != nil {
		return err
	}
	if field == models.CounterAnswers && ref.Kind != models.KindQuestion {
		return fmt.Errorf("no counter %s on %s", field, ref.Kind)
	}

	filter := bson.M{"_id": ref.ID.String()}
	if delta < 0 {
		filter[string(field)] = bson.M{"$gte": -delta}
	}
	res, err := t.coll(name).UpdateOne(ctx, filter, bson.M{"$inc": bson.M{string(field): delta}})
	if err != nil {
		return translate(err, nil)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := t.coll(name).CountDocuments(ctx, bson.M{"_id": ref.ID.String()})
	if err != nil {
		return translate(err, nil)
	}
	if n == 0 {
		return ledger.ErrTargetNotFound
	}
	return ledger.ErrCounterUnderflow
}

// FindVote has no row lock to take. Two transactions that go on to write the
// same vote conflict at write time instead.
func (t *tx) FindVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	return t.LookupVote(ctx, authorID, ref)
}

func (t *tx) LookupVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	filter := bson.M{
		"author_id":   authorID.String(),
		"target_id":   ref.ID.String(),
		"target_kind": string(ref.Kind),
	}
	var doc voteDoc
	if err := t.coll(collVotes).FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err, ledger.ErrRecordNotFound)
	}
	return doc.model()
}

func (t *tx) VotesOn(ctx context.Context, ref models.TargetRef) ([]models.Vote, error) {
	filter := bson.M{"target_id": ref.ID.String(), "target_kind": string(ref.Kind)}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := t.coll(collVotes).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, nil)
	}

	var docs []voteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err, nil)
	}
	votes := make([]models.Vote, 0, len(docs))
	for _, d := range docs {
		v, err := d.model()
		if err != nil {
			return nil, err
		}
		votes = append(votes, *v)
	}
	return votes, nil
}

func (t *tx) InsertVote(ctx context.Context, v *models.Vote) error {
	_, err := t.coll(collVotes).InsertOne(ctx, fromVote(v))
	return translate(err, nil)
}

func (t *tx) UpdateVoteType(ctx context.Context, voteID uuid.UUID, voteType models.VoteType) error {
	res, err := t.coll(collVotes).UpdateOne(ctx,
		bson.M{"_id": voteID.String()},
		bson.M{"$set": bson.M{"vote_type": string(voteType), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return translate(err, nil)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

func (t *tx) DeleteVote(ctx context.Context, voteID uuid.UUID) error {
	res, err := t.coll(collVotes).DeleteOne(ctx, bson.M{"_id": voteID.String()})
	if err != nil {
		return translate(err, nil)
	}
	if res.DeletedCount == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

func (t *tx) InsertInteraction(ctx context.Context, i *models.Interaction) error {
	_, err := t.coll(collInteractions).InsertOne(ctx, fromInteraction(i))
	return translate(err, nil)
}

func (t *tx) FindUnreversed(ctx context.Context, m models.InteractionMatch) (*models.Interaction, error) {
	filter := bson.M{
		"user_id":        m.UserID.String(),
		"action":         string(m.Action),
		"action_id":      m.ActionID.String(),
		"action_type":    string(m.ActionType),
		"vote_author_id": optionalString(m.VoteAuthorID),
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := t.coll(collInteractions).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, nil)
	}
	var candidates []interactionDoc
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, translate(err, nil)
	}
	if len(candidates) == 0 {
		return nil, ledger.ErrRecordNotFound
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	cursor, err = t.coll(collInteractions).Find(ctx, bson.M{"reverses_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"reverses_id": 1}))
	if err != nil {
		return nil, translate(err, nil)
	}
	var reversals []interactionDoc
	if err := cursor.All(ctx, &reversals); err != nil {
		return nil, translate(err, nil)
	}
	reversed := make(map[string]bool, len(reversals))
	for _, r := range reversals {
		if r.ReversesID != nil {
			reversed[*r.ReversesID] = true
		}
	}

	for _, c := range candidates {
		if !reversed[c.ID] {
			return c.model()
		}
	}
	return nil, ledger.ErrRecordNotFound
}

func (t *tx) InteractionsOf(ctx context.Context, userID uuid.UUID) ([]models.Interaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := t.coll(collInteractions).Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, translate(err, nil)
	}

	var docs []interactionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err, nil)
	}
	out := make([]models.Interaction, 0, len(docs))
	for _, d := range docs {
		i, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, nil
}

func contentCollection(kind models.TargetKind) (string, error) {
	switch kind {
	case models.KindQuestion:
		return collQuestions, nil
	case models.KindAnswer:
		return collAnswers, nil
	default:
		return "", fmt.Errorf("unknown target kind %q", kind)
	}
}
