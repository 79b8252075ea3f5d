// Package mongostore implements ledger.Store on MongoDB multi-document
// transactions. It needs a replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

const (
	collUsers        = "users"
	collQuestions    = "questions"
	collAnswers      = "answers"
	collVotes        = "votes"
	collInteractions = "interactions"
)

type Store struct {
	db *mongo.Database
}

// Connect dials uri and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	zap.L().Info("✅ MongoDB connected successfully", zap.String("database", database))
	return New(client.Database(database)), nil
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Database() *mongo.Database {
	return s.db
}

// EnsureIndexes creates the unique and lookup indexes the ledger relies on.
// Indexes cannot be built inside a transaction, so this runs at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collAnswers: {
			{Keys: bson.D{{Key: "question_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "question_id", Value: 1}, {Key: "upvotes", Value: -1}}},
		},
		collVotes: {
			{
				Keys:    bson.D{{Key: "author_id", Value: 1}, {Key: "target_id", Value: 1}, {Key: "target_kind", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_votes_author_target"),
			},
			{Keys: bson.D{{Key: "target_id", Value: 1}, {Key: "target_kind", Value: 1}}, Options: options.Index().SetName("idx_votes_target")},
		},
		collInteractions: {
			{
				Keys:    bson.D{{Key: "action_id", Value: 1}, {Key: "action_type", Value: 1}, {Key: "action", Value: 1}},
				Options: options.Index().SetName("idx_interactions_action"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_interactions_user"),
			},
			{
				Keys: bson.D{{Key: "reverses_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("idx_interactions_reverses").
					SetPartialFilterExpression(bson.M{"reverses_id": bson.M{"$type": "string"}}),
			},
		},
	}

	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}

	zap.L().Info("✅ MongoDB indexes ensured")
	return nil
}

// WithTx runs fn in a snapshot transaction with majority write concern.
// Write conflicts between concurrent transactions abort one of them; the
// driver retries transient aborts, and what remains surfaces as
// ledger.ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOptions := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &tx{db: s.db})
	}, txnOptions)
	return translate(err, nil)
}

func (s *Store) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("mongo down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["database"] = s.db.Name()
	return stats
}

func (s *Store) Close(ctx context.Context) error {
	zap.L().Info("Disconnected from mongo", zap.String("database", s.db.Name()))
	return s.db.Client().Disconnect(ctx)
}

// translate maps driver errors onto ledger sentinels.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var le *ledger.Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) && notFound != nil {
		return notFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(112)) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}
