package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/metrics"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

var requestValidate = validator.New()

// VoteRequest is the vote intent as received from a client.
type VoteRequest struct {
	TargetID   string `json:"targetId" validate:"required,uuid"`
	TargetType string `json:"targetType" validate:"required,oneof=question answer"`
	VoteType   string `json:"voteType" validate:"required,oneof=upvote downvote"`
}

// VoteStatus reports the caller's current vote on a target.
type VoteStatus struct {
	HasUpvoted   bool `json:"hasUpvoted"`
	HasDownvoted bool `json:"hasDownvoted"`
}

// AnswersQuery selects one page of a question's answers. Zero values fall
// back to the latest ten.
type AnswersQuery struct {
	Filter   string `form:"filter" validate:"omitempty,oneof=latest oldest popular"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// AnswerList is one page of answers plus what a client needs to page on.
type AnswerList struct {
	Answers      []models.Answer `json:"answers"`
	TotalAnswers int64           `json:"totalAnswers"`
	IsNext       bool            `json:"isNext"`
}

const defaultAnswerPageSize = 10

// Service is the entry point used by the HTTP layer and the CLI. It resolves
// the caller from the context, validates input and delegates to the
// coordinator and content components.
type Service struct {
	store       Store
	coordinator *Coordinator
	content     *Content
	metrics     *metrics.LedgerMetrics
}

// NewService wires the ledger components around store. m may be nil.
func NewService(store Store, m *metrics.LedgerMetrics, maxRetries int) *Service {
	recorder := NewRecorder()
	return &Service{
		store:       store,
		coordinator: NewCoordinator(store, recorder, maxRetries),
		content:     NewContent(store, recorder, maxRetries),
		metrics:     m,
	}
}

func (s *Service) SubmitVote(ctx context.Context, req VoteRequest) (*Outcome, error) {
	start := time.Now()

	userID, ok := IdentityFromContext(ctx)
	if !ok {
		s.observeVote("unauthorized", start)
		return nil, Unauthorized("sign in to vote")
	}
	if err := validateRequest(req); err != nil {
		s.observeVote(string(KindValidation), start)
		return nil, err
	}

	outcome, err := s.coordinator.SubmitVote(ctx, userID, models.TargetRef{
		ID:   uuid.MustParse(req.TargetID),
		Kind: models.TargetKind(req.TargetType),
	}, models.VoteType(req.VoteType))
	if err != nil {
		e := AsError(err)
		s.observeVote(string(e.Kind), start)
		if e.Kind == KindVoteFailed || e.Kind == KindInternal {
			zap.L().Error("vote failed",
				zap.String("user_id", userID.String()),
				zap.String("target_id", req.TargetID),
				zap.Error(err),
			)
		}
		return nil, e
	}

	s.observeVote(string(outcome.Transition), start)
	return outcome, nil
}

// HasVoted reports the caller's vote on target. A caller without identity
// gets an empty status together with an Unauthorized error.
func (s *Service) HasVoted(ctx context.Context, target models.TargetRef) (VoteStatus, error) {
	userID, ok := IdentityFromContext(ctx)
	if !ok {
		return VoteStatus{}, Unauthorized("sign in to see your votes")
	}
	if err := validateTarget(target); err != nil {
		return VoteStatus{}, err
	}

	var status VoteStatus
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		status = VoteStatus{}
		vote, err := tx.LookupVote(ctx, userID, target)
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		status.HasUpvoted = vote.VoteType == models.Upvote
		status.HasDownvoted = vote.VoteType == models.Downvote
		return nil
	})
	if err != nil {
		return VoteStatus{}, AsError(err)
	}
	return status, nil
}

func (s *Service) DeleteContent(ctx context.Context, target models.TargetRef) (*CascadeSummary, error) {
	userID, _ := IdentityFromContext(ctx)
	summary, err := s.content.DeleteContent(ctx, userID, target)
	s.observeContent("delete_"+string(target.Kind), err)
	if err != nil {
		return nil, AsError(err)
	}
	return summary, nil
}

func (s *Service) PostQuestion(ctx context.Context, title, body string) (*models.Question, error) {
	userID, _ := IdentityFromContext(ctx)
	q, err := s.content.PostQuestion(ctx, userID, title, body)
	s.observeContent("post_question", err)
	if err != nil {
		return nil, AsError(err)
	}
	return q, nil
}

func (s *Service) PostAnswer(ctx context.Context, questionID uuid.UUID, body string) (*models.Answer, error) {
	userID, _ := IdentityFromContext(ctx)
	a, err := s.content.PostAnswer(ctx, userID, questionID, body)
	s.observeContent("post_answer", err)
	if err != nil {
		return nil, AsError(err)
	}
	return a, nil
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.User(ctx, userID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	return user, nil
}

func (s *Service) Question(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var question *models.Question
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		q, err := tx.Question(ctx, id)
		if err != nil {
			return questionLookup(err)
		}
		question = q
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	return question, nil
}

// Answers returns one page of questionID's answers. A question that does not
// exist is NotFound rather than an empty page.
func (s *Service) Answers(ctx context.Context, questionID uuid.UUID, q AnswersQuery) (*AnswerList, error) {
	if err := validateRequest(q); err != nil {
		return nil, err
	}
	page := models.AnswerPage{Filter: models.AnswerFilter(q.Filter), Limit: q.PageSize}
	if page.Filter == "" {
		page.Filter = models.AnswersLatest
	}
	if page.Limit == 0 {
		page.Limit = defaultAnswerPageSize
	}
	if q.Page > 1 {
		page.Offset = (q.Page - 1) * page.Limit
	}

	list := &AnswerList{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Question(ctx, questionID); err != nil {
			return questionLookup(err)
		}
		answers, total, err := tx.ListAnswers(ctx, questionID, page)
		if err != nil {
			return err
		}
		list.Answers = answers
		list.TotalAnswers = total
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	if list.Answers == nil {
		list.Answers = []models.Answer{}
	}
	list.IsNext = list.TotalAnswers > int64(page.Offset+len(list.Answers))
	return list, nil
}

// Interactions returns the records attributed to userID, newest first.
func (s *Service) Interactions(ctx context.Context, userID uuid.UUID) ([]models.Interaction, error) {
	var out []models.Interaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.User(ctx, userID); err != nil {
			return err
		}
		records, err := tx.InteractionsOf(ctx, userID)
		if err != nil {
			return err
		}
		out = records
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	return out, nil
}

// CreateUser registers a user with zero reputation.
func (s *Service) CreateUser(ctx context.Context, username, name string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ValidationError("username is required")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New(),
		Username:  username,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ValidationError(fmt.Sprintf("username %q is taken", username))
		}
		return nil, AsError(err)
	}
	return user, nil
}

func (s *Service) Health(ctx context.Context) map[string]string {
	return s.store.Health(ctx)
}

func questionLookup(err error) error {
	if isNotFound(err) {
		return NotFound("question not found", err)
	}
	return err
}

func validateRequest(req any) error {
	if err := requestValidate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ValidationError(fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())).
				WithField("field", fe.Field())
		}
		return ValidationError(err.Error())
	}
	return nil
}

func (s *Service) observeVote(result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.VotesProcessed.WithLabelValues(result).Inc()
	s.metrics.VoteDuration.Observe(time.Since(start).Seconds())
}

func (s *Service) observeContent(op string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(AsError(err).Kind)
	}
	s.metrics.ContentOperations.WithLabelValues(op, result).Inc()
}
