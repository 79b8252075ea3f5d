// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

// Hook runs before every Tx operation. A non-nil error is returned from the
// operation instead of running it.
type Hook func(ctx context.Context, op string, tx ledger.Tx) error

// Store serializes transactions under one mutex. Each transaction works on a
// copy of the state which replaces the live state only on commit.
type Store struct {
	mu      sync.Mutex
	state   *state
	hook    Hook
	commits int
}

func New() *Store {
	return &Store{state: newState()}
}

// SetHook installs h for subsequent transactions; nil removes it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{state: s.state.clone(), hook: s.hook}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	s.commits++
	return nil
}

func (s *Store) Health(context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]string{
		"status":  "up",
		"message": "memory store",
		"commits": fmt.Sprint(s.commits),
	}
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// AddUser seeds a user outside any ledger operation.
func (s *Store) AddUser(username string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: uuid.New(), Username: username, Name: username, CreatedAt: time.Now().UTC()}
	s.state.users[u.ID] = u
	return u
}

func (s *Store) User(id uuid.UUID) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.users[id]
	return u, ok
}

func (s *Store) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.state.users))
	for _, u := range s.state.users {
		out = append(out, u)
	}
	return out
}

func (s *Store) Question(id uuid.UUID) (models.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.state.questions[id]
	return q, ok
}

func (s *Store) Answer(id uuid.UUID) (models.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.answers[id]
	return a, ok
}

func (s *Store) Votes() []models.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Vote, 0, len(s.state.votes))
	for _, v := range s.state.votes {
		out = append(out, v)
	}
	return out
}

// Interactions returns the full log in insertion order.
func (s *Store) Interactions() []models.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Interaction(nil), s.state.interactions...)
}

type state struct {
	users        map[uuid.UUID]models.User
	questions    map[uuid.UUID]models.Question
	answers      map[uuid.UUID]models.Answer
	votes        map[uuid.UUID]models.Vote
	interactions []models.Interaction
}

func newState() *state {
	return &state{
		users:     make(map[uuid.UUID]models.User),
		questions: make(map[uuid.UUID]models.Question),
		answers:   make(map[uuid.UUID]models.Answer),
		votes:     make(map[uuid.UUID]models.Vote),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	c.interactions = append([]models.Interaction(nil), s.interactions...)
	return c
}

// Tx is a transaction over a private copy of the store state.
type Tx struct {
	state *state
	hook  Hook
}

func (t *Tx) before(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.hook != nil {
		return t.hook(ctx, op, t)
	}
	return nil
}

func (t *Tx) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := t.before(ctx, "User"); err != nil {
		return nil, err
	}
	u, ok := t.state.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return &u, nil
}

func (t *Tx) InsertUser(ctx context.Context, user *models.User) error {
	if err := t.before(ctx, "InsertUser"); err != nil {
		return err
	}
	if _, ok := t.state.users[user.ID]; ok {
		return ledger.ErrConflict
	}
	for _, u := range t.state.users {
		if u.Username == user.Username {
			return ledger.ErrConflict
		}
	}
	t.state.users[user.ID] = *user
	return nil
}

func (t *Tx) AdjustReputation(ctx context.Context, deltas map[uuid.UUID]int) error {
	if err := t.before(ctx, "AdjustReputation"); err != nil {
		return err
	}
	for id := range deltas {
		if _, ok := t.state.users[id]; !ok {
			return fmt.Errorf("adjust reputation of %s: %w", id, ledger.ErrUserNotFound)
		}
	}
	for id, delta := range deltas {
		u := t.state.users[id]
		u.Reputation += delta
		t.state.users[id] = u
	}
	return nil
}

func (t *Tx) Target(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	if err := t.before(ctx, "Target"); err != nil {
		return nil, err
	}
	return t.target(ref)
}

// LockTarget reads like Target; transactions are already serialized.
func (t *Tx) LockTarget(ctx context.Context, ref models.TargetRef) (*models.Target, error) {
	if err := t.before(ctx, "LockTarget"); err != nil {
		return nil, err
	}
	return t.target(ref)
}

func (t *Tx) target(ref models.TargetRef) (*models.Target, error) {
	switch ref.Kind {
	case models.KindQuestion:
		q, ok := t.state.questions[ref.ID]
		if !ok {
			return nil, ledger.ErrTargetNotFound
		}
		return &models.Target{Ref: ref, AuthorID: q.AuthorID, Upvotes: q.Upvotes, Downvotes: q.Downvotes}, nil
	case models.KindAnswer:
		a, ok := t.state.answers[ref.ID]
		if !ok {
			return nil, ledger.ErrTargetNotFound
		}
		return &models.Target{Ref: ref, AuthorID: a.AuthorID, Upvotes: a.Upvotes, Downvotes: a.Downvotes, QuestionID: a.QuestionID}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", ref.Kind)
	}
}

func (t *Tx) Question(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	if err := t.before(ctx, "Question"); err != nil {
		return nil, err
	}
	q, ok := t.state.questions[id]
	if !ok {
		return nil, ledger.ErrTargetNotFound
	}
	return &q, nil
}

func (t *Tx) InsertQuestion(ctx context.Context, q *models.Question) error {
	if err := t.before(ctx, "InsertQuestion"); err != nil {
		return err
	}
	if _, ok := t.state.questions[q.ID]; ok {
		return ledger.ErrConflict
	}
	t.state.questions[q.ID] = *q
	return nil
}

func (t *Tx) InsertAnswer(ctx context.Context, a *models.Answer) error {
	if err := t.before(ctx, "InsertAnswer"); err != nil {
		return err
	}
	if _, ok := t.state.answers[a.ID]; ok {
		return ledger.ErrConflict
	}
	t.state.answers[a.ID] = *a
	return nil
}

func (t *Tx) AnswersOf(ctx context.Context, questionID uuid.UUID) ([]models.Answer, error) {
	if err := t.before(ctx, "AnswersOf"); err != nil {
		return nil, err
	}
	var out []models.Answer
	for _, a := range t.state.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *Tx) ListAnswers(ctx context.Context, questionID uuid.UUID, page models.AnswerPage) ([]models.Answer, int64, error) {
	if err := t.before(ctx, "ListAnswers"); err != nil {
		return nil, 0, err
	}
	var all []models.Answer
	for _, a := range t.state.answers {
		if a.QuestionID == questionID {
			all = append(all, a)
		}
	}

	newer := func(a, b models.Answer) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID.String() > b.ID.String()
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
	var less func(i, j int) bool
	switch page.Filter {
	case models.AnswersLatest:
		less = func(i, j int) bool { return newer(all[i], all[j]) }
	case models.AnswersOldest:
		less = func(i, j int) bool { return newer(all[j], all[i]) }
	case models.AnswersPopular:
		less = func(i, j int) bool {
			if all[i].Upvotes != all[j].Upvotes {
				return all[i].Upvotes > all[j].Upvotes
			}
			return newer(all[i], all[j])
		}
	default:
		return nil, 0, fmt.Errorf("unknown answer filter %q", page.Filter)
	}
	sort.Slice(all, less)

	total := int64(len(all))
	if page.Offset >= len(all) {
		return []models.Answer{}, total, nil
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return all[page.Offset:end], total, nil
}

func (t *Tx) DeleteTarget(ctx context.Context, ref models.TargetRef) error {
	if err := t.before(ctx, "DeleteTarget"); err != nil {
		return err
	}
	switch ref.Kind {
	case models.KindQuestion:
		if _, ok := t.state.questions[ref.ID]; !ok {
			return ledger.ErrTargetNotFound
		}
		delete(t.state.questions, ref.ID)
	case models.KindAnswer:
		if _, ok := t.state.answers[ref.ID]; !ok {
			return ledger.ErrTargetNotFound
		}
		delete(t.state.answers, ref.ID)
	default:
		return fmt.Errorf("unknown target kind %q", ref.Kind)
	}
	return nil
}

func (t *Tx) IncrementCounter(ctx context.Context, ref models.TargetRef, field models.CounterField, delta int) error {
	if err := t.before(ctx, "IncrementCounter"); err != nil {
		return err
	}
	switch ref.Kind {
	case models.KindQuestion:
		q, ok := t.state.questions[ref.ID]
		if !ok {
			return ledger.ErrTargetNotFound
		}
		var col *int
		switch field {
		case models.CounterUpvotes:
			col = &q.Upvotes
		case models.CounterDownvotes:
			col = &q.Downvotes
		case models.CounterAnswers:
			col = &q.Answers
		default:
			return fmt.Errorf("question has no counter %q", field)
		}
		if err := bump(col, delta); err != nil {
			return err
		}
		t.state.questions[ref.ID] = q
	case models.KindAnswer:
		a, ok := t.state.answers[ref.ID]
		if !ok {
			return ledger.ErrTargetNotFound
		}
		var col *int
		switch field {
		case models.CounterUpvotes:
			col = &a.Upvotes
		case models.CounterDownvotes:
			col = &a.Downvotes
		default:
			return fmt.Errorf("answer has no counter %q", field)
		}
		if err := bump(col, delta); err != nil {
			return err
		}
		t.state.answers[ref.ID] = a
	default:
		return fmt.Errorf("unknown target kind %q", ref.Kind)
	}
	return nil
}

func bump(col *int, delta int) error {
	if *col+delta < 0 {
		return ledger.ErrCounterUnderflow
	}
	*col += delta
	return nil
}

func (t *Tx) FindVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	if err := t.before(ctx, "FindVote"); err != nil {
		return nil, err
	}
	return t.vote(authorID, ref)
}

func (t *Tx) LookupVote(ctx context.Context, authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	if err := t.before(ctx, "LookupVote"); err != nil {
		return nil, err
	}
	return t.vote(authorID, ref)
}

func (t *Tx) vote(authorID uuid.UUID, ref models.TargetRef) (*models.Vote, error) {
	for _, v := range t.state.votes {
		if v.AuthorID == authorID && v.Target() == ref {
			return &v, nil
		}
	}
	return nil, ledger.ErrRecordNotFound
}

func (t *Tx) VotesOn(ctx context.Context, ref models.TargetRef) ([]models.Vote, error) {
	if err := t.before(ctx, "VotesOn"); err != nil {
		return nil, err
	}
	var out []models.Vote
	for _, v := range t.state.votes {
		if v.Target() == ref {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *Tx) InsertVote(ctx context.Context, v *models.Vote) error {
	if err := t.before(ctx, "InsertVote"); err != nil {
		return err
	}
	for _, existing := range t.state.votes {
		if existing.ID == v.ID || (existing.AuthorID == v.AuthorID && existing.Target() == v.Target()) {
			return ledger.ErrConflict
		}
	}
	t.state.votes[v.ID] = *v
	return nil
}

func (t *Tx) UpdateVoteType(ctx context.Context, voteID uuid.UUID, voteType models.VoteType) error {
	if err := t.before(ctx, "UpdateVoteType"); err != nil {
		return err
	}
	v, ok := t.state.votes[voteID]
	if !ok {
		return ledger.ErrRecordNotFound
	}
	v.VoteType = voteType
	v.UpdatedAt = time.Now().UTC()
	t.state.votes[voteID] = v
	return nil
}

func (t *Tx) DeleteVote(ctx context.Context, voteID uuid.UUID) error {
	if err := t.before(ctx, "DeleteVote"); err != nil {
		return err
	}
	if _, ok := t.state.votes[voteID]; !ok {
		return ledger.ErrRecordNotFound
	}
	delete(t.state.votes, voteID)
	return nil
}

func (t *Tx) InsertInteraction(ctx context.Context, i *models.Interaction) error {
	if err := t.before(ctx, "InsertInteraction"); err != nil {
		return err
	}
	for _, existing := range t.state.interactions {
		if existing.ID == i.ID {
			return ledger.ErrConflict
		}
		if i.ReversesID != nil && existing.ReversesID != nil && *existing.ReversesID == *i.ReversesID {
			return ledger.ErrConflict
		}
	}
	t.state.interactions = append(t.state.interactions, *i)
	return nil
}

func (t *Tx) FindUnreversed(ctx context.Context, m models.InteractionMatch) (*models.Interaction, error) {
	if err := t.before(ctx, "FindUnreversed"); err != nil {
		return nil, err
	}
	reversed := make(map[uuid.UUID]bool)
	for _, i := range t.state.interactions {
		if i.ReversesID != nil {
			reversed[*i.ReversesID] = true
		}
	}
	for _, i := range t.state.interactions {
		if !reversed[i.ID] && m.Matches(i) {
			return &i, nil
		}
	}
	return nil, ledger.ErrRecordNotFound
}

func (t *Tx) InteractionsOf(ctx context.Context, userID uuid.UUID) ([]models.Interaction, error) {
	if err := t.before(ctx, "InteractionsOf"); err != nil {
		return nil, err
	}
	var out []models.Interaction
	for n := len(t.state.interactions) - 1; n >= 0; n-- {
		if i := t.state.interactions[n]; i.UserID == userID {
			out = append(out, i)
		}
	}
	return out, nil
}
