package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devoverflow/backend/internal/config"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger/ledgertest"
	"github.com/emilythestrangee/devoverflow/backend/internal/metrics"
	"github.com/emilythestrangee/devoverflow/backend/internal/middleware"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

const testSecret = "server-test-secret"

type testServer struct {
	t       *testing.T
	store   *ledgertest.Store
	handler http.Handler
}

func newTestServer(t *testing.T, limiter middleware.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:            "dev",
		Port:           "0",
		StoreDriver:    config.DriverPostgres,
		JWTSecret:      testSecret,
		VoteRateLimit:  30,
		VoteRateWindow: time.Minute,
		TxMaxRetries:   ledger.DefaultMaxRetries,
	}
	store := ledgertest.New()
	registry := prometheus.NewRegistry()
	svc := ledger.NewService(store, metrics.NewLedgerMetrics(registry), cfg.TxMaxRetries)

	return &testServer{t: t, store: store, handler: NewServer(cfg, svc, limiter, registry).Handler}
}

func (s *testServer) token(user models.User) string {
	token, err := middleware.SignToken(testSecret, user.ID, user.Username, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestServer_VoteFlow(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.store.AddUser("bob")
	alice := s.store.AddUser("alice")

	w, body := s.do(http.MethodPost, "/api/questions", s.token(bob), gin.H{"title": "Why Go?", "content": "Asking for a friend."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	questionID := data(body)["id"].(string)

	vote := gin.H{"targetId": questionID, "targetType": "question", "voteType": "upvote"}
	w, body = s.do(http.MethodPost, "/api/votes", s.token(alice), vote)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "created", data(body)["transition"])

	w, body = s.do(http.MethodGet, "/api/votes/status?targetId="+questionID+"&targetType=question", s.token(alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"hasUpvoted": true, "hasDownvoted": false}, data(body))

	w, body = s.do(http.MethodGet, "/api/users/"+bob.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 15, data(body)["reputation"])

	w, body = s.do(http.MethodPost, "/api/votes", s.token(alice), vote)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "removed", data(body)["transition"])

	w, body = s.do(http.MethodGet, "/api/users/"+bob.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, data(body)["reputation"])
}

func TestServer_VoteErrors(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.store.AddUser("alice")

	t.Run("no token", func(t *testing.T) {
		w, body := s.do(http.MethodPost, "/api/votes", "", gin.H{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthorized", body["type"])
	})

	t.Run("invalid vote type", func(t *testing.T) {
		w, body := s.do(http.MethodPost, "/api/votes", s.token(alice), gin.H{
			"targetId": uuid.NewString(), "targetType": "question", "voteType": "sideways",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "validation", body["type"])
	})

	t.Run("unknown target", func(t *testing.T) {
		w, body := s.do(http.MethodPost, "/api/votes", s.token(alice), gin.H{
			"targetId": uuid.NewString(), "targetType": "answer", "voteType": "upvote",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", body["type"])
	})
}

func TestServer_VoteStatusWithoutIdentity(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodGet, "/api/votes/status?targetId="+uuid.NewString()+"&targetType=question", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, map[string]any{"hasUpvoted": false, "hasDownvoted": false}, data(body))

	w, _ = s.do(http.MethodGet, "/api/votes/status?targetId=nope&targetType=question", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AnswerAndCascadeDelete(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.store.AddUser("bob")
	carol := s.store.AddUser("carol")
	dave := s.store.AddUser("dave")

	_, body := s.do(http.MethodPost, "/api/questions", s.token(bob), gin.H{"title": "Channels or mutexes?", "content": "..."})
	questionID := data(body)["id"].(string)

	w, body := s.do(http.MethodPost, "/api/questions/"+questionID+"/answers", s.token(carol), gin.H{"content": "Depends."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	answerID := data(body)["id"].(string)

	w, _ = s.do(http.MethodPost, "/api/votes", s.token(dave), gin.H{"targetId": answerID, "targetType": "answer", "voteType": "upvote"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodDelete, "/api/questions/"+questionID, s.token(carol), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", body["type"])

	w, body = s.do(http.MethodDelete, "/api/questions/"+questionID, s.token(bob), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, data(body)["answers"])
	assert.EqualValues(t, 1, data(body)["votes"])

	for _, u := range []models.User{bob, carol, dave} {
		got, ok := s.store.User(u.ID)
		require.True(t, ok)
		assert.Zero(t, got.Reputation, u.Username)
	}

	w, _ = s.do(http.MethodDelete, "/api/answers/"+answerID, s.token(carol), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_UserInteractions(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.store.AddUser("bob")

	_, _ = s.do(http.MethodPost, "/api/questions", s.token(bob), gin.H{"title": "First", "content": "..."})

	w, body := s.do(http.MethodGet, "/api/users/"+bob.ID.String()+"/interactions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "post", records[0].(map[string]any)["action"])

	w, _ = s.do(http.MethodGet, "/api/users/"+uuid.NewString()+"/interactions", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodGet, "/api/users/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type denyAll struct{}

func (denyAll) AllowRequest(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return false, nil
}

func TestServer_VoteRateLimited(t *testing.T) {
	s := newTestServer(t, denyAll{})
	alice := s.store.AddUser("alice")

	w, _ := s.do(http.MethodPost, "/api/votes", s.token(alice), gin.H{
		"targetId": uuid.NewString(), "targetType": "question", "voteType": "upvote",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body["status"])

	alice := s.store.AddUser("alice")
	_, _ = s.do(http.MethodPost, "/api/votes", s.token(alice), gin.H{
		"targetId": uuid.NewString(), "targetType": "question", "voteType": "upvote",
	})

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "devoverflow_votes_processed_total")
	assert.Contains(t, w.Body.String(), "devoverflow_http_requests_total")
}

func TestServer_UnknownVoterIsUnauthorized(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.store.AddUser("bob")

	_, body := s.do(http.MethodPost, "/api/questions", s.token(bob), gin.H{"title": "Who am I?", "content": "..."})
	questionID := data(body)["id"].(string)

	ghost := models.User{ID: uuid.New(), Username: "ghost"}
	w, body := s.do(http.MethodPost, "/api/votes", s.token(ghost), gin.H{
		"targetId": questionID, "targetType": "question", "voteType": "upvote",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	assert.Equal(t, "unauthorized", body["type"])
	assert.Empty(t, s.store.Votes())
}

func TestServer_QuestionAndAnswerReads(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.store.AddUser("bob")
	carol := s.store.AddUser("carol")

	_, body := s.do(http.MethodPost, "/api/questions", s.token(bob), gin.H{"title": "Buffered or not?", "content": "..."})
	questionID := data(body)["id"].(string)

	var answerIDs []string
	for _, content := range []string{"Unbuffered.", "Buffered.", "It depends."} {
		w, body := s.do(http.MethodPost, "/api/questions/"+questionID+"/answers", s.token(carol), gin.H{"content": content})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		answerIDs = append(answerIDs, data(body)["id"].(string))
		time.Sleep(time.Millisecond)
	}
	w, _ := s.do(http.MethodPost, "/api/votes", s.token(bob), gin.H{"targetId": answerIDs[1], "targetType": "answer", "voteType": "upvote"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodGet, "/api/questions/"+questionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Buffered or not?", data(body)["title"])
	assert.EqualValues(t, 3, data(body)["answers"])

	listed := func(body map[string]any) []string {
		var out []string
		for _, a := range data(body)["answers"].([]any) {
			out = append(out, a.(map[string]any)["id"].(string))
		}
		return out
	}

	w, body = s.do(http.MethodGet, "/api/questions/"+questionID+"/answers?filter=popular&pageSize=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{answerIDs[1]}, listed(body))
	assert.EqualValues(t, 3, data(body)["totalAnswers"])
	assert.Equal(t, true, data(body)["isNext"])

	w, body = s.do(http.MethodGet, "/api/questions/"+questionID+"/answers?filter=oldest&page=2&pageSize=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{answerIDs[2]}, listed(body))
	assert.Equal(t, false, data(body)["isNext"])

	w, body = s.do(http.MethodGet, "/api/questions/"+questionID+"/answers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{answerIDs[2], answerIDs[1], answerIDs[0]}, listed(body))

	t.Run("rejects", func(t *testing.T) {
		for _, query := range []string{"filter=random", "page=-1", "pageSize=500", "page=abc"} {
			w, body := s.do(http.MethodGet, "/api/questions/"+questionID+"/answers?"+query, "", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, query)
			assert.Equal(t, "validation", body["type"], query)
		}
	})

	w, _ = s.do(http.MethodGet, "/api/questions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(http.MethodGet, "/api/questions/"+uuid.NewString()+"/answers", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(http.MethodGet, "/api/questions/nope/answers", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type downLimiter struct{}

func (downLimiter) AllowRequest(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return true, assert.AnError
}

func (downLimiter) Health(context.Context) map[string]string {
	return map[string]string{"status": "down", "error": "redis down: connection refused"}
}

func TestServer_HealthReportsLimiter(t *testing.T) {
	s := newTestServer(t, downLimiter{})

	w, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body["status"])
	assert.Equal(t, "down", body["redis_status"])
	assert.Equal(t, "redis down: connection refused", body["redis_error"])

	s = newTestServer(t, denyAll{})
	_, body = s.do(http.MethodGet, "/health", "", nil)
	assert.NotContains(t, body, "redis_status")
}
