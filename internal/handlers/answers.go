package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

type AnswerHandler struct {
	svc *ledger.Service
}

func NewAnswerHandler(svc *ledger.Service) *AnswerHandler {
	return &AnswerHandler{svc: svc}
}

// GetAnswers lists the answers of the question in the path, one page at a
// time: ?filter=latest|oldest|popular&page=1&pageSize=10
func (h *AnswerHandler) GetAnswers(c *gin.Context) {
	questionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var query ledger.AnswersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "page and pageSize must be numbers")
		return
	}

	list, err := h.svc.Answers(c.Request.Context(), questionID, query)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, list)
}

// CreateAnswer answers the question in the path (PROTECTED - requires authentication)
func (h *AnswerHandler) CreateAnswer(c *gin.Context) {
	questionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var input models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "content is required")
		return
	}

	answer, err := h.svc.PostAnswer(c.Request.Context(), questionID, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, answer)
}

func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := h.svc.DeleteContent(c.Request.Context(), models.TargetRef{ID: id, Kind: models.KindAnswer})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}
