package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

type QuestionHandler struct {
	svc *ledger.Service
}

func NewQuestionHandler(svc *ledger.Service) *QuestionHandler {
	return &QuestionHandler{svc: svc}
}

func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	question, err := h.svc.Question(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, question)
}

// CreateQuestion creates a new question (PROTECTED - requires authentication)
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var input models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "title and content are required")
		return
	}

	question, err := h.svc.PostQuestion(c.Request.Context(), input.Title, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, question)
}

// DeleteQuestion removes a question with its answers and votes, reversing
// every reputation change they caused. Only the author may delete.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := h.svc.DeleteContent(c.Request.Context(), models.TargetRef{ID: id, Kind: models.KindQuestion})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}
