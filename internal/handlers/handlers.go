package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

// Handler combines all handler types
type Handler struct {
	Vote     *VoteHandler
	Question *QuestionHandler
	Answer   *AnswerHandler
	User     *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{
		Vote:     NewVoteHandler(svc),
		Question: NewQuestionHandler(svc),
		Answer:   NewAnswerHandler(svc),
		User:     NewUserHandler(svc),
	}
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError writes the failure shape shared by every route.
func respondError(c *gin.Context, err error) {
	e := ledger.AsError(err)
	_ = c.Error(err)
	c.JSON(e.HTTPStatus(), gin.H{
		"success": false,
		"error":   e.Message,
		"type":    string(e.Kind),
	})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, ledger.ValidationError(message))
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
