package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/models"
)

type VoteHandler struct {
	svc *ledger.Service
}

func NewVoteHandler(svc *ledger.Service) *VoteHandler {
	return &VoteHandler{svc: svc}
}

// SubmitVote applies an upvote or downvote, toggling or switching an
// existing vote (PROTECTED - requires authentication)
func (h *VoteHandler) SubmitVote(c *gin.Context) {
	var req ledger.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	outcome, err := h.svc.SubmitVote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, outcome)
}

// VoteStatus reports whether the caller has upvoted or downvoted a target.
func (h *VoteHandler) VoteStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Query("targetId"))
	if err != nil {
		badRequest(c, "targetId must be a valid id")
		return
	}
	target := models.TargetRef{ID: id, Kind: models.TargetKind(c.Query("targetType"))}

	status, err := h.svc.HasVoted(c.Request.Context(), target)
	if err != nil {
		e := ledger.AsError(err)
		c.JSON(e.HTTPStatus(), gin.H{
			"success": false,
			"error":   e.Message,
			"type":    string(e.Kind),
			"data":    status,
		})
		return
	}

	respondOK(c, http.StatusOK, status)
}
