package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

type UserHandler struct {
	svc *ledger.Service
}

func NewUserHandler(svc *ledger.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// GetUserProfile returns a user's profile with current reputation
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"name":       user.Name,
		"reputation": user.Reputation,
		"created_at": user.CreatedAt,
	})
}

// GetUserInteractions returns the audit log attributed to a user, newest first.
func (h *UserHandler) GetUserInteractions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	records, err := h.svc.Interactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, records)
}
