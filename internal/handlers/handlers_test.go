package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantBody string
	}{
		{
			name:     "forbidden",
			err:      ledger.Forbidden("only the author can delete this content"),
			status:   http.StatusForbidden,
			wantBody: `{"success":false,"error":"only the author can delete this content","type":"forbidden"}`,
		},
		{
			name:     "store sentinel",
			err:      ledger.ErrTargetNotFound,
			status:   http.StatusNotFound,
			wantBody: `{"success":false,"error":"target not found","type":"not_found"}`,
		},
		{
			name:     "exhausted conflict",
			err:      ledger.VoteFailed(ledger.ErrConflict),
			status:   http.StatusConflict,
			wantBody: `{"success":false,"error":"vote could not be applied","type":"vote_failed"}`,
		},
		{
			name:     "anything else",
			err:      errors.New("connection reset"),
			status:   http.StatusInternalServerError,
			wantBody: `{"success":false,"error":"internal error","type":"internal"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestParseID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "12"}}

	_, ok := parseID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid id","type":"validation"}`, w.Body.String())
}
