package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

// ContextUserID is the gin context key holding the authenticated user id.
const ContextUserID = "user_id"

var errMissingToken = errors.New("authorization header required")

// Auth rejects requests without a valid HS256 bearer token. On success the
// user id is stored on the gin context and on the request context, where
// ledger.IdentityFromContext finds it.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authenticate(c, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   err.Error(),
				"type":    string(ledger.KindUnauthorized),
			})
			return
		}

		setIdentity(c, userID)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// the request through either way.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := authenticate(c, secret); err == nil {
			setIdentity(c, userID)
		}
		c.Next()
	}
}

// UserID returns the id set by Auth or OptionalAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// SignToken issues a token carrying userID, accepted by Auth.
func SignToken(secret string, userID uuid.UUID, username string, claims jwt.MapClaims) (string, error) {
	mc := jwt.MapClaims{
		"user_id":  userID.String(),
		"username": username,
	}
	for k, v := range claims {
		mc[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	return token.SignedString([]byte(secret))
}

func authenticate(c *gin.Context, secret string) (uuid.UUID, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return uuid.Nil, errMissingToken
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return uuid.Nil, errors.New("invalid authorization header format")
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid token claims")
	}
	sub, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, errors.New("token has no user_id")
	}
	userID, err := uuid.Parse(sub)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, errors.New("token user_id is not a valid id")
	}
	return userID, nil
}

func setIdentity(c *gin.Context, userID uuid.UUID) {
	c.Set(ContextUserID, userID)
	c.Request = c.Request.WithContext(ledger.WithIdentity(c.Request.Context(), userID))
}
