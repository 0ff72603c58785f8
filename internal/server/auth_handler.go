package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sio-engine/internal/auth"
	"sio-engine/internal/middleware"
)

// AuthHandler issues demo JWTs so a Socket.IO client can prove a user
// identity during CONNECT (spec.md's namespace connect hook checks this via
// the auth payload), grounded on the teacher's handler.AuthHandler shape but
// reduced to the single endpoint this demo needs.
type AuthHandler struct {
	TokenConfig        auth.TokenConfig
	AuthRequestLimiter *middleware.RateLimiter
}

type authRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type authResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Issue(c *gin.Context) {
	if h.AuthRequestLimiter != nil && !h.AuthRequestLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := auth.CreateToken(req.UserID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token})
}
