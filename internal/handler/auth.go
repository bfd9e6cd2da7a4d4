package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/service"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

type AuthHandler struct {
	auth Authenticator
}

func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Handles POST /admin/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, "email and password are required")
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		httperror.Write(c, http.StatusUnauthorized, httperror.CodeUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
