package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

type AuthHandler struct {
	svc services.AuthService
}

func NewAuthHandler(svc services.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AuthHandler.Login", "email and password are required", err))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"token": res.Token, "user": res.User})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	claims, found := requireClaims(c)
	if !found {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), claims); err != nil {
		writeError(c, err)
		return
	}
	ok(c, nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	u, err := h.svc.Me(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"user": u})
}
