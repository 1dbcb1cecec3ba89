package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

type AdminHandler struct {
	admin services.AdminService
	users services.UserService
}

func NewAdminHandler(admin services.AdminService, users services.UserService) *AdminHandler {
	return &AdminHandler{admin: admin, users: users}
}

type ResolveRequest struct {
	ResolutionNotes string `json:"resolutionNotes"`
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"stats": st})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	rows, err := h.users.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"users": rows})
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var in models.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AdminHandler.CreateUser", "invalid request body", err))
		return
	}
	u, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"user": u})
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var in models.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AdminHandler.UpdateUser", "invalid request body", err))
		return
	}
	u, err := h.users.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"user": u})
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actorID, found := requireUserID(c)
	if !found {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actorID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	ok(c, nil)
}

func (h *AdminHandler) ListConversations(c *gin.Context) {
	rows, err := h.admin.ListConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"conversations": rows})
}

func (h *AdminHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "AdminHandler.Resolve", "invalid request body", err))
			return
		}
	}
	conv, err := h.admin.Resolve(c.Request.Context(), c.Param("id"), req.ResolutionNotes)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"conversation": conv})
}
