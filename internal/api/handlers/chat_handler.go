package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

type ChatHandler struct {
	svc services.ChatService
}

func NewChatHandler(svc services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type CreateConversationRequest struct {
	Topic string `json:"topic"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

type FeedbackRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"conversations": rows})
}

func (h *ChatHandler) Create(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	var req CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Create", "invalid request body", err))
			return
		}
	}

	conv, err := h.svc.Create(c.Request.Context(), userID, req.Topic)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"conversation": conv})
}

func (h *ChatHandler) Send(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Send", "conversationId and message are required", err))
		return
	}

	res, err := h.svc.Send(c.Request.Context(), userID, req.ConversationID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{
		"message":    res.Message,
		"confidence": res.Confidence,
		"sources":    res.Sources,
		"metadata":   res.Metadata,
		"timestamp":  res.Timestamp,
	})
}

func (h *ChatHandler) Resolve(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	var req ResolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Resolve", "invalid request body", err))
			return
		}
	}
	conv, err := h.svc.Resolve(c.Request.Context(), userID, c.Param("id"), req.ResolutionNotes)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"conversation": conv})
}

func (h *ChatHandler) Feedback(c *gin.Context) {
	userID, found := requireUserID(c)
	if !found {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Feedback", "rating is required", err))
		return
	}
	if err := h.svc.Feedback(c.Request.Context(), userID, c.Param("id"), req.Rating, req.Comment); err != nil {
		writeError(c, err)
		return
	}
	ok(c, nil)
}
