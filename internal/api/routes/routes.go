package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/api/handlers"
	"github.com/yoockh/helpdesk/internal/api/middleware"
	"github.com/yoockh/helpdesk/internal/auth"
	"github.com/yoockh/helpdesk/internal/cache"
	"github.com/yoockh/helpdesk/internal/metrics"
)

type Deps struct {
	Issuer  *auth.Issuer
	Revoked cache.Revocations

	Auth  *handlers.AuthHandler
	Chat  *handlers.ChatHandler
	Admin *handlers.AdminHandler
	KB    *handlers.KBHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.POST("/auth/login", d.Auth.Login)

	// Protected routes (JWT)
	authed := api.Group("/")
	authed.Use(middleware.JWTAuth(d.Issuer, d.Revoked))

	authed.POST("/auth/logout", d.Auth.Logout)
	authed.GET("/auth/me", d.Auth.Me)

	authed.GET("/chat/conversations", d.Chat.List)
	authed.POST("/chat/conversations", d.Chat.Create)
	authed.POST("/chat/send", d.Chat.Send)
	authed.POST("/chat/conversations/:id/resolve", d.Chat.Resolve)
	authed.POST("/chat/conversations/:id/feedback", d.Chat.Feedback)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/stats", d.Admin.Stats)
	admin.GET("/users", d.Admin.ListUsers)
	admin.POST("/users", d.Admin.CreateUser)
	admin.PUT("/users/:id", d.Admin.UpdateUser)
	admin.DELETE("/users/:id", d.Admin.DeleteUser)
	admin.GET("/conversations", d.Admin.ListConversations)
	admin.POST("/conversations/:id/resolve", d.Admin.Resolve)

	kb := authed.Group("/kb")
	kb.Use(middleware.RequireAdmin())
	kb.GET("/structure", d.KB.Structure)
	kb.POST("/folders", d.KB.CreateFolder)
	kb.POST("/upload", d.KB.Upload)
	kb.GET("/documents/:id/status", d.KB.Status)
	kb.PUT("/documents/:id/rename", d.KB.Rename)
	kb.DELETE("/documents/:id", d.KB.Delete)
	kb.GET("/documents/:id/download", d.KB.Download)
}
