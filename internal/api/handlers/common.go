package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/api/middleware"
	"github.com/yoockh/helpdesk/internal/auth"
	"github.com/yoockh/helpdesk/internal/utils"
)

type APIError struct {
	Success bool       `json:"success"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	code := utils.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	msg := http.StatusText(status)
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	c.JSON(status, APIError{Code: code, Message: msg})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get(middleware.CtxUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func requireClaims(c *gin.Context) (*auth.Claims, bool) {
	if v, ok := c.Get(middleware.CtxClaims); ok {
		if cl, ok := v.(*auth.Claims); ok && cl != nil {
			return cl, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return nil, false
}

func ok(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}
