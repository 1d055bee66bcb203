package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
	Details any        `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(toAPIError(err))
}

func toAPIError(err error) (int, APIError) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		return status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
			Details: ae.Details,
		}
	}

	return status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	}
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func isAdmin(c *gin.Context) bool {
	v, _ := c.Get("role")
	role, _ := v.(string)
	return strings.EqualFold(role, "admin")
}

// accessToken reads the candidate session token from X-Access-Token, falling
// back to the token query parameter (browsers cannot set headers on a WS dial).
func accessToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader("X-Access-Token")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Query("token"))
}

func requireAccessToken(c *gin.Context) (string, bool) {
	if t := accessToken(c); t != "" {
		return t, true
	}
	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "access token is required", nil))
	return "", false
}

// sessionParam also tags the request log with the session id.
func sessionParam(c *gin.Context) string {
	id := c.Param("session_id")
	c.Set("session_id", id)
	return id
}
