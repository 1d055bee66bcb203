package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) Initialize(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	res, err := h.svc.Initialize(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ConversationHandler) History(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	msgs, err := h.svc.History(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   msgs,
	})
}

type PostMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *ConversationHandler) PostMessage(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConversationHandler.PostMessage", "invalid request body", err))
		return
	}

	reply, err := h.svc.PostMessage(c.Request.Context(), sessionID, token, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type CodeStartRequest struct {
	TestName    string `json:"test_name" binding:"required"`
	CandidateID string `json:"candidate_id"`
}

func (h *ConversationHandler) CodeStart(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	var req CodeStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConversationHandler.CodeStart", "invalid request body", err))
		return
	}

	res, err := h.svc.CodeStart(c.Request.Context(), sessionID, token, req.TestName, req.CandidateID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type CodeResultRequest struct {
	Language string          `json:"language"`
	Passed   *bool           `json:"passed" binding:"required"`
	Result   string          `json:"result"`
	Details  json.RawMessage `json:"details,omitempty"`
}

func (h *ConversationHandler) CodeResult(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	var req CodeResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConversationHandler.CodeResult", "invalid request body", err))
		return
	}

	reply, err := h.svc.CodeResult(c.Request.Context(), services.CodeResultInput{
		SessionID: sessionID,
		Token:     token,
		Language:  req.Language,
		Passed:    *req.Passed,
		Result:    req.Result,
		Details:   req.Details,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
