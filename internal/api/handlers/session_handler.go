package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type CreateSessionRequest struct {
	CandidateID   string                   `json:"candidate_id" binding:"required"`
	ApplicationID string                   `json:"application_id"`
	JobID         string                   `json:"job_id" binding:"required"`
	Candidate     models.CandidateSnapshot `json:"candidate"`

	ScheduledDate   string `json:"scheduled_date" binding:"required"` // YYYY-MM-DD
	ScheduledTime   string `json:"scheduled_time" binding:"required"` // HH:MM
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
	TimeZone        string `json:"time_zone"`

	BeforeGraceMinutes *int `json:"before_grace_minutes,omitempty"`
	AfterGraceMinutes  *int `json:"after_grace_minutes,omitempty"`
	MaxLoginAttempts   int  `json:"max_login_attempts,omitempty"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	recruiterID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	out, err := h.svc.Create(c.Request.Context(), services.CreateSessionInput{
		CandidateID:        req.CandidateID,
		ApplicationID:      req.ApplicationID,
		JobID:              req.JobID,
		RecruiterID:        recruiterID,
		Candidate:          req.Candidate,
		ScheduledDate:      req.ScheduledDate,
		ScheduledTime:      req.ScheduledTime,
		DurationMinutes:    req.DurationMinutes,
		TimeZone:           req.TimeZone,
		BeforeGraceMinutes: req.BeforeGraceMinutes,
		AfterGraceMinutes:  req.AfterGraceMinutes,
		MaxLoginAttempts:   req.MaxLoginAttempts,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *SessionHandler) Access(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	res, err := h.svc.Access(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AccessByCandidate resolves the caller's most recent open session.
func (h *SessionHandler) AccessByCandidate(c *gin.Context) {
	candidateID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.AccessByCandidate(c.Request.Context(), candidateID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("session_id", res.Session.SessionID)
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Status(c *gin.Context) {
	sessionID := sessionParam(c)

	var token *string
	if t := accessToken(c); t != "" {
		token = &t
	}

	view, err := h.svc.Status(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) End(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	ended, err := h.svc.End(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), sessionID, token); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": models.StatusCancelled})
}

func (h *SessionHandler) CancelByRecruiter(c *gin.Context) {
	recruiterID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := sessionParam(c)

	if err := h.svc.CancelByRecruiter(c.Request.Context(), sessionID, recruiterID, isAdmin(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": models.StatusCancelled})
}

func (h *SessionHandler) ResetAttempts(c *gin.Context) {
	sessionID := sessionParam(c)

	if err := h.svc.ResetAttempts(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
