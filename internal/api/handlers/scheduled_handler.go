package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ScheduledHandler struct {
	svc services.ScheduledService
}

func NewScheduledHandler(svc services.ScheduledService) *ScheduledHandler {
	return &ScheduledHandler{svc: svc}
}

type ScheduleRequest struct {
	CandidateID       string    `json:"candidate_id" binding:"required"`
	CandidateName     string    `json:"candidate_name"`
	StartTime         time.Time `json:"start_time" binding:"required"` // RFC3339
	EndTime           time.Time `json:"end_time" binding:"required"`
	MaxAccessAttempts int       `json:"max_access_attempts,omitempty"`
}

func (h *ScheduledHandler) Schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ScheduledHandler.Schedule", "invalid request body", err))
		return
	}

	slot, err := h.svc.Schedule(c.Request.Context(), services.ScheduleInput{
		CandidateID:       req.CandidateID,
		CandidateName:     req.CandidateName,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		MaxAccessAttempts: req.MaxAccessAttempts,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *ScheduledHandler) Get(c *gin.Context) {
	slot, err := h.svc.Get(c.Request.Context(), sessionParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// Access lets the authenticated candidate open their own slot.
func (h *ScheduledHandler) Access(c *gin.Context) {
	candidateID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.Access(c.Request.Context(), sessionParam(c), candidateID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ScheduledHandler) Cancel(c *gin.Context) {
	sessionID := sessionParam(c)
	if err := h.svc.Cancel(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": models.StatusCancelled})
}

func (h *ScheduledHandler) Sweep(c *gin.Context) {
	res, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
