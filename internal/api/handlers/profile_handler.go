package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
	"gorm.io/datatypes"
)

type ProfileHandler struct {
	svc services.ProfileService
}

func NewProfileHandler(svc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("candidate_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type UpdateProfileRequest struct {
	FullName       *string `json:"full_name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Role           *string `json:"role,omitempty"`
	ProjectSummary *string `json:"project_summary,omitempty"`
	Experience     *string `json:"experience,omitempty"`

	Skills          *[]string `json:"skills,omitempty"`
	CustomQuestions *[]string `json:"custom_questions,omitempty"`

	// JSONB (raw)
	Assessment *json.RawMessage `json:"assessment,omitempty"`
}

// Update applies a partial update, creating the profile when absent.
func (h *ProfileHandler) Update(c *gin.Context) {
	candidateID := c.Param("candidate_id")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ProfileHandler.Update", "invalid request body", err))
		return
	}

	existing, err := h.svc.Get(c.Request.Context(), candidateID)
	if err != nil {
		if utils.IsCode(err, utils.CodeNotFound) {
			existing = &models.CandidateProfile{CandidateID: candidateID}
		} else {
			writeError(c, err)
			return
		}
	}

	if req.FullName != nil {
		existing.FullName = *req.FullName
	}
	if req.Email != nil {
		existing.Email = *req.Email
	}
	if req.Role != nil {
		existing.Role = *req.Role
	}
	if req.ProjectSummary != nil {
		existing.ProjectSummary = *req.ProjectSummary
	}
	if req.Experience != nil {
		existing.Experience = *req.Experience
	}
	if req.Skills != nil {
		existing.Skills = *req.Skills
	}
	if req.CustomQuestions != nil {
		existing.CustomQuestions = *req.CustomQuestions
	}
	if req.Assessment != nil {
		existing.Assessment = datatypes.JSON(*req.Assessment)
	}

	existing.UpdatedAt = time.Now().UTC()

	if err := h.svc.Upsert(c.Request.Context(), existing); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, existing)
}
