package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yoockh/yoointerview/internal/models"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TranscriptService interface {
	TranscriptArchiver
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error)
}

type transcriptService struct {
	rows pgrepo.TranscriptRepository
}

func NewTranscriptService(rows pgrepo.TranscriptRepository) TranscriptService {
	return &transcriptService{rows: rows}
}

// Archive copies the non-system part of a session's log into the transcript
// table.
func (s *transcriptService) Archive(ctx context.Context, ss *models.Session) error {
	const op = "TranscriptService.Archive"

	if ss == nil || ss.SessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session is required", nil)
	}

	meta, err := json.Marshal(map[string]any{
		"job_id":         ss.JobID,
		"application_id": ss.ApplicationID,
		"recruiter_id":   ss.RecruiterID,
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode metadata", err)
	}

	var rows []models.TranscriptEntry
	for _, m := range ss.Conversation.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		rows = append(rows, models.TranscriptEntry{
			ID:          uuid.NewString(),
			SessionID:   ss.SessionID,
			CandidateID: ss.CandidateID,
			Seq:         len(rows) + 1,
			Role:        string(m.Role),
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Metadata:    datatypes.JSON(meta),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.rows.InsertBatch(ctx, rows); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to archive transcript", err)
	}
	return nil
}

func (s *transcriptService) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	const op = "TranscriptService.ListBySession"

	if strings.TrimSpace(sessionID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	rows, err := s.rows.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list transcript", err)
	}
	return rows, nil
}
