package postgres

import (
	"context"

	"github.com/yoockh/yoointerview/internal/models"
	"gorm.io/gorm"
)

type TranscriptRepository interface {
	InsertBatch(ctx context.Context, rows []models.TranscriptEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) InsertBatch(ctx context.Context, rows []models.TranscriptEntry) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []models.TranscriptEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
