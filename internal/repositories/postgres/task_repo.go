package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository is the per-candidate coding task store.
type TaskRepository interface {
	Get(ctx context.Context, candidateID string) (*models.CandidateTaskSet, error)
	Save(ctx context.Context, set *models.CandidateTaskSet) error
}

type taskRepo struct {
	db *gorm.DB
}

func NewTaskRepo(db *gorm.DB) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Get(ctx context.Context, candidateID string) (*models.CandidateTaskSet, error) {
	var row models.CandidateTaskSet
	err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *taskRepo) Save(ctx context.Context, set *models.CandidateTaskSet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tasks", "source", "updated_at"}),
		}).
		Create(set).Error
}
