package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ProfileService interface {
	Get(ctx context.Context, candidateID string) (*models.CandidateProfile, error)
	Upsert(ctx context.Context, p *models.CandidateProfile) error
}

type profileService struct {
	profiles pgrepo.ProfileRepository
}

func NewProfileService(profiles pgrepo.ProfileRepository) ProfileService {
	return &profileService{profiles: profiles}
}

func (s *profileService) Get(ctx context.Context, candidateID string) (*models.CandidateProfile, error) {
	const op = "ProfileService.Get"

	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}

	p, err := s.profiles.GetByCandidateID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to get profile", err)
	}
	return p, nil
}

func (s *profileService) Upsert(ctx context.Context, p *models.CandidateProfile) error {
	const op = "ProfileService.Upsert"

	if p == nil || strings.TrimSpace(p.CandidateID) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "profile.candidate_id is required", nil)
	}
	if len(p.Assessment) > 0 && string(p.Assessment) != "null" {
		var a models.Assessment
		if err := json.Unmarshal(p.Assessment, &a); err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "assessment must be an object with a questions list", err)
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to upsert profile", err)
	}
	return nil
}
