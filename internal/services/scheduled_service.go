package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ScheduledService books lightweight interview slots. Slots share the access
// gate with full sessions but carry no conversation.
type ScheduledService interface {
	Schedule(ctx context.Context, in ScheduleInput) (*models.ScheduledSession, error)
	Get(ctx context.Context, sessionID string) (*models.ScheduledSession, error)
	Access(ctx context.Context, sessionID, candidateID string) (*ScheduledAccess, error)
	Cancel(ctx context.Context, sessionID string) error
	Sweep(ctx context.Context) (SweepResult, error)
}

type ScheduleInput struct {
	CandidateID       string
	CandidateName     string
	StartTime         time.Time
	EndTime           time.Time
	MaxAccessAttempts int
}

type ScheduledAccess struct {
	Session  *models.ScheduledSession `json:"session"`
	Decision AccessDecision           `json:"decision"`
}

type SweepResult struct {
	Expired int64 `json:"expired"`
	Deleted int64 `json:"deleted"`
}

type ScheduledConfig struct {
	BeforeGraceMinutes int
	AfterGraceMinutes  int
	MaxAccessAttempts  int
	Retention          time.Duration // how long expired slots are kept
}

type scheduledService struct {
	repo mongorepo.ScheduledSessionRepository
	log  logrus.FieldLogger
	now  func() time.Time
	cfg  ScheduledConfig
}

func NewScheduledService(repo mongorepo.ScheduledSessionRepository, log logrus.FieldLogger, now func() time.Time, cfg ScheduledConfig) ScheduledService {
	if cfg.MaxAccessAttempts <= 0 {
		cfg.MaxAccessAttempts = 10
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &scheduledService{repo: repo, log: log, now: now, cfg: cfg}
}

func (s *scheduledService) Schedule(ctx context.Context, in ScheduleInput) (*models.ScheduledSession, error) {
	const op = "ScheduledService.Schedule"

	if strings.TrimSpace(in.CandidateID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "start_time and end_time are required", nil)
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "start_time must be before end_time", nil)
	}
	maxAttempts := in.MaxAccessAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAccessAttempts
	}

	slot := &models.ScheduledSession{
		SessionID:         uuid.NewString(),
		CandidateID:       in.CandidateID,
		CandidateName:     in.CandidateName,
		StartTime:         in.StartTime.UTC(),
		EndTime:           in.EndTime.UTC(),
		Status:            models.StatusScheduled,
		MaxAccessAttempts: maxAttempts,
		CreatedAt:         s.now(),
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		if errors.Is(err, utils.ErrDuplicate) {
			return nil, utils.E(utils.CodeConflict, op, "scheduled session already exists", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create scheduled session", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":   slot.SessionID,
		"candidate_id": slot.CandidateID,
	}).Info("slot scheduled")
	return slot, nil
}

func (s *scheduledService) Get(ctx context.Context, sessionID string) (*models.ScheduledSession, error) {
	const op = "ScheduledService.Get"

	if strings.TrimSpace(sessionID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	slot, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "scheduled session not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "scheduled session store unavailable", err)
	}
	return slot, nil
}

func (s *scheduledService) Access(ctx context.Context, sessionID, candidateID string) (*ScheduledAccess, error) {
	const op = "ScheduledService.Access"

	slot, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if slot.CandidateID != candidateID {
		return nil, utils.E(utils.CodeForbidden, op, "slot belongs to another candidate", nil)
	}

	now := s.now()
	in := scheduledGateInput(slot, s.cfg.BeforeGraceMinutes, s.cfg.AfterGraceMinutes)
	if !slot.Status.Terminal() && now.After(in.AccessEnd) {
		if err := s.repo.Expire(ctx, slot.SessionID, now); err != nil && !errors.Is(err, utils.ErrStateMismatch) {
			return nil, utils.E(utils.CodeUnavailable, op, "failed to expire scheduled session", err)
		}
		if slot, err = s.Get(ctx, sessionID); err != nil {
			return nil, err
		}
		in = scheduledGateInput(slot, s.cfg.BeforeGraceMinutes, s.cfg.AfterGraceMinutes)
	}

	d := EvaluateAccess(in, now)

	counted, err := s.repo.IncrementAttempts(ctx, slot.SessionID)
	switch {
	case errors.Is(err, utils.ErrLimitReached):
		if d.Allowed {
			d.Allowed = false
			d.Reason = ReasonLocked
		}
		d.Attempts = slot.MaxAccessAttempts
	case err != nil:
		return nil, utils.E(utils.CodeUnavailable, op, "scheduled session store unavailable", err)
	default:
		slot = counted
		d.Attempts = slot.AccessAttempts
	}
	if !d.Allowed {
		return nil, denialError(op, d)
	}

	if slot.Status == models.StatusScheduled {
		err := s.repo.Activate(ctx, slot.SessionID, now)
		switch {
		case err == nil:
			slot.Status = models.StatusActive
			slot.ActivatedAt = &now
		case errors.Is(err, utils.ErrStateMismatch):
			if slot, err = s.Get(ctx, sessionID); err != nil {
				return nil, err
			}
			if slot.Status != models.StatusActive {
				d = EvaluateAccess(scheduledGateInput(slot, s.cfg.BeforeGraceMinutes, s.cfg.AfterGraceMinutes), now)
				d.Allowed = false
				return nil, denialError(op, d)
			}
		default:
			return nil, utils.E(utils.CodeUnavailable, op, "failed to activate scheduled session", err)
		}
	}
	d.Status = slot.Status
	return &ScheduledAccess{Session: slot, Decision: d}, nil
}

func (s *scheduledService) Cancel(ctx context.Context, sessionID string) error {
	const op = "ScheduledService.Cancel"

	slot, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.Cancel(ctx, slot.SessionID); err != nil {
		if errors.Is(err, utils.ErrStateMismatch) {
			return utils.E(utils.CodeForbidden, op, "scheduled session is already "+string(slot.Status), err)
		}
		return utils.E(utils.CodeUnavailable, op, "failed to cancel scheduled session", err)
	}
	s.log.WithField("session_id", slot.SessionID).Info("slot cancelled")
	return nil
}

// Sweep expires slots whose access window has closed, then deletes expired
// slots older than the retention. It only touches past-window records.
func (s *scheduledService) Sweep(ctx context.Context) (SweepResult, error) {
	const op = "ScheduledService.Sweep"

	now := s.now()
	var res SweepResult

	cutoff := now.Add(-time.Duration(s.cfg.AfterGraceMinutes) * time.Minute)
	n, err := s.repo.ExpireEndedBefore(ctx, cutoff, now)
	if err != nil {
		return res, utils.E(utils.CodeUnavailable, op, "failed to expire scheduled sessions", err)
	}
	res.Expired = n

	n, err = s.repo.DeleteExpiredBefore(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return res, utils.E(utils.CodeUnavailable, op, "failed to delete expired scheduled sessions", err)
	}
	res.Deleted = n

	s.log.WithFields(logrus.Fields{"expired": res.Expired, "deleted": res.Deleted}).Info("scheduled sessions swept")
	return res, nil
}
