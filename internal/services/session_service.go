package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/models"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContentPreparer assembles the questions, coding tasks and system prompt of a
// session. It never fails.
type ContentPreparer interface {
	Prepare(ctx context.Context, candidateID string, snapshot models.CandidateSnapshot) models.PreparedContent
	CodingTasks(ctx context.Context, candidateID string, snapshot models.CandidateSnapshot) []models.CodingTask
}

type TranscriptArchiver interface {
	Archive(ctx context.Context, s *models.Session) error
}

// SessionAuthorizer resolves an in-session access token to its session.
type SessionAuthorizer interface {
	Authorize(ctx context.Context, sessionID, token string) (*models.Session, error)
}

type SessionService interface {
	SessionAuthorizer

	Create(ctx context.Context, in CreateSessionInput) (*CreatedSession, error)
	Access(ctx context.Context, sessionID, token string) (*AccessResult, error)
	AccessByCandidate(ctx context.Context, candidateID string) (*AccessResult, error)
	Status(ctx context.Context, sessionID string, token *string) (*StatusView, error)
	End(ctx context.Context, sessionID, token string) (*EndSummary, error)
	Cancel(ctx context.Context, sessionID, token string) error
	CancelByRecruiter(ctx context.Context, sessionID, recruiterID string, admin bool) error
	ResetAttempts(ctx context.Context, sessionID string) error
	ExpireOverdue(ctx context.Context) (int64, error)
}

type CreateSessionInput struct {
	CandidateID   string
	ApplicationID string
	JobID         string
	RecruiterID   string
	Candidate     models.CandidateSnapshot

	ScheduledDate   string // YYYY-MM-DD in TimeZone
	ScheduledTime   string // HH:MM in TimeZone
	DurationMinutes int
	TimeZone        string

	// nil means the configured default
	BeforeGraceMinutes *int
	AfterGraceMinutes  *int
	MaxLoginAttempts   int
}

type CreatedSession struct {
	SessionID   string               `json:"session_id"`
	AccessToken string               `json:"access_token"`
	Status      models.SessionStatus `json:"status"`
	Window      models.SessionWindow `json:"window"`
	AccessStart time.Time            `json:"access_start"`
	AccessEnd   time.Time            `json:"access_end"`
}

type SessionSummary struct {
	SessionID        string                   `json:"session_id"`
	CandidateID      string                   `json:"candidate_id"`
	JobID            string                   `json:"job_id"`
	Status           models.SessionStatus     `json:"status"`
	Candidate        models.CandidateSnapshot `json:"candidate"`
	Window           models.SessionWindow     `json:"window"`
	AccessStart      time.Time                `json:"access_start"`
	AccessEnd        time.Time                `json:"access_end"`
	JoinedAt         *time.Time               `json:"joined_at,omitempty"`
	MinutesToEnd     int                      `json:"minutes_to_end"`
	LoginAttempts    int                      `json:"login_attempts"`
	MaxLoginAttempts int                      `json:"max_login_attempts"`
}

type AccessResult struct {
	Session  SessionSummary         `json:"session"`
	Prepared models.PreparedContent `json:"prepared_content"`
	// only set for the authenticated candidate flow
	AccessToken string `json:"access_token,omitempty"`
}

type StatusView struct {
	SessionID      string               `json:"session_id"`
	Status         models.SessionStatus `json:"status"`
	Accessible     bool                 `json:"accessible"`
	Reason         DenyReason           `json:"reason,omitempty"`
	AccessStart    time.Time            `json:"access_start"`
	AccessEnd      time.Time            `json:"access_end"`
	MinutesToStart int                  `json:"minutes_to_start"`
	MinutesToEnd   int                  `json:"minutes_to_end"`
	Detail         *StatusDetail        `json:"detail,omitempty"`
}

type StatusDetail struct {
	LoginAttempts            int               `json:"login_attempts"`
	MaxLoginAttempts         int               `json:"max_login_attempts"`
	JoinedAt                 *time.Time        `json:"joined_at,omitempty"`
	LeftAt                   *time.Time        `json:"left_at,omitempty"`
	TotalMinutesSpent        int               `json:"total_minutes_spent"`
	AwaitingCodingSubmission bool              `json:"awaiting_coding_submission"`
	CodingRecords            int               `json:"coding_records"`
	Messages                 int               `json:"messages"`
	DataSource               models.DataSource `json:"data_source,omitempty"`
}

type EndSummary struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	JoinedAt  *time.Time           `json:"joined_at,omitempty"`
	LeftAt    time.Time            `json:"left_at"`
	// ScheduledDurationMinutes is the booked length of the interview.
	ScheduledDurationMinutes int `json:"scheduled_duration_minutes"`
	// TotalMinutesSpent is the rounded time between joining and ending.
	TotalMinutesSpent int `json:"total_minutes_spent"`
}

type SessionConfig struct {
	BeforeGraceMinutes int
	AfterGraceMinutes  int
	MaxLoginAttempts   int
	DefaultTimeZone    string
}

type SessionDeps struct {
	Sessions    mongorepo.SessionRepository
	Preparer    ContentPreparer
	Transcripts TranscriptArchiver // optional
	Events      events.Publisher   // optional
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

type sessionService struct {
	sessions    mongorepo.SessionRepository
	preparer    ContentPreparer
	transcripts TranscriptArchiver
	events      events.Publisher
	log         logrus.FieldLogger
	now         func() time.Time
	cfg         SessionConfig
}

func NewSessionService(d SessionDeps, cfg SessionConfig) SessionService {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 10
	}
	if cfg.DefaultTimeZone == "" {
		cfg.DefaultTimeZone = "UTC"
	}
	s := &sessionService{
		sessions:    d.Sessions,
		preparer:    d.Preparer,
		transcripts: d.Transcripts,
		events:      d.Events,
		log:         d.Logger,
		now:         d.Now,
		cfg:         cfg,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *sessionService) Create(ctx context.Context, in CreateSessionInput) (*CreatedSession, error) {
	const op = "SessionService.Create"

	in.CandidateID = strings.TrimSpace(in.CandidateID)
	in.JobID = strings.TrimSpace(in.JobID)
	if in.CandidateID == "" || in.JobID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id and job_id are required", nil)
	}
	if in.ScheduledDate == "" || in.ScheduledTime == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "scheduled_date and scheduled_time are required", nil)
	}

	before, after := s.cfg.BeforeGraceMinutes, s.cfg.AfterGraceMinutes
	if in.BeforeGraceMinutes != nil {
		before = *in.BeforeGraceMinutes
	}
	if in.AfterGraceMinutes != nil {
		after = *in.AfterGraceMinutes
	}
	tz := in.TimeZone
	if tz == "" {
		tz = s.cfg.DefaultTimeZone
	}
	window, err := BuildWindow(in.ScheduledDate, in.ScheduledTime, in.DurationMinutes, tz, before, after)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), err)
	}

	maxAttempts := in.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxLoginAttempts
	}

	now := s.now()
	existing, err := s.sessions.FindOpen(ctx, in.CandidateID, in.JobID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
	case err != nil:
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	default:
		existing, err = s.expireIfOverdue(ctx, op, existing, now)
		if err != nil {
			return nil, err
		}
		if !existing.Status.Terminal() {
			return nil, utils.ED(utils.CodeConflict, op, "an open session already exists for this candidate and job", map[string]any{
				"session_id": existing.SessionID,
				"status":     existing.Status,
			})
		}
	}

	token, err := utils.NewAccessToken()
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to generate access token", err)
	}

	sess := &models.Session{
		SessionID:     uuid.NewString(),
		CandidateID:   in.CandidateID,
		ApplicationID: in.ApplicationID,
		JobID:         in.JobID,
		RecruiterID:   in.RecruiterID,
		Candidate:     in.Candidate,
		Window:        window,
		Status:        models.StatusScheduled,
		Security: models.SessionSecurity{
			AccessToken:      token,
			MaxLoginAttempts: maxAttempts,
		},
		OpenKey:   models.OpenKey(in.CandidateID, in.JobID),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, utils.ErrDuplicate) {
			return nil, utils.E(utils.CodeConflict, op, "an open session already exists for this candidate and job", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create session", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":   sess.SessionID,
		"candidate_id": sess.CandidateID,
		"job_id":       sess.JobID,
		"access_token": utils.MaskToken(token),
	}).Info("session created")

	return &CreatedSession{
		SessionID:   sess.SessionID,
		AccessToken: token,
		Status:      sess.Status,
		Window:      window,
		AccessStart: window.AccessStart(),
		AccessEnd:   window.AccessEnd(),
	}, nil
}

func (s *sessionService) Access(ctx context.Context, sessionID, token string) (*AccessResult, error) {
	const op = "SessionService.Access"

	if strings.TrimSpace(sessionID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if token == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "access token is required", nil)
	}

	ss, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	ss, err = s.enter(ctx, op, ss, &token)
	if err != nil {
		return nil, err
	}
	return &AccessResult{Session: summarize(ss, s.now()), Prepared: *ss.Prepared}, nil
}

func (s *sessionService) AccessByCandidate(ctx context.Context, candidateID string) (*AccessResult, error) {
	const op = "SessionService.AccessByCandidate"

	if strings.TrimSpace(candidateID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}

	ss, err := s.sessions.LatestOpenByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no open session for candidate", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	ss, err = s.enter(ctx, op, ss, nil)
	if err != nil {
		return nil, err
	}
	return &AccessResult{
		Session:     summarize(ss, s.now()),
		Prepared:    *ss.Prepared,
		AccessToken: ss.Security.AccessToken,
	}, nil
}

// enter is the shared entry flow: gate, attempt accounting, optional token
// check, activation and first-time content preparation.
func (s *sessionService) enter(ctx context.Context, op string, ss *models.Session, token *string) (*models.Session, error) {
	now := s.now()
	ss, err := s.expireIfOverdue(ctx, op, ss, now)
	if err != nil {
		return nil, err
	}

	// The decision uses the count before this request. Denied requests are
	// counted too; the ceiling only changes the outcome of an allowed one.
	d := EvaluateAccess(sessionGateInput(ss), now)

	counted, err := s.sessions.IncrementAttempts(ctx, ss.SessionID, now)
	switch {
	case errors.Is(err, utils.ErrLimitReached):
		if d.Allowed {
			d.Allowed = false
			d.Reason = ReasonLocked
		}
		d.Attempts = ss.Security.MaxLoginAttempts
	case err != nil:
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	default:
		ss = counted
		d.Attempts = ss.Security.LoginAttempts
	}
	if !d.Allowed {
		return nil, denialError(op, d)
	}

	if token != nil && !TokensEqual(*token, ss.Security.AccessToken) {
		d.Allowed = false
		d.Reason = ReasonInvalidToken
		s.log.WithFields(logrus.Fields{
			"session_id": ss.SessionID,
			"attempts":   d.Attempts,
			"token":      utils.MaskToken(*token),
		}).Warn("access token mismatch")
		return nil, denialError(op, d)
	}

	if ss.Status == models.StatusScheduled {
		ss, err = s.activate(ctx, op, ss, now)
		if err != nil {
			return nil, err
		}
	}

	if ss.Prepared == nil {
		pc := s.preparer.Prepare(ctx, ss.CandidateID, ss.Candidate)
		err := s.sessions.SetPreparedIfAbsent(ctx, ss.SessionID, &pc)
		switch {
		case err == nil:
			ss.Prepared = &pc
			s.log.WithFields(logrus.Fields{
				"session_id":  ss.SessionID,
				"data_source": pc.DataSource,
			}).Info("session content prepared")
		case errors.Is(err, utils.ErrStateMismatch):
			// a concurrent entry stored its content first; keep that one
			fresh, gerr := s.sessions.GetBySessionID(ctx, ss.SessionID)
			if gerr != nil {
				return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", gerr)
			}
			ss = fresh
			if ss.Prepared == nil {
				ss.Prepared = &pc
			}
		default:
			return nil, utils.E(utils.CodeUnavailable, op, "failed to store prepared content", err)
		}
	}
	return ss, nil
}

func (s *sessionService) activate(ctx context.Context, op string, ss *models.Session, now time.Time) (*models.Session, error) {
	accessEnd := ss.Window.AccessEnd()
	err := s.sessions.Activate(ctx, ss.SessionID, now, accessEnd)
	if err == nil {
		ss.Status = models.StatusActive
		ss.AccessControl.IsActive = true
		ss.AccessControl.JoinedAt = &now
		ss.AccessControl.AccessEnd = &accessEnd
		s.log.WithFields(logrus.Fields{
			"session_id":   ss.SessionID,
			"candidate_id": ss.CandidateID,
		}).Info("session activated")
		s.publish(ctx, ss.SessionID, events.StatusReady, "")
		return ss, nil
	}
	if !errors.Is(err, utils.ErrStateMismatch) {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to activate session", err)
	}

	// lost the race: someone else activated, ended or cancelled it
	fresh, gerr := s.sessions.GetBySessionID(ctx, ss.SessionID)
	if gerr != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", gerr)
	}
	if fresh.Status != models.StatusActive {
		d := EvaluateAccess(sessionGateInput(fresh), now)
		d.Allowed = false
		return nil, denialError(op, d)
	}
	return fresh, nil
}

func (s *sessionService) Authorize(ctx context.Context, sessionID, token string) (*models.Session, error) {
	return s.authorize(ctx, "SessionService.Authorize", sessionID, token)
}

// authorize checks an in-session token. The lock is checked before the token
// is compared; only mismatches count as attempts.
func (s *sessionService) authorize(ctx context.Context, op, sessionID, token string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if token == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "access token is required", nil)
	}

	ss, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkToken(ctx, op, ss, token); err != nil {
		return nil, err
	}
	return ss, nil
}

func (s *sessionService) checkToken(ctx context.Context, op string, ss *models.Session, token string) error {
	now := s.now()
	d := EvaluateAccess(sessionGateInput(ss), now)
	d.Allowed = false

	if ss.Security.LoginAttempts >= ss.Security.MaxLoginAttempts {
		d.Reason = ReasonLocked
		return denialError(op, d)
	}
	if TokensEqual(token, ss.Security.AccessToken) {
		return nil
	}

	counted, err := s.sessions.IncrementAttempts(ctx, ss.SessionID, now)
	switch {
	case errors.Is(err, utils.ErrLimitReached):
		d.Reason = ReasonLocked
		d.Attempts = ss.Security.MaxLoginAttempts
		return denialError(op, d)
	case err != nil:
		return utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}

	d.Reason = ReasonInvalidToken
	d.Attempts = counted.Security.LoginAttempts
	s.log.WithFields(logrus.Fields{
		"session_id": ss.SessionID,
		"attempts":   d.Attempts,
		"token":      utils.MaskToken(token),
	}).Warn("access token mismatch")
	return denialError(op, d)
}

func (s *sessionService) Status(ctx context.Context, sessionID string, token *string) (*StatusView, error) {
	const op = "SessionService.Status"

	if strings.TrimSpace(sessionID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	ss, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if token != nil {
		if err := s.checkToken(ctx, op, ss, *token); err != nil {
			return nil, err
		}
	}

	d := EvaluateAccess(sessionGateInput(ss), s.now())
	view := &StatusView{
		SessionID:      ss.SessionID,
		Status:         ss.Status,
		Accessible:     d.Allowed,
		Reason:         d.Reason,
		AccessStart:    d.AccessStart,
		AccessEnd:      d.AccessEnd,
		MinutesToStart: d.MinutesToStart,
		MinutesToEnd:   d.MinutesToEnd,
	}
	if token == nil {
		return view, nil
	}

	view.Detail = &StatusDetail{
		LoginAttempts:            ss.Security.LoginAttempts,
		MaxLoginAttempts:         ss.Security.MaxLoginAttempts,
		JoinedAt:                 ss.AccessControl.JoinedAt,
		LeftAt:                   ss.AccessControl.LeftAt,
		TotalMinutesSpent:        ss.AccessControl.TotalMinutesSpent,
		AwaitingCodingSubmission: ss.Conversation.AwaitingCodingSubmission,
		CodingRecords:            len(ss.Conversation.CodingTestRecords),
		Messages:                 len(ss.Conversation.Messages),
	}
	if ss.Prepared != nil {
		view.Detail.DataSource = ss.Prepared.DataSource
	}
	return view, nil
}

func (s *sessionService) End(ctx context.Context, sessionID, token string) (*EndSummary, error) {
	const op = "SessionService.End"

	ss, err := s.authorize(ctx, op, sessionID, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if ss.Status.Terminal() {
		return nil, statusDenial(op, ss, now)
	}

	minutes := 0
	if j := ss.AccessControl.JoinedAt; j != nil {
		minutes = int(math.Round(now.Sub(*j).Minutes()))
		if minutes < 0 {
			minutes = 0
		}
	}

	if err := s.sessions.Complete(ctx, ss.SessionID, now, minutes); err != nil {
		return nil, s.transitionError(ctx, op, ss.SessionID, err, now)
	}
	ss.Status = models.StatusCompleted
	ss.AccessControl.IsActive = false
	ss.AccessControl.LeftAt = &now
	ss.AccessControl.TotalMinutesSpent = minutes

	log := s.log.WithFields(logrus.Fields{"session_id": ss.SessionID, "minutes": minutes})
	log.Info("session completed")

	if s.transcripts != nil {
		if err := s.transcripts.Archive(ctx, ss); err != nil {
			log.WithError(err).Warn("transcript archive failed")
		}
	}
	s.publish(ctx, ss.SessionID, events.StatusEnded, "completed")

	return &EndSummary{
		SessionID:                ss.SessionID,
		Status:                   ss.Status,
		JoinedAt:                 ss.AccessControl.JoinedAt,
		LeftAt:                   now,
		ScheduledDurationMinutes: ss.Window.DurationMinutes,
		TotalMinutesSpent:        minutes,
	}, nil
}

func (s *sessionService) Cancel(ctx context.Context, sessionID, token string) error {
	const op = "SessionService.Cancel"

	ss, err := s.authorize(ctx, op, sessionID, token)
	if err != nil {
		return err
	}
	return s.cancel(ctx, op, ss)
}

func (s *sessionService) CancelByRecruiter(ctx context.Context, sessionID, recruiterID string, admin bool) error {
	const op = "SessionService.CancelByRecruiter"

	if strings.TrimSpace(sessionID) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	ss, err := s.load(ctx, op, sessionID)
	if err != nil {
		return err
	}
	if !admin && ss.RecruiterID != recruiterID {
		return utils.E(utils.CodeForbidden, op, "session belongs to another recruiter", nil)
	}
	return s.cancel(ctx, op, ss)
}

func (s *sessionService) cancel(ctx context.Context, op string, ss *models.Session) error {
	now := s.now()
	if ss.Status.Terminal() {
		return statusDenial(op, ss, now)
	}
	if err := s.sessions.Cancel(ctx, ss.SessionID, now); err != nil {
		return s.transitionError(ctx, op, ss.SessionID, err, now)
	}
	s.log.WithField("session_id", ss.SessionID).Info("session cancelled")
	s.publish(ctx, ss.SessionID, events.StatusEnded, "cancelled")
	return nil
}

func (s *sessionService) ResetAttempts(ctx context.Context, sessionID string) error {
	const op = "SessionService.ResetAttempts"

	if strings.TrimSpace(sessionID) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if err := s.sessions.ResetAttempts(ctx, sessionID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return utils.E(utils.CodeUnavailable, op, "failed to reset attempts", err)
	}
	s.log.WithField("session_id", sessionID).Info("login attempts reset")
	return nil
}

func (s *sessionService) ExpireOverdue(ctx context.Context) (int64, error) {
	const op = "SessionService.ExpireOverdue"

	n, err := s.sessions.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, utils.E(utils.CodeUnavailable, op, "failed to expire sessions", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired overdue sessions")
	}
	return n, nil
}

// load fetches a session and applies lazy expiry.
func (s *sessionService) load(ctx context.Context, op, sessionID string) (*models.Session, error) {
	ss, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	return s.expireIfOverdue(ctx, op, ss, s.now())
}

func (s *sessionService) expireIfOverdue(ctx context.Context, op string, ss *models.Session, now time.Time) (*models.Session, error) {
	if ss.Status.Terminal() || !now.After(ss.Window.AccessEnd()) {
		return ss, nil
	}

	err := s.sessions.Expire(ctx, ss.SessionID, now)
	switch {
	case err == nil:
		ss.Status = models.StatusExpired
		ss.AccessControl.IsActive = false
		ss.ExpiredAt = &now
		s.log.WithField("session_id", ss.SessionID).Info("session expired")
		s.publish(ctx, ss.SessionID, events.StatusEnded, "expired")
		return ss, nil
	case errors.Is(err, utils.ErrStateMismatch):
		fresh, gerr := s.sessions.GetBySessionID(ctx, ss.SessionID)
		if gerr != nil {
			return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", gerr)
		}
		return fresh, nil
	default:
		return nil, utils.E(utils.CodeUnavailable, op, "failed to expire session", err)
	}
}

// transitionError explains a guarded update that matched nothing.
func (s *sessionService) transitionError(ctx context.Context, op, sessionID string, err error, now time.Time) error {
	if !errors.Is(err, utils.ErrStateMismatch) {
		return utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	fresh, gerr := s.sessions.GetBySessionID(ctx, sessionID)
	if gerr != nil {
		return utils.E(utils.CodeUnavailable, op, "session store unavailable", gerr)
	}
	return statusDenial(op, fresh, now)
}

func (s *sessionService) publish(ctx context.Context, sessionID, status, message string) {
	if err := s.events.Publish(ctx, sessionID, status, message); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Debug("status event not published")
	}
}

func statusDenial(op string, ss *models.Session, now time.Time) error {
	d := EvaluateAccess(sessionGateInput(ss), now)
	d.Allowed = false
	if d.Reason == "" {
		d.Reason = DenyReason(ss.Status)
	}
	return denialError(op, d)
}

// denialError maps a gate decision to the error taxonomy. The decision rides
// along as details so clients can explain the denial.
func denialError(op string, d AccessDecision) error {
	switch d.Reason {
	case ReasonLocked:
		return utils.ED(utils.CodeLocked, op, "too many access attempts; session is locked", d)
	case ReasonInvalidToken:
		return utils.ED(utils.CodeUnauthorized, op, "invalid access token", d)
	case ReasonNotStarted:
		return utils.ED(utils.CodeForbidden, op, "session window has not opened yet", d)
	case ReasonWindowClosed, ReasonExpired:
		return utils.ED(utils.CodeForbidden, op, "session has expired", d)
	case ReasonCancelled:
		return utils.ED(utils.CodeForbidden, op, "session was cancelled", d)
	case ReasonCompleted:
		return utils.ED(utils.CodeForbidden, op, "session already completed", d)
	default:
		return utils.ED(utils.CodeForbidden, op, "session is not accessible", d)
	}
}

func summarize(ss *models.Session, now time.Time) SessionSummary {
	return SessionSummary{
		SessionID:        ss.SessionID,
		CandidateID:      ss.CandidateID,
		JobID:            ss.JobID,
		Status:           ss.Status,
		Candidate:        ss.Candidate,
		Window:           ss.Window,
		AccessStart:      ss.Window.AccessStart(),
		AccessEnd:        ss.Window.AccessEnd(),
		JoinedAt:         ss.AccessControl.JoinedAt,
		MinutesToEnd:     ceilMinutes(ss.Window.AccessEnd().Sub(now)),
		LoginAttempts:    ss.Security.LoginAttempts,
		MaxLoginAttempts: ss.Security.MaxLoginAttempts,
	}
}
