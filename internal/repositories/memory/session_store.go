package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

// SessionStore keeps sessions in memory. A single mutex gives every method the
// same per-document atomicity the Mongo repository relies on.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*models.Session)}
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.Candidate.TechStack = append([]string(nil), s.Candidate.TechStack...)
	c.Conversation.Messages = append([]models.Message{}, s.Conversation.Messages...)
	c.Conversation.CodingTestRecords = append([]models.CodingTestRecord{}, s.Conversation.CodingTestRecords...)
	if s.Prepared != nil {
		p := *s.Prepared
		p.Questions = append([]string(nil), s.Prepared.Questions...)
		p.CodingTasks = append([]models.CodingTask(nil), s.Prepared.CodingTasks...)
		c.Prepared = &p
	}
	return &c
}

func isOpen(st models.SessionStatus) bool { return !st.Terminal() }

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

func (m *SessionStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.SessionID]; exists {
		return utils.ErrDuplicate
	}
	if s.OpenKey != "" {
		for _, other := range m.sessions {
			if other.OpenKey == s.OpenKey {
				return utils.ErrDuplicate
			}
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.SessionID] = cloneSession(s)
	return nil
}

func (m *SessionStore) GetBySessionID(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *SessionStore) LatestOpenByCandidate(_ context.Context, candidateID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []*models.Session
	for _, s := range m.sessions {
		if s.CandidateID == candidateID && isOpen(s.Status) {
			open = append(open, s)
		}
	}
	if len(open) == 0 {
		return nil, utils.ErrNotFound
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.After(open[j].CreatedAt) })
	return cloneSession(open[0]), nil
}

func (m *SessionStore) FindOpen(_ context.Context, candidateID, jobID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.CandidateID == candidateID && s.JobID == jobID && isOpen(s.Status) {
			return cloneSession(s), nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *SessionStore) IncrementAttempts(_ context.Context, sessionID string, at time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if s.Security.LoginAttempts >= s.Security.MaxLoginAttempts {
		return nil, utils.ErrLimitReached
	}
	s.Security.LoginAttempts++
	s.Security.LastAttemptAt = timePtr(at)
	s.UpdatedAt = at.UTC()
	return cloneSession(s), nil
}

func (m *SessionStore) ResetAttempts(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.Security.LoginAttempts = 0
	return nil
}

// guarded runs fn under the lock when the session exists and is in one of from.
func (m *SessionStore) guarded(sessionID string, from []models.SessionStatus, fn func(s *models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return utils.ErrStateMismatch
	}
	for _, st := range from {
		if s.Status == st {
			fn(s)
			return nil
		}
	}
	return utils.ErrStateMismatch
}

func (m *SessionStore) Activate(_ context.Context, sessionID string, joinedAt, accessEnd time.Time) error {
	return m.guarded(sessionID, []models.SessionStatus{models.StatusScheduled}, func(s *models.Session) {
		s.Status = models.StatusActive
		s.AccessControl.IsActive = true
		s.AccessControl.JoinedAt = timePtr(joinedAt)
		s.AccessControl.AccessEnd = timePtr(accessEnd)
		s.UpdatedAt = joinedAt.UTC()
	})
}

func (m *SessionStore) Complete(_ context.Context, sessionID string, leftAt time.Time, minutesSpent int) error {
	return m.guarded(sessionID, models.OpenStatuses, func(s *models.Session) {
		s.Status = models.StatusCompleted
		s.AccessControl.IsActive = false
		s.AccessControl.LeftAt = timePtr(leftAt)
		s.AccessControl.TotalMinutesSpent = minutesSpent
		s.Conversation.AwaitingCodingSubmission = false
		s.EndedAt = timePtr(leftAt)
		s.OpenKey = ""
		s.UpdatedAt = leftAt.UTC()
	})
}

func (m *SessionStore) Cancel(_ context.Context, sessionID string, at time.Time) error {
	return m.guarded(sessionID, models.OpenStatuses, func(s *models.Session) {
		s.Status = models.StatusCancelled
		s.AccessControl.IsActive = false
		s.CancelledAt = timePtr(at)
		s.OpenKey = ""
		s.UpdatedAt = at.UTC()
	})
}

func expire(s *models.Session, at time.Time) {
	s.Status = models.StatusExpired
	s.AccessControl.IsActive = false
	s.ExpiredAt = timePtr(at)
	s.OpenKey = ""
	s.UpdatedAt = at.UTC()
}

func (m *SessionStore) Expire(_ context.Context, sessionID string, at time.Time) error {
	return m.guarded(sessionID, models.OpenStatuses, func(s *models.Session) { expire(s, at) })
}

func (m *SessionStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sessions {
		if isOpen(s.Status) && s.Window.AccessEnd().Before(now) {
			expire(s, now)
			n++
		}
	}
	return n, nil
}

func (m *SessionStore) SetPreparedIfAbsent(_ context.Context, sessionID string, pc *models.PreparedContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.Prepared != nil {
		return utils.ErrStateMismatch
	}
	cp := *pc
	s.Prepared = &cp
	return nil
}

func (m *SessionStore) InitConversation(_ context.Context, sessionID string, msgs []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.StatusActive || len(s.Conversation.Messages) > 0 {
		return utils.ErrStateMismatch
	}
	s.Conversation.Messages = append(s.Conversation.Messages, msgs...)
	return nil
}

func (m *SessionStore) AppendMessages(_ context.Context, sessionID string, msgs ...models.Message) (*models.Session, error) {
	var out *models.Session
	err := m.guarded(sessionID, []models.SessionStatus{models.StatusActive}, func(s *models.Session) {
		s.Conversation.Messages = append(s.Conversation.Messages, msgs...)
		out = cloneSession(s)
	})
	return out, err
}

func (m *SessionStore) StartCoding(_ context.Context, sessionID string, rec models.CodingTestRecord, announce models.Message) error {
	return m.guarded(sessionID, []models.SessionStatus{models.StatusActive}, func(s *models.Session) {
		for i := range s.Conversation.CodingTestRecords {
			r := &s.Conversation.CodingTestRecords[i]
			if r.Open() {
				r.SubmittedAt = timePtr(rec.StartedAt)
				r.Abandoned = true
			}
		}
		rec.SubmittedAt = nil
		s.Conversation.CodingTestRecords = append(s.Conversation.CodingTestRecords, rec)
		s.Conversation.AwaitingCodingSubmission = true
		s.Conversation.Messages = append(s.Conversation.Messages, announce)
		s.UpdatedAt = rec.StartedAt.UTC()
	})
}

func (m *SessionStore) FinishCoding(_ context.Context, sessionID string, sub models.CodingSubmission, msg models.Message) error {
	return m.guarded(sessionID, []models.SessionStatus{models.StatusActive}, func(s *models.Session) {
		for i := range s.Conversation.CodingTestRecords {
			r := &s.Conversation.CodingTestRecords[i]
			if r.Open() {
				passed := sub.Passed
				r.SubmittedAt = timePtr(sub.SubmittedAt)
				r.Passed = &passed
				r.Language = sub.Language
				r.ResultSummary = sub.ResultSummary
				r.ArtifactPath = sub.ArtifactPath
			}
		}
		s.Conversation.AwaitingCodingSubmission = false
		s.Conversation.Messages = append(s.Conversation.Messages, msg)
		s.UpdatedAt = sub.SubmittedAt.UTC()
	})
}
