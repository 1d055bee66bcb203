package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ScheduledStore struct {
	mu    sync.Mutex
	items map[string]*models.ScheduledSession
}

func NewScheduledStore() *ScheduledStore {
	return &ScheduledStore{items: make(map[string]*models.ScheduledSession)}
}

func (m *ScheduledStore) Create(_ context.Context, s *models.ScheduledSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[s.SessionID]; exists {
		return utils.ErrDuplicate
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.items[s.SessionID] = &cp
	return nil
}

func (m *ScheduledStore) GetBySessionID(_ context.Context, sessionID string) (*models.ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *ScheduledStore) IncrementAttempts(_ context.Context, sessionID string) (*models.ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if s.AccessAttempts >= s.MaxAccessAttempts {
		return nil, utils.ErrLimitReached
	}
	s.AccessAttempts++
	cp := *s
	return &cp, nil
}

func (m *ScheduledStore) setStatus(sessionID string, from []models.SessionStatus, fn func(s *models.ScheduledSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[sessionID]
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

func (m *ScheduledStore) Activate(_ context.Context, sessionID string, at time.Time) error {
	return m.setStatus(sessionID, []models.SessionStatus{models.StatusScheduled}, func(s *models.ScheduledSession) {
		s.Status = models.StatusActive
		s.ActivatedAt = timePtr(at)
	})
}

func (m *ScheduledStore) Cancel(_ context.Context, sessionID string) error {
	return m.setStatus(sessionID, models.OpenStatuses, func(s *models.ScheduledSession) {
		s.Status = models.StatusCancelled
	})
}

func (m *ScheduledStore) Expire(_ context.Context, sessionID string, at time.Time) error {
	return m.setStatus(sessionID, models.OpenStatuses, func(s *models.ScheduledSession) {
		s.Status = models.StatusExpired
		s.ExpiredAt = timePtr(at)
	})
}

func (m *ScheduledStore) ExpireEndedBefore(_ context.Context, cutoff, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.items {
		if isOpen(s.Status) && s.EndTime.Before(cutoff) {
			s.Status = models.StatusExpired
			s.ExpiredAt = timePtr(at)
			n++
		}
	}
	return n, nil
}

func (m *ScheduledStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.items {
		if s.Status == models.StatusExpired && s.ExpiredAt != nil && s.ExpiredAt.Before(cutoff) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}
