package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]models.CandidateProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]models.CandidateProfile)}
}

func (m *ProfileStore) GetByCandidateID(_ context.Context, candidateID string) (*models.CandidateProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[candidateID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &p, nil
}

func (m *ProfileStore) Upsert(_ context.Context, p *models.CandidateProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[p.CandidateID] = *p
	return nil
}

type TaskStore struct {
	mu   sync.RWMutex
	sets map[string]models.CandidateTaskSet
}

func NewTaskStore() *TaskStore {
	return &TaskStore{sets: make(map[string]models.CandidateTaskSet)}
}

func (m *TaskStore) Get(_ context.Context, candidateID string) (*models.CandidateTaskSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sets[candidateID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &s, nil
}

func (m *TaskStore) Save(_ context.Context, set *models.CandidateTaskSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[set.CandidateID] = *set
	return nil
}

type TranscriptStore struct {
	mu   sync.RWMutex
	rows []models.TranscriptEntry
}

func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{}
}

func (m *TranscriptStore) InsertBatch(_ context.Context, rows []models.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = append(m.rows, rows...)
	return nil
}

func (m *TranscriptStore) ListBySession(_ context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}
	var out []models.TranscriptEntry
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
