package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/repositories/memory"
	"github.com/yoockh/yoointerview/internal/utils"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type stubPreparer struct {
	mu      sync.Mutex
	calls   int
	content models.PreparedContent
	tasks   []models.CodingTask
}

func (p *stubPreparer) Prepare(context.Context, string, models.CandidateSnapshot) models.PreparedContent {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.content
}

func (p *stubPreparer) CodingTasks(context.Context, string, models.CandidateSnapshot) []models.CodingTask {
	return p.tasks
}

type recordingArchiver struct {
	archived []string
	err      error
}

func (a *recordingArchiver) Archive(_ context.Context, s *models.Session) error {
	a.archived = append(a.archived, s.SessionID)
	return a.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []string
}

func (p *recordingPublisher) Publish(_ context.Context, _, status, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *recordingPublisher) has(status string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.statuses {
		if s == status {
			return true
		}
	}
	return false
}

// fakeLLM returns replies in order, or err when set.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	systems []string
	history [][]llm.Message
}

func (f *fakeLLM) Generate(_ context.Context, system string, history []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, system)
	f.history = append(f.history, history)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", llm.ErrEmptyResponse
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeLLM) Close() error { return nil }

type failingProfiles struct{}

func (failingProfiles) GetByCandidateID(context.Context, string) (*models.CandidateProfile, error) {
	return nil, errors.New("connection refused")
}

func (failingProfiles) Upsert(context.Context, *models.CandidateProfile) error {
	return errors.New("connection refused")
}

type recordingUploader struct {
	names []string
	body  []byte
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, _ := io.ReadAll(r)
	u.names = append(u.names, name)
	u.body = b
	return "gs://bucket/" + name, nil
}

// sessionFixture wires a SessionService over the in-memory store with a
// fixed clock and a window of [14:00,15:00] UTC, grace 15/15.
type sessionFixture struct {
	svc   SessionService
	store *memory.SessionStore
	clock *fakeClock
	prep  *stubPreparer
	arch  *recordingArchiver
	pub   *recordingPublisher
}

func newSessionFixture(t *testing.T, maxAttempts int) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		store: memory.NewSessionStore(),
		clock: &fakeClock{t: at("09:00")},
		prep: &stubPreparer{content: models.PreparedContent{
			Questions:    []string{"Tell me about yourself.", "What is a goroutine?"},
			CodingTasks:  BuiltinTasks(),
			SystemPrompt: "be an interviewer",
			DataSource:   models.DataSourceDatabase,
		}},
		arch: &recordingArchiver{},
		pub:  &recordingPublisher{},
	}
	f.svc = NewSessionService(SessionDeps{
		Sessions:    f.store,
		Preparer:    f.prep,
		Transcripts: f.arch,
		Events:      f.pub,
		Logger:      logger.Discard(),
		Now:         f.clock.Now,
	}, SessionConfig{
		BeforeGraceMinutes: 15,
		AfterGraceMinutes:  15,
		MaxLoginAttempts:   maxAttempts,
		DefaultTimeZone:    "UTC",
	})
	return f
}

func (f *sessionFixture) create(t *testing.T, candidateID, jobID string) *CreatedSession {
	t.Helper()
	out, err := f.svc.Create(context.Background(), CreateSessionInput{
		CandidateID:     candidateID,
		ApplicationID:   "app-1",
		JobID:           jobID,
		RecruiterID:     "rec-1",
		Candidate:       models.CandidateSnapshot{Name: "Ayu", Email: "ayu@example.com", Role: "Backend Engineer"},
		ScheduledDate:   "2026-03-10",
		ScheduledTime:   "14:00",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return out
}

func wantCode(t *testing.T, err error, code utils.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", code)
	}
	if got := utils.CodeOf(err); got != code {
		t.Fatalf("code = %s, want %s (err: %v)", got, code, err)
	}
}

func decisionOf(t *testing.T, err error) AccessDecision {
	t.Helper()
	var ae *utils.AppError
	if !errors.As(err, &ae) {
		t.Fatalf("error %v is not an AppError", err)
	}
	d, ok := ae.Details.(AccessDecision)
	if !ok {
		t.Fatalf("details = %#v, want AccessDecision", ae.Details)
	}
	return d
}
