package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/sirupsen/logrus"
)

type ConversationService interface {
	Initialize(ctx context.Context, sessionID, token string) (*InitResult, error)
	PostMessage(ctx context.Context, sessionID, token, text string) (*Reply, error)
	CodeStart(ctx context.Context, sessionID, token, testName, candidateID string) (*CodeStartResult, error)
	CodeResult(ctx context.Context, in CodeResultInput) (*Reply, error)
	History(ctx context.Context, sessionID, token string) ([]models.Message, error)
}

type InitResult struct {
	Welcome  string                 `json:"welcome"`
	Prepared models.PreparedContent `json:"prepared_content"`
}

type Reply struct {
	Reply string `json:"reply"`
	// Paused is set when the message was recorded but no reply was generated.
	Paused   bool `json:"paused"`
	Fallback bool `json:"fallback,omitempty"`
}

type CodeStartResult struct {
	TestName  string              `json:"test_name"`
	StartedAt time.Time           `json:"started_at"`
	Message   string              `json:"message"`
	Tasks     []models.CodingTask `json:"coding_tasks"`
}

type CodeResultInput struct {
	SessionID string
	Token     string
	Language  string
	Passed    bool
	Result    string
	Details   json.RawMessage // optional, archived as an artifact
}

type ConversationConfig struct {
	ContextMessages int // non-system messages sent with each generation
	ResultMaxLen    int // runes kept from a submission result
}

type ConversationDeps struct {
	Sessions mongorepo.SessionRepository
	Auth     SessionAuthorizer
	Preparer ContentPreparer
	LLM      llm.Provider     // optional
	Uploader storage.Uploader // optional
	Events   events.Publisher // optional
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

type conversationService struct {
	sessions mongorepo.SessionRepository
	auth     SessionAuthorizer
	preparer ContentPreparer
	llm      llm.Provider
	uploader storage.Uploader
	events   events.Publisher
	log      logrus.FieldLogger
	now      func() time.Time
	cfg      ConversationConfig
}

func NewConversationService(d ConversationDeps, cfg ConversationConfig) ConversationService {
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = 20
	}
	if cfg.ResultMaxLen <= 0 {
		cfg.ResultMaxLen = 400
	}
	s := &conversationService{
		sessions: d.Sessions,
		auth:     d.Auth,
		preparer: d.Preparer,
		llm:      d.LLM,
		uploader: d.Uploader,
		events:   d.Events,
		log:      d.Logger,
		now:      d.Now,
		cfg:      cfg,
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

func (s *conversationService) Initialize(ctx context.Context, sessionID, token string) (*InitResult, error) {
	const op = "ConversationService.Initialize"

	ss, err := s.activeSession(ctx, op, sessionID, token)
	if err != nil {
		return nil, err
	}

	if ss.Prepared == nil {
		pc := s.preparer.Prepare(ctx, ss.CandidateID, ss.Candidate)
		if err := s.sessions.SetPreparedIfAbsent(ctx, ss.SessionID, &pc); err != nil && !errors.Is(err, utils.ErrStateMismatch) {
			return nil, utils.E(utils.CodeUnavailable, op, "failed to store prepared content", err)
		}
		if ss, err = s.reload(ctx, op, ss.SessionID); err != nil {
			return nil, err
		}
		if ss.Prepared == nil {
			ss.Prepared = &pc
		}
	}

	if w := firstAssistant(ss.Conversation.Messages); w != "" {
		return &InitResult{Welcome: w, Prepared: *ss.Prepared}, nil
	}

	now := s.now()
	first := ""
	if len(ss.Prepared.Questions) > 0 {
		first = ss.Prepared.Questions[0]
	}
	welcome := welcomeMessage(ss.Candidate.Name, first)
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: systemPromptOf(ss), Timestamp: now},
		{Role: models.RoleAssistant, Content: welcome, Timestamp: now},
	}

	err = s.sessions.InitConversation(ctx, ss.SessionID, msgs)
	switch {
	case err == nil:
	case errors.Is(err, utils.ErrStateMismatch):
		// already seeded by a concurrent call, or no longer active
		fresh, rerr := s.reload(ctx, op, ss.SessionID)
		if rerr != nil {
			return nil, rerr
		}
		if w := firstAssistant(fresh.Conversation.Messages); w != "" {
			return &InitResult{Welcome: w, Prepared: *ss.Prepared}, nil
		}
		return nil, statusDenial(op, fresh, now)
	default:
		return nil, utils.E(utils.CodeUnavailable, op, "failed to initialize conversation", err)
	}

	s.log.WithField("session_id", ss.SessionID).Info("conversation initialized")
	return &InitResult{Welcome: welcome, Prepared: *ss.Prepared}, nil
}

func (s *conversationService) PostMessage(ctx context.Context, sessionID, token, text string) (*Reply, error) {
	const op = "ConversationService.PostMessage"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}

	ss, err := s.activeSession(ctx, op, sessionID, token)
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.AppendMessages(ctx, ss.SessionID, models.Message{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, s.writeError(ctx, op, ss.SessionID, err)
	}

	// the flag is read from the same atomic update that stored the message
	if updated.Conversation.AwaitingCodingSubmission {
		return &Reply{Reply: PauseNotice, Paused: true}, nil
	}

	reply, fallback := s.generate(ctx, updated, FallbackReply)
	s.appendAssistant(ctx, updated.SessionID, reply)
	return &Reply{Reply: reply, Fallback: fallback}, nil
}

func (s *conversationService) CodeStart(ctx context.Context, sessionID, token, testName, candidateID string) (*CodeStartResult, error) {
	const op = "ConversationService.CodeStart"

	testName = strings.TrimSpace(testName)
	if testName == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "test_name is required", nil)
	}

	ss, err := s.activeSession(ctx, op, sessionID, token)
	if err != nil {
		return nil, err
	}
	if candidateID == "" {
		candidateID = ss.CandidateID
	}
	if candidateID != ss.CandidateID {
		return nil, utils.E(utils.CodeForbidden, op, "candidate does not own this session", nil)
	}

	now := s.now()
	announce := pauseAnnouncement(testName)
	rec := models.CodingTestRecord{StartedAt: now, TestName: testName}
	if err := s.sessions.StartCoding(ctx, ss.SessionID, rec, models.Message{
		Role:      models.RoleAssistant,
		Content:   announce,
		Timestamp: now,
	}); err != nil {
		return nil, s.writeError(ctx, op, ss.SessionID, err)
	}

	log := s.log.WithFields(logrus.Fields{"session_id": ss.SessionID, "test_name": testName})
	for _, r := range ss.Conversation.CodingTestRecords {
		if r.Open() {
			log.WithField("abandoned", r.TestName).Warn("open coding exercise abandoned by a new start")
		}
	}
	log.Info("coding exercise started")
	s.publish(ctx, ss.SessionID, events.StatusPaused, announce)

	return &CodeStartResult{
		TestName:  testName,
		StartedAt: now,
		Message:   announce,
		Tasks:     s.preparer.CodingTasks(ctx, candidateID, ss.Candidate),
	}, nil
}

func (s *conversationService) CodeResult(ctx context.Context, in CodeResultInput) (*Reply, error) {
	const op = "ConversationService.CodeResult"

	ss, err := s.activeSession(ctx, op, in.SessionID, in.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	log := s.log.WithField("session_id", ss.SessionID)
	summary := truncateRunes(strings.TrimSpace(in.Result), s.cfg.ResultMaxLen)

	var artifact string
	if len(bytes.TrimSpace(in.Details)) > 0 && s.uploader != nil {
		name := fmt.Sprintf("submissions/%s/%d.json", ss.SessionID, now.UnixNano())
		path, uerr := s.uploader.Upload(ctx, name, "application/json", bytes.NewReader(in.Details))
		if uerr != nil {
			log.WithError(uerr).Warn("submission artifact upload failed")
		} else {
			artifact = path
		}
	}

	msg := models.Message{
		Role:      models.RoleUser,
		Content:   submissionMessage(in.Language, in.Passed, summary),
		Timestamp: now,
	}
	sub := models.CodingSubmission{
		SubmittedAt:   now,
		Passed:        in.Passed,
		Language:      in.Language,
		ResultSummary: summary,
		ArtifactPath:  artifact,
	}
	if err := s.sessions.FinishCoding(ctx, ss.SessionID, sub, msg); err != nil {
		return nil, s.writeError(ctx, op, ss.SessionID, err)
	}
	log.WithField("passed", in.Passed).Info("coding submission recorded")
	s.publish(ctx, ss.SessionID, events.StatusResumed, "")

	ss.Conversation.AwaitingCodingSubmission = false
	ss.Conversation.Messages = append(ss.Conversation.Messages, msg)

	reply, fallback := s.generate(ctx, ss, fallbackEvaluation)
	s.appendAssistant(ctx, ss.SessionID, reply)
	return &Reply{Reply: reply, Fallback: fallback}, nil
}

func (s *conversationService) History(ctx context.Context, sessionID, token string) ([]models.Message, error) {
	const op = "ConversationService.History"

	if s.auth == nil {
		return nil, utils.E(utils.CodeInternal, op, "authorizer not configured", nil)
	}
	ss, err := s.auth.Authorize(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(ss.Conversation.Messages))
	for _, m := range ss.Conversation.Messages {
		if m.Role != models.RoleSystem {
			out = append(out, m)
		}
	}
	return out, nil
}

// activeSession authorizes the token and requires status=active.
func (s *conversationService) activeSession(ctx context.Context, op, sessionID, token string) (*models.Session, error) {
	if s.auth == nil {
		return nil, utils.E(utils.CodeInternal, op, "authorizer not configured", nil)
	}
	ss, err := s.auth.Authorize(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}
	if ss.Status == models.StatusActive {
		return ss, nil
	}
	if ss.Status == models.StatusScheduled {
		d := EvaluateAccess(sessionGateInput(ss), s.now())
		d.Allowed = false
		return nil, utils.ED(utils.CodeForbidden, op, "session is not active; access it first", d)
	}
	return nil, statusDenial(op, ss, s.now())
}

// generate asks the model for the next interviewer turn. Any failure yields
// fallback instead.
func (s *conversationService) generate(ctx context.Context, ss *models.Session, fallback string) (string, bool) {
	log := s.log.WithField("session_id", ss.SessionID)
	if s.llm == nil {
		return fallback, true
	}

	text, err := s.llm.Generate(ctx, systemPromptOf(ss), contextWindow(ss.Conversation.Messages, s.cfg.ContextMessages))
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		log.WithError(err).Warn("reply generation failed, using fallback")
		return fallback, true
	}
	return text, false
}

func (s *conversationService) appendAssistant(ctx context.Context, sessionID, text string) {
	_, err := s.sessions.AppendMessages(ctx, sessionID, models.Message{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: s.now(),
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("assistant reply not stored")
	}
}

func (s *conversationService) reload(ctx context.Context, op, sessionID string) (*models.Session, error) {
	ss, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	return ss, nil
}

// writeError explains a guarded conversation update that failed.
func (s *conversationService) writeError(ctx context.Context, op, sessionID string, err error) error {
	if !errors.Is(err, utils.ErrStateMismatch) {
		return utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	fresh, rerr := s.reload(ctx, op, sessionID)
	if rerr != nil {
		return rerr
	}
	return statusDenial(op, fresh, s.now())
}

func (s *conversationService) publish(ctx context.Context, sessionID, status, message string) {
	if err := s.events.Publish(ctx, sessionID, status, message); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Debug("status event not published")
	}
}

func systemPromptOf(ss *models.Session) string {
	if ss.Prepared != nil && ss.Prepared.SystemPrompt != "" {
		return ss.Prepared.SystemPrompt
	}
	for _, m := range ss.Conversation.Messages {
		if m.Role == models.RoleSystem {
			return m.Content
		}
	}
	p, _ := BuildSystemPrompt(PromptData{CandidateName: ss.Candidate.Name, Role: ss.Candidate.Role, Questions: BuiltinQuestions()})
	return p
}

// contextWindow keeps the last n non-system messages.
func contextWindow(msgs []models.Message, n int) []llm.Message {
	var out []llm.Message
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func firstAssistant(msgs []models.Message) string {
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			return m.Content
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
