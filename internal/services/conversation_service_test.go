package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

type conversationFixture struct {
	*sessionFixture
	conv     ConversationService
	model    *fakeLLM
	uploader *recordingUploader
	created  *CreatedSession
}

// newConversationFixture returns an active session at 14:00.
func newConversationFixture(t *testing.T, model *fakeLLM, cfg ConversationConfig) *conversationFixture {
	t.Helper()
	sf := newSessionFixture(t, 10)
	sf.prep.tasks = BuiltinTasks()
	f := &conversationFixture{sessionFixture: sf, model: model, uploader: &recordingUploader{}}
	f.conv = NewConversationService(ConversationDeps{
		Sessions: sf.store,
		Auth:     sf.svc,
		Preparer: sf.prep,
		LLM:      model,
		Uploader: f.uploader,
		Events:   sf.pub,
		Logger:   logger.Discard(),
		Now:      sf.clock.Now,
	}, cfg)

	f.created = sf.create(t, "C1", "J1")
	sf.clock.Set(at("14:00"))
	if _, err := sf.svc.Access(context.Background(), f.created.SessionID, f.created.AccessToken); err != nil {
		t.Fatalf("Access() error = %v", err)
	}
	return f
}

func (f *conversationFixture) stored(t *testing.T) *models.Session {
	t.Helper()
	s, err := f.store.GetBySessionID(context.Background(), f.created.SessionID)
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	return s
}

func TestConversation_PauseProtocol(t *testing.T) {
	// Arrange
	ctx := context.Background()
	model := &fakeLLM{replies: []string{"Good. Now explain channels.", "Nice solution. Why a stack?", "Great, next question."}}
	f := newConversationFixture(t, model, ConversationConfig{})
	id, tok := f.created.SessionID, f.created.AccessToken

	welcome, err := f.conv.Initialize(ctx, id, tok)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !strings.Contains(welcome.Welcome, "Tell me about yourself.") {
		t.Errorf("welcome = %q, want first prepared question", welcome.Welcome)
	}

	reply, err := f.conv.PostMessage(ctx, id, tok, "I build backend services.")
	if err != nil || reply.Paused || reply.Reply != "Good. Now explain channels." {
		t.Fatalf("PostMessage() = %+v, %v", reply, err)
	}

	// Act: start coding, then talk during the pause
	start, err := f.conv.CodeStart(ctx, id, tok, "balanced-brackets", "C1")
	if err != nil {
		t.Fatalf("CodeStart() error = %v", err)
	}
	if len(start.Tasks) == 0 {
		t.Error("CodeStart() returned no tasks")
	}
	callsBefore := model.calls
	paused, err := f.conv.PostMessage(ctx, id, tok, "Is recursion allowed?")
	if err != nil {
		t.Fatalf("PostMessage() while paused error = %v", err)
	}

	// Assert: pause notice, nothing generated
	if !paused.Paused || paused.Reply != PauseNotice {
		t.Errorf("paused reply = %+v, want pause notice", paused)
	}
	if model.calls != callsBefore {
		t.Error("model must not be called while paused")
	}
	s := f.stored(t)
	last := s.Conversation.Messages[len(s.Conversation.Messages)-1]
	if last.Role != models.RoleUser || last.Content != "Is recursion allowed?" {
		t.Errorf("last message = %+v, want the recorded user message", last)
	}
	if !s.Conversation.AwaitingCodingSubmission {
		t.Error("pause flag not set")
	}
	if !f.pub.has(events.StatusPaused) {
		t.Error("codeStart should publish paused")
	}

	// Act: submit, then talk again
	eval, err := f.conv.CodeResult(ctx, CodeResultInput{SessionID: id, Token: tok, Language: "go", Passed: true, Result: "5/5 tests passed"})
	if err != nil {
		t.Fatalf("CodeResult() error = %v", err)
	}
	if eval.Reply != "Nice solution. Why a stack?" {
		t.Errorf("evaluation = %q", eval.Reply)
	}
	s = f.stored(t)
	if s.Conversation.AwaitingCodingSubmission {
		t.Error("pause flag not cleared")
	}
	rec := s.Conversation.CodingTestRecords[0]
	if rec.Open() || rec.Passed == nil || !*rec.Passed || rec.TestName != "balanced-brackets" {
		t.Errorf("record = %+v, want closed and passed", rec)
	}

	next, err := f.conv.PostMessage(ctx, id, tok, "Because brackets nest.")
	if err != nil || next.Paused || next.Reply != "Great, next question." {
		t.Errorf("PostMessage() after result = %+v, %v", next, err)
	}
	if !f.pub.has(events.StatusResumed) {
		t.Error("codeResult should publish resumed")
	}
}

func TestConversation_SecondCodeStartAbandonsFirst(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
	id, tok := f.created.SessionID, f.created.AccessToken

	if _, err := f.conv.CodeStart(ctx, id, tok, "first", ""); err != nil {
		t.Fatalf("first CodeStart() error = %v", err)
	}
	f.clock.Set(at("14:10"))
	if _, err := f.conv.CodeStart(ctx, id, tok, "second", ""); err != nil {
		t.Fatalf("second CodeStart() error = %v", err)
	}

	recs := f.stored(t).Conversation.CodingTestRecords
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	open := 0
	for _, r := range recs {
		if r.Open() {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open records = %d, want exactly 1", open)
	}
	if !recs[0].Abandoned || recs[0].SubmittedAt == nil || !recs[0].SubmittedAt.Equal(at("14:10")) {
		t.Errorf("first record = %+v, want abandoned at 14:10", recs[0])
	}
	if !recs[1].Open() || recs[1].TestName != "second" {
		t.Errorf("second record = %+v, want open", recs[1])
	}
}

func TestConversation_CodeResultTruncatesAndArchives(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t, &fakeLLM{err: errors.New("unavailable")}, ConversationConfig{})
	id, tok := f.created.SessionID, f.created.AccessToken

	if _, err := f.conv.CodeStart(ctx, id, tok, "brackets", "C1"); err != nil {
		t.Fatalf("CodeStart() error = %v", err)
	}
	long := strings.Repeat("é", 1000)
	details := json.RawMessage(`{"code":"func isBalanced(s string) bool { return true }"}`)

	reply, err := f.conv.CodeResult(ctx, CodeResultInput{SessionID: id, Token: tok, Language: "go", Passed: false, Result: long, Details: details})
	if err != nil {
		t.Fatalf("CodeResult() error = %v", err)
	}

	if !reply.Fallback || reply.Reply != fallbackEvaluation {
		t.Errorf("reply = %+v, want fallback evaluation", reply)
	}
	rec := f.stored(t).Conversation.CodingTestRecords[0]
	if n := len([]rune(rec.ResultSummary)); n != 400 {
		t.Errorf("summary runes = %d, want 400", n)
	}
	if rec.Passed == nil || *rec.Passed {
		t.Error("record should be marked failed")
	}
	if len(f.uploader.names) != 1 || !strings.HasPrefix(f.uploader.names[0], "submissions/"+id+"/") {
		t.Fatalf("uploads = %v", f.uploader.names)
	}
	if rec.ArtifactPath != "gs://bucket/"+f.uploader.names[0] {
		t.Errorf("artifact path = %q", rec.ArtifactPath)
	}
}

func TestConversation_CodeResultWithoutOpenRecord(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t, &fakeLLM{replies: []string{"ok"}}, ConversationConfig{})

	if _, err := f.conv.CodeResult(ctx, CodeResultInput{SessionID: f.created.SessionID, Token: f.created.AccessToken, Passed: true}); err != nil {
		t.Fatalf("CodeResult() error = %v", err)
	}
	if s := f.stored(t); s.Conversation.AwaitingCodingSubmission {
		t.Error("pause flag should stay clear")
	}
}

func TestConversation_GenerationFailureAppendsFallback(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t, &fakeLLM{err: context.DeadlineExceeded}, ConversationConfig{})

	reply, err := f.conv.PostMessage(ctx, f.created.SessionID, f.created.AccessToken, "hello")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if reply.Reply != FallbackReply || !reply.Fallback {
		t.Errorf("reply = %+v, want fallback", reply)
	}
	msgs := f.stored(t).Conversation.Messages
	if last := msgs[len(msgs)-1]; last.Role != models.RoleAssistant || last.Content != FallbackReply {
		t.Errorf("last message = %+v, want appended fallback", last)
	}
}

func TestConversation_ContextWindowIsBounded(t *testing.T) {
	ctx := context.Background()
	model := &fakeLLM{replies: []string{"a", "b", "c"}}
	f := newConversationFixture(t, model, ConversationConfig{ContextMessages: 3})
	id, tok := f.created.SessionID, f.created.AccessToken

	if _, err := f.conv.Initialize(ctx, id, tok); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := f.conv.PostMessage(ctx, id, tok, text); err != nil {
			t.Fatalf("PostMessage() error = %v", err)
		}
	}

	lastHistory := model.history[len(model.history)-1]
	if len(lastHistory) != 3 {
		t.Fatalf("history len = %d, want 3", len(lastHistory))
	}
	for _, m := range lastHistory {
		if m.Role == string(models.RoleSystem) {
			t.Error("system messages must not be sent as history")
		}
	}
	if lastHistory[2].Content != "three" {
		t.Errorf("newest message = %q, want three", lastHistory[2].Content)
	}
	if model.systems[0] != "be an interviewer" {
		t.Errorf("system prompt = %q, want prepared prompt", model.systems[0])
	}
}

func TestConversation_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled session cannot chat", func(t *testing.T) {
		sf := newSessionFixture(t, 10)
		conv := NewConversationService(ConversationDeps{Sessions: sf.store, Auth: sf.svc, Preparer: sf.prep, Logger: logger.Discard(), Now: sf.clock.Now}, ConversationConfig{})
		created := sf.create(t, "C1", "J1")
		_, err := conv.PostMessage(ctx, created.SessionID, created.AccessToken, "hi")
		wantCode(t, err, utils.CodeForbidden)
	})

	t.Run("ended session cannot chat", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		if _, err := f.svc.End(ctx, f.created.SessionID, f.created.AccessToken); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		_, err := f.conv.PostMessage(ctx, f.created.SessionID, f.created.AccessToken, "hi")
		wantCode(t, err, utils.CodeForbidden)
	})

	t.Run("expired window cannot chat", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		f.clock.Set(at("15:30"))
		_, err := f.conv.PostMessage(ctx, f.created.SessionID, f.created.AccessToken, "hi")
		wantCode(t, err, utils.CodeForbidden)
		if f.stored(t).Status != models.StatusExpired {
			t.Error("touch after window should persist expired")
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		_, err := f.conv.PostMessage(ctx, f.created.SessionID, "nope", "hi")
		wantCode(t, err, utils.CodeUnauthorized)
	})

	t.Run("empty text", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		_, err := f.conv.PostMessage(ctx, f.created.SessionID, f.created.AccessToken, "   ")
		wantCode(t, err, utils.CodeInvalidArgument)
	})

	t.Run("code start for another candidate", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		_, err := f.conv.CodeStart(ctx, f.created.SessionID, f.created.AccessToken, "x", "C2")
		wantCode(t, err, utils.CodeForbidden)
	})

	t.Run("code start needs a test name", func(t *testing.T) {
		f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
		_, err := f.conv.CodeStart(ctx, f.created.SessionID, f.created.AccessToken, "", "C1")
		wantCode(t, err, utils.CodeInvalidArgument)
	})
}

func TestConversation_InitializeIsIdempotentAndHistoryHidesSystem(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t, &fakeLLM{}, ConversationConfig{})
	id, tok := f.created.SessionID, f.created.AccessToken

	first, err := f.conv.Initialize(ctx, id, tok)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	f.clock.Set(at("14:05"))
	second, err := f.conv.Initialize(ctx, id, tok)
	if err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if first.Welcome != second.Welcome {
		t.Error("welcome changed between calls")
	}
	if n := len(f.stored(t).Conversation.Messages); n != 2 {
		t.Errorf("messages = %d, want system + welcome", n)
	}

	hist, err := f.conv.History(ctx, id, tok)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 1 || hist[0].Role != models.RoleAssistant {
		t.Errorf("history = %+v, want only the welcome", hist)
	}
	if !hist[0].Timestamp.Equal(at("14:00")) {
		t.Errorf("timestamp = %v", hist[0].Timestamp)
	}
}
