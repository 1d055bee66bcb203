package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	stratCustomQuestions    = "profile_custom_questions"
	stratGeneratedQuestions = "generated_questions"
	stratBuiltinQuestions   = "builtin_questions"

	stratStoredTasks     = "stored_tasks"
	stratAssessmentTasks = "assessment_tasks"
	stratGeneratedTasks  = "generated_tasks"
	stratBuiltinTask     = "builtin_task"

	maxGeneratedTasks = 3
)

type PreparerDeps struct {
	Profiles     pgrepo.ProfileRepository
	Tasks        pgrepo.TaskRepository
	LLM          llm.Provider // optional
	Cache        cache.Cache  // optional
	TaskCacheTTL time.Duration
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// strategy is one named step of a provider chain. ok=false hands over to the
// next step.
type strategy[T any] struct {
	name string
	run  func(ctx context.Context, in *prepInput) (T, bool)
}

// runChain tries each strategy in order; the last one must always succeed.
func runChain[T any](ctx context.Context, log logrus.FieldLogger, chain []strategy[T], in *prepInput) (T, string) {
	var zero T
	for _, st := range chain {
		if v, ok := st.run(ctx, in); ok {
			return v, st.name
		}
		log.WithField("strategy", st.name).Debug("strategy produced no result")
	}
	return zero, ""
}

type prepInput struct {
	candidateID string
	profile     *models.CandidateProfile // nil when no profile is stored
	snapshot    models.CandidateSnapshot
	// storedSource is the provenance of a task set read back from the store
	storedSource models.TaskSource
}

func (in *prepInput) name() string {
	if in.profile != nil && in.profile.FullName != "" {
		return in.profile.FullName
	}
	return in.snapshot.Name
}

func (in *prepInput) role() string {
	if in.profile != nil && in.profile.Role != "" {
		return in.profile.Role
	}
	return in.snapshot.Role
}

func (in *prepInput) skills() []string {
	if in.profile != nil && len(in.profile.Skills) > 0 {
		return []string(in.profile.Skills)
	}
	return in.snapshot.TechStack
}

func (in *prepInput) experience() string {
	if in.profile != nil && in.profile.Experience != "" {
		return in.profile.Experience
	}
	return in.snapshot.Experience
}

func (in *prepInput) projectSummary() string {
	if in.profile != nil {
		return in.profile.ProjectSummary
	}
	return ""
}

type cachedTaskSet struct {
	Tasks  []models.CodingTask `json:"tasks"`
	Source models.TaskSource   `json:"source"`
}

type contentPreparer struct {
	profiles pgrepo.ProfileRepository
	tasks    pgrepo.TaskRepository
	llm      llm.Provider
	cache    cache.Cache
	cacheTTL time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	questionChain []strategy[[]string]
	taskChain     []strategy[[]models.CodingTask]
}

func NewContentPreparer(d PreparerDeps) ContentPreparer {
	p := &contentPreparer{
		profiles: d.Profiles,
		tasks:    d.Tasks,
		llm:      d.LLM,
		cache:    d.Cache,
		cacheTTL: d.TaskCacheTTL,
		log:      d.Logger,
		now:      d.Now,
	}
	if p.cache == nil {
		p.cache = cache.Nop{}
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}

	p.questionChain = []strategy[[]string]{
		{name: stratCustomQuestions, run: p.customQuestions},
		{name: stratGeneratedQuestions, run: p.generatedQuestions},
		{name: stratBuiltinQuestions, run: func(context.Context, *prepInput) ([]string, bool) {
			return BuiltinQuestions(), true
		}},
	}
	p.taskChain = []strategy[[]models.CodingTask]{
		{name: stratStoredTasks, run: p.storedTasks},
		{name: stratAssessmentTasks, run: p.assessmentTasks},
		{name: stratGeneratedTasks, run: p.generatedTasks},
		{name: stratBuiltinTask, run: func(context.Context, *prepInput) ([]models.CodingTask, bool) {
			return BuiltinTasks(), true
		}},
	}
	return p
}

func taskCacheKey(candidateID string) string { return "coding_tasks:" + candidateID }

// Prepare never returns an error. Any unexpected failure degrades to the
// built-ins tagged fallback_error.
func (p *contentPreparer) Prepare(ctx context.Context, candidateID string, snapshot models.CandidateSnapshot) (out models.PreparedContent) {
	log := p.log.WithField("candidate_id", candidateID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("content preparation panicked, using built-ins")
			out = p.builtinContent(log, snapshot)
		}
	}()

	in, err := p.loadInput(ctx, candidateID, snapshot)
	if err != nil {
		log.WithError(err).Error("profile lookup failed, using built-ins")
		return p.builtinContent(log, snapshot)
	}

	questions, qFrom := runChain(ctx, log, p.questionChain, in)
	tasks, tFrom := p.runTasks(ctx, log, in)

	builtinUsed := qFrom == stratBuiltinQuestions || tFrom == stratBuiltinTask ||
		(tFrom == stratStoredTasks && in.storedSource == models.TaskSourceBuiltin)

	source := models.DataSourceDatabase
	switch {
	case in.profile != nil:
	case builtinUsed:
		source = models.DataSourceFallbackError
	default:
		source = models.DataSourceFallback
	}

	log.WithFields(logrus.Fields{
		"questions_from": qFrom,
		"tasks_from":     tFrom,
		"data_source":    source,
	}).Info("content prepared")

	return models.PreparedContent{
		Questions:    questions,
		CodingTasks:  tasks,
		SystemPrompt: p.systemPrompt(log, in, questions),
		DataSource:   source,
		PreparedAt:   p.now(),
	}
}

// CodingTasks runs the task chain alone, for coding exercises started after
// the session was prepared.
func (p *contentPreparer) CodingTasks(ctx context.Context, candidateID string, snapshot models.CandidateSnapshot) (out []models.CodingTask) {
	log := p.log.WithField("candidate_id", candidateID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("task lookup panicked, using built-in task")
			out = BuiltinTasks()
		}
	}()

	in, err := p.loadInput(ctx, candidateID, snapshot)
	if err != nil {
		log.WithError(err).Error("profile lookup failed, using built-in task")
		return BuiltinTasks()
	}
	tasks, _ := p.runTasks(ctx, log, in)
	return tasks
}

func (p *contentPreparer) loadInput(ctx context.Context, candidateID string, snapshot models.CandidateSnapshot) (*prepInput, error) {
	in := &prepInput{candidateID: candidateID, snapshot: snapshot}
	if p.profiles == nil || candidateID == "" {
		return in, nil
	}
	prof, err := p.profiles.GetByCandidateID(ctx, candidateID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		in.profile = prof
	}
	return in, nil
}

func (p *contentPreparer) runTasks(ctx context.Context, log logrus.FieldLogger, in *prepInput) ([]models.CodingTask, string) {
	tasks, from := runChain(ctx, log, p.taskChain, in)
	if from != stratStoredTasks {
		p.saveTasks(ctx, log, in.candidateID, tasks, taskSourceOf(from))
	}
	return tasks, from
}

func taskSourceOf(name string) models.TaskSource {
	switch name {
	case stratAssessmentTasks:
		return models.TaskSourceAssessment
	case stratGeneratedTasks:
		return models.TaskSourceGenerated
	default:
		return models.TaskSourceBuiltin
	}
}

func (p *contentPreparer) builtinContent(log logrus.FieldLogger, snapshot models.CandidateSnapshot) models.PreparedContent {
	questions := BuiltinQuestions()
	return models.PreparedContent{
		Questions:    questions,
		CodingTasks:  BuiltinTasks(),
		SystemPrompt: p.systemPrompt(log, &prepInput{snapshot: snapshot}, questions),
		DataSource:   models.DataSourceFallbackError,
		PreparedAt:   p.now(),
	}
}

func (p *contentPreparer) systemPrompt(log logrus.FieldLogger, in *prepInput, questions []string) string {
	prompt, err := BuildSystemPrompt(PromptData{
		CandidateName:  in.name(),
		Role:           in.role(),
		Skills:         in.skills(),
		Experience:     in.experience(),
		ProjectSummary: in.projectSummary(),
		Questions:      questions,
	})
	if err != nil {
		log.WithError(err).Error("system prompt render failed")
		return "You are a technical interviewer. Ask one question at a time. When a coding exercise starts, wait for the submission, then evaluate it and continue."
	}
	return prompt
}

// question strategies

func (p *contentPreparer) customQuestions(_ context.Context, in *prepInput) ([]string, bool) {
	if in.profile == nil {
		return nil, false
	}
	qs := cleanStrings(in.profile.CustomQuestions)
	return qs, len(qs) > 0
}

func (p *contentPreparer) generatedQuestions(ctx context.Context, in *prepInput) ([]string, bool) {
	if p.llm == nil {
		return nil, false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write 6 to 8 technical interview questions for %s", orDefault(in.name(), "a software engineer"))
	if r := in.role(); r != "" {
		fmt.Fprintf(&b, " applying for the %s role", r)
	}
	b.WriteString(".")
	if s := in.skills(); len(s) > 0 {
		fmt.Fprintf(&b, " Skills: %s.", strings.Join(s, ", "))
	}
	if e := in.experience(); e != "" {
		fmt.Fprintf(&b, " Experience: %s.", e)
	}
	if ps := in.projectSummary(); ps != "" {
		fmt.Fprintf(&b, " Projects: %s.", ps)
	}
	b.WriteString(" Include background, debugging, an implementation task and a system design question.")

	text, err := p.llm.Generate(ctx,
		"You generate interview questions. Reply with a JSON array of strings and nothing else.",
		[]llm.Message{{Role: string(models.RoleUser), Content: b.String()}},
	)
	if err != nil {
		p.log.WithError(err).WithField("candidate_id", in.candidateID).Warn("question generation failed")
		return nil, false
	}

	var raw []string
	if err := decodeJSONBlock(text, '[', ']', &raw); err != nil {
		p.log.WithError(err).WithField("candidate_id", in.candidateID).Warn("question generation returned malformed output")
		return nil, false
	}
	qs := cleanStrings(raw)
	return qs, len(qs) >= 3
}

// task strategies

func (p *contentPreparer) storedTasks(ctx context.Context, in *prepInput) ([]models.CodingTask, bool) {
	log := p.log.WithField("candidate_id", in.candidateID)

	var cached cachedTaskSet
	hit, err := p.cache.GetJSON(ctx, taskCacheKey(in.candidateID), &cached)
	if err != nil {
		log.WithError(err).Debug("task cache read failed")
	}
	if hit && len(cached.Tasks) > 0 {
		in.storedSource = cached.Source
		return cached.Tasks, true
	}

	if p.tasks == nil || in.candidateID == "" {
		return nil, false
	}
	set, err := p.tasks.Get(ctx, in.candidateID)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			log.WithError(err).Warn("task store read failed")
		}
		return nil, false
	}
	var tasks []models.CodingTask
	if err := json.Unmarshal(set.Tasks, &tasks); err != nil || len(tasks) == 0 {
		return nil, false
	}

	in.storedSource = set.Source
	if err := p.cache.SetJSON(ctx, taskCacheKey(in.candidateID), cachedTaskSet{Tasks: tasks, Source: set.Source}, p.cacheTTL); err != nil {
		log.WithError(err).Debug("task cache write failed")
	}
	return tasks, true
}

func (p *contentPreparer) assessmentTasks(_ context.Context, in *prepInput) ([]models.CodingTask, bool) {
	if in.profile == nil || len(in.profile.Assessment) == 0 {
		return nil, false
	}
	var a models.Assessment
	if err := json.Unmarshal(in.profile.Assessment, &a); err != nil {
		p.log.WithError(err).WithField("candidate_id", in.candidateID).Warn("assessment block is malformed")
		return nil, false
	}
	tasks := TasksFromAssessment(a)
	return tasks, len(tasks) > 0
}

func (p *contentPreparer) generatedTasks(ctx context.Context, in *prepInput) ([]models.CodingTask, bool) {
	if p.llm == nil {
		return nil, false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Create 1 to %d coding exercises", maxGeneratedTasks)
	if r := in.role(); r != "" {
		fmt.Fprintf(&b, " for a %s candidate", r)
	}
	if s := in.skills(); len(s) > 0 {
		fmt.Fprintf(&b, " skilled in %s", strings.Join(s, ", "))
	}
	b.WriteString(`. Reply with a JSON array of objects with the fields "id", "title", "description", "languages" (array of strings), "examples" (array of {"input","output"}) and "tests" (array of strings).`)

	text, err := p.llm.Generate(ctx,
		"You design short coding exercises for live interviews. Reply with JSON only.",
		[]llm.Message{{Role: string(models.RoleUser), Content: b.String()}},
	)
	if err != nil {
		p.log.WithError(err).WithField("candidate_id", in.candidateID).Warn("task generation failed")
		return nil, false
	}

	var raw []models.CodingTask
	if err := decodeJSONBlock(text, '[', ']', &raw); err != nil {
		p.log.WithError(err).WithField("candidate_id", in.candidateID).Warn("task generation returned malformed output")
		return nil, false
	}

	var tasks []models.CodingTask
	for _, t := range raw {
		t.Title = strings.TrimSpace(t.Title)
		t.Description = strings.TrimSpace(t.Description)
		if t.Title == "" || t.Description == "" {
			continue
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("generated-%d", len(tasks)+1)
		}
		tasks = append(tasks, t)
		if len(tasks) == maxGeneratedTasks {
			break
		}
	}
	return tasks, len(tasks) > 0
}

func (p *contentPreparer) saveTasks(ctx context.Context, log logrus.FieldLogger, candidateID string, tasks []models.CodingTask, source models.TaskSource) {
	if candidateID == "" {
		return
	}
	if p.tasks != nil {
		b, err := json.Marshal(tasks)
		if err != nil {
			log.WithError(err).Warn("task encode failed")
			return
		}
		set := &models.CandidateTaskSet{
			CandidateID: candidateID,
			Tasks:       datatypes.JSON(b),
			Source:      source,
			UpdatedAt:   p.now(),
		}
		if err := p.tasks.Save(ctx, set); err != nil {
			log.WithError(err).Warn("task store write failed")
		}
	}
	if err := p.cache.SetJSON(ctx, taskCacheKey(candidateID), cachedTaskSet{Tasks: tasks, Source: source}, p.cacheTTL); err != nil {
		log.WithError(err).Debug("task cache write failed")
	}
}

// TasksFromAssessment converts a structured assessment into coding tasks, one
// per question. Tests become readable assertions.
func TasksFromAssessment(a models.Assessment) []models.CodingTask {
	var out []models.CodingTask
	for i, q := range a.Questions {
		prompt := strings.TrimSpace(q.Prompt)
		if prompt == "" && strings.TrimSpace(q.Title) == "" {
			continue
		}

		t := models.CodingTask{
			ID:          q.ID,
			Title:       strings.TrimSpace(q.Title),
			Description: prompt,
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("assessment-%d", i+1)
		}
		if t.Title == "" {
			t.Title = fmt.Sprintf("Exercise %d", i+1)
		}
		if sig := strings.TrimSpace(q.Signature); sig != "" {
			t.Description += "\n\nSignature:\n" + sig
		}
		if q.Language != "" {
			t.Languages = []string{q.Language}
		}
		for _, st := range q.SampleTests {
			t.Examples = append(t.Examples, models.TaskExample{Input: st.Input, Output: st.ExpectedOutput})
		}
		for _, st := range append(append([]models.AssessmentTest(nil), q.SampleTests...), q.HiddenTests...) {
			t.Tests = append(t.Tests, fmt.Sprintf("input %s should return %s", st.Input, st.ExpectedOutput))
		}
		out = append(out, t)
	}
	return out
}

// decodeJSONBlock pulls the outermost open..close span out of model output,
// tolerating code fences and prose around it.
func decodeJSONBlock(text string, openCh, closeCh byte, dst any) error {
	start := strings.IndexByte(text, openCh)
	end := strings.LastIndexByte(text, closeCh)
	if start < 0 || end <= start {
		return errors.New("no JSON found in model output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), dst)
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
