package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/repositories/memory"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"gorm.io/datatypes"
)

type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{m: map[string][]byte{}} }

func (c *mapCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = b
	return nil
}

func (c *mapCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

type panickingLLM struct{}

func (panickingLLM) Generate(context.Context, string, []llm.Message) (string, error) {
	panic("model client exploded")
}

func (panickingLLM) Close() error { return nil }

type preparerFixture struct {
	prep     ContentPreparer
	profiles *memory.ProfileStore
	tasks    *memory.TaskStore
	cache    *mapCache
}

func newPreparerFixture(t *testing.T, model llm.Provider, profiles pgrepo.ProfileRepository) *preparerFixture {
	t.Helper()
	f := &preparerFixture{
		profiles: memory.NewProfileStore(),
		tasks:    memory.NewTaskStore(),
		cache:    newMapCache(),
	}
	if profiles == nil {
		profiles = f.profiles
	}
	f.prep = NewContentPreparer(PreparerDeps{
		Profiles: profiles,
		Tasks:    f.tasks,
		LLM:      model,
		Cache:    f.cache,
		Logger:   logger.Discard(),
		Now:      func() time.Time { return at("14:00") },
	})
	return f
}

var snapshot = models.CandidateSnapshot{Name: "Ayu", Role: "Backend Engineer", TechStack: []string{"Go", "PostgreSQL"}}

func TestPrepare_NoProfileAndGenerationFailure(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newPreparerFixture(t, &fakeLLM{err: errors.New("quota exceeded")}, nil)

	// Act
	pc := f.prep.Prepare(ctx, "C1", snapshot)

	// Assert
	if pc.DataSource != models.DataSourceFallbackError {
		t.Errorf("DataSource = %s, want fallback_error", pc.DataSource)
	}
	if len(pc.Questions) < 6 || !reflect.DeepEqual(pc.Questions, BuiltinQuestions()) {
		t.Errorf("questions = %v, want the built-in set", pc.Questions)
	}
	if len(pc.CodingTasks) != 1 || pc.CodingTasks[0].ID != builtinTask.ID {
		t.Errorf("tasks = %+v, want the single built-in task", pc.CodingTasks)
	}
	if !strings.Contains(pc.SystemPrompt, "Ayu") {
		t.Error("system prompt should fall back to the snapshot name")
	}

	set, err := f.tasks.Get(ctx, "C1")
	if err != nil {
		t.Fatalf("built-in task was not written back: %v", err)
	}
	if set.Source != models.TaskSourceBuiltin {
		t.Errorf("stored source = %s, want builtin", set.Source)
	}
}

func TestPrepare_NoProfileNoModel(t *testing.T) {
	f := newPreparerFixture(t, nil, nil)
	pc := f.prep.Prepare(context.Background(), "C1", snapshot)
	if pc.DataSource != models.DataSourceFallbackError {
		t.Errorf("DataSource = %s, want fallback_error", pc.DataSource)
	}
}

func TestPrepare_ProfileWithCustomQuestionsAndAssessment(t *testing.T) {
	// Arrange
	ctx := context.Background()
	model := &fakeLLM{}
	f := newPreparerFixture(t, model, nil)

	assessment, _ := json.Marshal(models.Assessment{Questions: []models.AssessmentQuestion{{
		ID:          "q1",
		Title:       "Two Sum",
		Prompt:      "Return indices of two numbers adding to target.",
		Signature:   "func twoSum(nums []int, target int) []int",
		Language:    "go",
		SampleTests: []models.AssessmentTest{{Input: "[2,7,11,15], 9", ExpectedOutput: "[0,1]"}},
		HiddenTests: []models.AssessmentTest{{Input: "[3,3], 6", ExpectedOutput: "[0,1]"}},
	}}})
	_ = f.profiles.Upsert(ctx, &models.CandidateProfile{
		CandidateID:     "C1",
		FullName:        "Ayu Lestari",
		Role:            "Platform Engineer",
		Skills:          pq.StringArray{"Go", "Kubernetes"},
		ProjectSummary:  "Built a job scheduler",
		CustomQuestions: pq.StringArray{" How does your scheduler recover from crashes? ", "", "Why Go?"},
		Assessment:      datatypes.JSON(assessment),
	})

	// Act
	pc := f.prep.Prepare(ctx, "C1", snapshot)

	// Assert
	if pc.DataSource != models.DataSourceDatabase {
		t.Errorf("DataSource = %s, want database", pc.DataSource)
	}
	wantQ := []string{"How does your scheduler recover from crashes?", "Why Go?"}
	if !reflect.DeepEqual(pc.Questions, wantQ) {
		t.Errorf("questions = %v, want %v", pc.Questions, wantQ)
	}
	if len(pc.CodingTasks) != 1 || pc.CodingTasks[0].ID != "q1" {
		t.Fatalf("tasks = %+v, want converted assessment", pc.CodingTasks)
	}
	if model.calls != 0 {
		t.Errorf("model called %d times, want 0", model.calls)
	}
	for _, want := range []string{"Ayu Lestari", "Platform Engineer", "Kubernetes", "Built a job scheduler", "Why Go?"} {
		if !strings.Contains(pc.SystemPrompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	set, err := f.tasks.Get(ctx, "C1")
	if err != nil || set.Source != models.TaskSourceAssessment {
		t.Errorf("write-back = %+v, %v; want assessment source", set, err)
	}
}

func TestPrepare_GeneratedContentWithoutProfile(t *testing.T) {
	ctx := context.Background()
	model := &fakeLLM{replies: []string{
		"```json\n[\"Q1?\", \"Q2?\", \"Q3?\", \"Q4?\", \"Q5?\", \"Q6?\"]\n```",
		`Here you go: [{"title":"LRU Cache","description":"Implement an LRU cache.","languages":["go"],"tests":["get after put returns value"]}]`,
	}}
	f := newPreparerFixture(t, model, nil)

	pc := f.prep.Prepare(ctx, "C9", snapshot)

	if pc.DataSource != models.DataSourceFallback {
		t.Errorf("DataSource = %s, want fallback", pc.DataSource)
	}
	if len(pc.Questions) != 6 || pc.Questions[0] != "Q1?" {
		t.Errorf("questions = %v", pc.Questions)
	}
	if len(pc.CodingTasks) != 1 || pc.CodingTasks[0].Title != "LRU Cache" || pc.CodingTasks[0].ID == "" {
		t.Errorf("tasks = %+v", pc.CodingTasks)
	}
	set, err := f.tasks.Get(ctx, "C9")
	if err != nil || set.Source != models.TaskSourceGenerated {
		t.Errorf("write-back = %+v, %v; want generated source", set, err)
	}
}

func TestPrepare_MalformedGenerationFallsBack(t *testing.T) {
	model := &fakeLLM{replies: []string{"I cannot help with that.", "{not json"}}
	f := newPreparerFixture(t, model, nil)

	pc := f.prep.Prepare(context.Background(), "C1", snapshot)

	if !reflect.DeepEqual(pc.Questions, BuiltinQuestions()) {
		t.Errorf("questions = %v, want built-ins", pc.Questions)
	}
	if pc.CodingTasks[0].ID != builtinTask.ID {
		t.Errorf("tasks = %+v, want built-in", pc.CodingTasks)
	}
	if pc.DataSource != models.DataSourceFallbackError {
		t.Errorf("DataSource = %s, want fallback_error", pc.DataSource)
	}
}

func TestPrepare_StoredTasksWin(t *testing.T) {
	ctx := context.Background()
	model := &fakeLLM{replies: []string{`["A?","B?","C?"]`}}
	f := newPreparerFixture(t, model, nil)

	stored := []models.CodingTask{{ID: "t-1", Title: "Merge Intervals", Description: "Merge overlapping intervals."}}
	b, _ := json.Marshal(stored)
	_ = f.tasks.Save(ctx, &models.CandidateTaskSet{CandidateID: "C1", Tasks: datatypes.JSON(b), Source: models.TaskSourceGenerated})

	pc := f.prep.Prepare(ctx, "C1", snapshot)

	if !reflect.DeepEqual(pc.CodingTasks, stored) {
		t.Errorf("tasks = %+v, want stored", pc.CodingTasks)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1 (questions only)", model.calls)
	}
	if pc.DataSource != models.DataSourceFallback {
		t.Errorf("DataSource = %s, want fallback", pc.DataSource)
	}

	// the read populated the cache
	var cached cachedTaskSet
	if hit, _ := f.cache.GetJSON(ctx, taskCacheKey("C1"), &cached); !hit || len(cached.Tasks) != 1 {
		t.Errorf("cache hit=%v tasks=%d, want populated", hit, len(cached.Tasks))
	}
}

func TestPrepare_StoredBuiltinTaskStillCountsAsBuiltin(t *testing.T) {
	ctx := context.Background()
	f := newPreparerFixture(t, nil, nil)

	first := f.prep.Prepare(ctx, "C1", snapshot)
	second := f.prep.Prepare(ctx, "C1", snapshot)

	if first.DataSource != second.DataSource {
		t.Errorf("data source drifted: %s -> %s", first.DataSource, second.DataSource)
	}
}

func TestPrepare_ProfileStoreFailure(t *testing.T) {
	f := newPreparerFixture(t, &fakeLLM{replies: []string{`["x","y","z"]`}}, failingProfiles{})

	pc := f.prep.Prepare(context.Background(), "C1", snapshot)

	if pc.DataSource != models.DataSourceFallbackError {
		t.Errorf("DataSource = %s, want fallback_error", pc.DataSource)
	}
	if !reflect.DeepEqual(pc.Questions, BuiltinQuestions()) {
		t.Error("storage failure should yield built-in questions")
	}
}

func TestPrepare_RecoversFromPanic(t *testing.T) {
	f := newPreparerFixture(t, panickingLLM{}, nil)

	pc := f.prep.Prepare(context.Background(), "C1", snapshot)

	if pc.DataSource != models.DataSourceFallbackError {
		t.Errorf("DataSource = %s, want fallback_error", pc.DataSource)
	}
	if len(pc.Questions) == 0 || len(pc.CodingTasks) != 1 || pc.SystemPrompt == "" {
		t.Errorf("panic recovery returned an unusable result: %+v", pc)
	}

	tasks := f.prep.CodingTasks(context.Background(), "C2", snapshot)
	if len(tasks) != 1 || tasks[0].ID != builtinTask.ID {
		t.Errorf("CodingTasks() after panic = %+v, want built-in", tasks)
	}
}

func TestTasksFromAssessment(t *testing.T) {
	a := models.Assessment{Questions: []models.AssessmentQuestion{
		{
			Title:       "Reverse",
			Prompt:      "Reverse a string.",
			Signature:   "def reverse(s: str) -> str",
			Language:    "python",
			SampleTests: []models.AssessmentTest{{Input: `"ab"`, ExpectedOutput: `"ba"`}},
			HiddenTests: []models.AssessmentTest{{Input: `""`, ExpectedOutput: `""`}},
		},
		{}, // empty questions are skipped
	}}

	got := TasksFromAssessment(a)

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	task := got[0]
	if task.ID != "assessment-1" {
		t.Errorf("ID = %q", task.ID)
	}
	if !strings.Contains(task.Description, "Reverse a string.") || !strings.Contains(task.Description, "def reverse") {
		t.Errorf("description = %q, want prompt and signature", task.Description)
	}
	if len(task.Tests) != 2 {
		t.Errorf("tests = %v, want sample and hidden flattened", task.Tests)
	}
	if len(task.Examples) != 1 || task.Examples[0].Output != `"ba"` {
		t.Errorf("examples = %+v", task.Examples)
	}
	if !reflect.DeepEqual(task.Languages, []string{"python"}) {
		t.Errorf("languages = %v", task.Languages)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p, err := BuildSystemPrompt(PromptData{
		Role:      "SRE",
		Skills:    []string{"Linux", "Terraform"},
		Questions: []string{"First?", "Second?"},
	})
	if err != nil {
		t.Fatalf("BuildSystemPrompt() error = %v", err)
	}
	for _, want := range []string{"the candidate", "SRE", "Linux, Terraform", "1. First?", "2. Second?", "wait for the candidate's submission"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestDecodeJSONBlock(t *testing.T) {
	var out []string
	if err := decodeJSONBlock("```json\n[\"a\",\"b\"]\n```", '[', ']', &out); err != nil || len(out) != 2 {
		t.Errorf("fenced array: %v, %v", out, err)
	}
	if err := decodeJSONBlock("no json here", '[', ']', &out); err == nil {
		t.Error("want error when no JSON is present")
	}
}
