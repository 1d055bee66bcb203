package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type CandidateProfile struct {
	CandidateID    string `gorm:"column:candidate_id;type:text;primaryKey" json:"candidate_id"`
	FullName       string `gorm:"column:full_name;type:text" json:"full_name"`
	Email          string `gorm:"column:email;type:text" json:"email"`
	Role           string `gorm:"column:role;type:text" json:"role"`
	ProjectSummary string `gorm:"column:project_summary;type:text" json:"project_summary"`
	Experience     string `gorm:"column:experience;type:text" json:"experience"`

	Skills          pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`
	CustomQuestions pq.StringArray `gorm:"column:custom_questions;type:text[]" json:"custom_questions"`

	// structured assessment block (see Assessment)
	Assessment datatypes.JSON `gorm:"column:assessment;type:jsonb" json:"assessment"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (CandidateProfile) TableName() string { return "candidate_profiles" }

// Assessment is the JSON shape stored in CandidateProfile.Assessment.
type Assessment struct {
	Questions []AssessmentQuestion `json:"questions"`
}

type AssessmentQuestion struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Prompt      string           `json:"prompt"`
	Signature   string           `json:"signature"`
	Language    string           `json:"language"`
	SampleTests []AssessmentTest `json:"sample_tests"`
	HiddenTests []AssessmentTest `json:"hidden_tests"`
}

type AssessmentTest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

type TaskSource string

const (
	TaskSourceAssessment TaskSource = "assessment"
	TaskSourceGenerated  TaskSource = "generated"
	TaskSourceBuiltin    TaskSource = "builtin"
)

// CandidateTaskSet is the per-candidate coding task store.
type CandidateTaskSet struct {
	CandidateID string         `gorm:"column:candidate_id;type:text;primaryKey" json:"candidate_id"`
	Tasks       datatypes.JSON `gorm:"column:tasks;type:jsonb" json:"tasks"`
	Source      TaskSource     `gorm:"column:source;type:text" json:"source"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (CandidateTaskSet) TableName() string { return "candidate_coding_tasks" }
