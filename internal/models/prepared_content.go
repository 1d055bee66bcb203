package models

import "time"

type DataSource string

const (
	DataSourceDatabase      DataSource = "database"
	DataSourceFallback      DataSource = "fallback"
	DataSourceFallbackError DataSource = "fallback_error"
)

type PreparedContent struct {
	Questions    []string     `bson:"questions" json:"questions"`
	CodingTasks  []CodingTask `bson:"coding_tasks" json:"coding_tasks"`
	SystemPrompt string       `bson:"system_prompt" json:"-"`
	DataSource   DataSource   `bson:"data_source" json:"data_source"`
	PreparedAt   time.Time    `bson:"prepared_at" json:"prepared_at"`
}

type CodingTask struct {
	ID          string        `bson:"id" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	Languages   []string      `bson:"languages,omitempty" json:"languages,omitempty"`
	Examples    []TaskExample `bson:"examples,omitempty" json:"examples,omitempty"`
	Tests       []string      `bson:"tests,omitempty" json:"tests,omitempty"`
}

type TaskExample struct {
	Input  string `bson:"input" json:"input"`
	Output string `bson:"output" json:"output"`
}
