package models

import "time"

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleAssistant MessageRole = "assistant"
	RoleUser      MessageRole = "user"
)

type Message struct {
	Role      MessageRole `bson:"role" json:"role"`
	Content   string      `bson:"content" json:"content"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

type Conversation struct {
	Messages                 []Message          `bson:"messages" json:"messages"`
	AwaitingCodingSubmission bool               `bson:"awaiting_coding_submission" json:"awaiting_coding_submission"`
	CodingTestRecords        []CodingTestRecord `bson:"coding_test_records" json:"coding_test_records"`
}

// CodingTestRecord is open while SubmittedAt is nil. SubmittedAt is stored as an explicit null.
type CodingTestRecord struct {
	StartedAt     time.Time  `bson:"started_at" json:"started_at"`
	SubmittedAt   *time.Time `bson:"submitted_at" json:"submitted_at"`
	TestName      string     `bson:"test_name" json:"test_name"`
	Passed        *bool      `bson:"passed" json:"passed"`
	ResultSummary string     `bson:"result_summary,omitempty" json:"result_summary,omitempty"`
	Language      string     `bson:"language,omitempty" json:"language,omitempty"`
	ArtifactPath  string     `bson:"artifact_path,omitempty" json:"artifact_path,omitempty"`
	Abandoned     bool       `bson:"abandoned,omitempty" json:"abandoned,omitempty"`
}

func (r CodingTestRecord) Open() bool { return r.SubmittedAt == nil }

// CodingSubmission closes the open coding record.
type CodingSubmission struct {
	SubmittedAt   time.Time
	Passed        bool
	Language      string
	ResultSummary string
	ArtifactPath  string
}
