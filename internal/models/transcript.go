package models

import (
	"time"

	"gorm.io/datatypes"
)

type TranscriptEntry struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID   string         `gorm:"column:session_id;type:text;index" json:"session_id"`
	CandidateID string         `gorm:"column:candidate_id;type:text;index" json:"candidate_id"`
	Seq         int            `gorm:"column:seq;type:integer" json:"seq"`
	Role        string         `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content     string         `gorm:"column:content;type:text" json:"content"`
	Timestamp   time.Time      `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (TranscriptEntry) TableName() string { return "interview_transcripts" }
