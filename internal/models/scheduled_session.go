package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduledSession is a lightweight slot booking without conversation state.
type ScheduledSession struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID         string             `bson:"session_id" json:"session_id"`
	CandidateID       string             `bson:"candidate_id" json:"candidate_id"`
	CandidateName     string             `bson:"candidate_name" json:"candidate_name"`
	StartTime         time.Time          `bson:"start_time" json:"start_time"`
	EndTime           time.Time          `bson:"end_time" json:"end_time"`
	Status            SessionStatus      `bson:"status" json:"status"`
	AccessAttempts    int                `bson:"access_attempts" json:"access_attempts"`
	MaxAccessAttempts int                `bson:"max_access_attempts" json:"max_access_attempts"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	ActivatedAt *time.Time `bson:"activated_at,omitempty" json:"activated_at,omitempty"`
	ExpiredAt   *time.Time `bson:"expired_at,omitempty" json:"expired_at,omitempty"`
}
