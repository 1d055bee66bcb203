package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal statuses never transition further.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// OpenStatuses are the states a session can still leave.
var OpenStatuses = []SessionStatus{StatusScheduled, StatusActive}

type Session struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID     string             `bson:"session_id" json:"session_id"` // uuid v4
	CandidateID   string             `bson:"candidate_id" json:"candidate_id"`
	ApplicationID string             `bson:"application_id" json:"application_id"`
	JobID         string             `bson:"job_id" json:"job_id"`
	RecruiterID   string             `bson:"recruiter_id" json:"recruiter_id"`

	Candidate CandidateSnapshot `bson:"candidate_snapshot" json:"candidate_snapshot"`
	Window    SessionWindow     `bson:"window" json:"window"`
	Status    SessionStatus     `bson:"status" json:"status"`

	Security      SessionSecurity  `bson:"security" json:"-"`
	AccessControl AccessControl    `bson:"access_control" json:"access_control"`
	Conversation  Conversation     `bson:"conversation" json:"-"`
	Prepared      *PreparedContent `bson:"prepared_content,omitempty" json:"-"`

	// OpenKey is candidate|job while the session is not terminal; unset afterwards.
	OpenKey string `bson:"open_key,omitempty" json:"-"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	EndedAt     *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `bson:"expired_at,omitempty" json:"expired_at,omitempty"`
}

func OpenKey(candidateID, jobID string) string { return candidateID + "|" + jobID }

type CandidateSnapshot struct {
	Name       string   `bson:"name" json:"name"`
	Email      string   `bson:"email" json:"email"`
	Phone      string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Company    string   `bson:"company,omitempty" json:"company,omitempty"`
	Role       string   `bson:"role,omitempty" json:"role,omitempty"`
	TechStack  []string `bson:"tech_stack,omitempty" json:"tech_stack,omitempty"`
	Experience string   `bson:"experience,omitempty" json:"experience,omitempty"`
}

type SessionWindow struct {
	ScheduledStart     time.Time `bson:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd       time.Time `bson:"scheduled_end" json:"scheduled_end"`
	BeforeGraceMinutes int       `bson:"before_grace_minutes" json:"before_grace_minutes"`
	AfterGraceMinutes  int       `bson:"after_grace_minutes" json:"after_grace_minutes"`
	DurationMinutes    int       `bson:"duration_minutes" json:"duration_minutes"`
	TimeZone           string    `bson:"time_zone" json:"time_zone"`
}

// AccessStart = scheduledStart - beforeGrace.
func (w SessionWindow) AccessStart() time.Time {
	return w.ScheduledStart.Add(-time.Duration(w.BeforeGraceMinutes) * time.Minute)
}

// AccessEnd = scheduledEnd + afterGrace.
func (w SessionWindow) AccessEnd() time.Time {
	return w.ScheduledEnd.Add(time.Duration(w.AfterGraceMinutes) * time.Minute)
}

type SessionSecurity struct {
	AccessToken      string     `bson:"access_token"`
	LoginAttempts    int        `bson:"login_attempts"`
	MaxLoginAttempts int        `bson:"max_login_attempts"`
	LastAttemptAt    *time.Time `bson:"last_attempt_at,omitempty"`
}

type AccessControl struct {
	IsActive          bool       `bson:"is_active" json:"is_active"`
	JoinedAt          *time.Time `bson:"joined_at,omitempty" json:"joined_at,omitempty"`
	LeftAt            *time.Time `bson:"left_at,omitempty" json:"left_at,omitempty"`
	AccessEnd         *time.Time `bson:"access_end,omitempty" json:"access_end,omitempty"`
	TotalMinutesSpent int        `bson:"total_minutes_spent" json:"total_minutes_spent"`
}
