package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"math"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
)

type DenyReason string

const (
	ReasonCancelled    DenyReason = "cancelled"
	ReasonCompleted    DenyReason = "completed"
	ReasonExpired      DenyReason = "expired"
	ReasonNotStarted   DenyReason = "not_started"
	ReasonWindowClosed DenyReason = "window_closed"
	ReasonLocked       DenyReason = "locked"
	ReasonInvalidToken DenyReason = "invalid_token"
)

// GateInput is everything the gate looks at. Both Session and
// ScheduledSession reduce to it.
type GateInput struct {
	Status      models.SessionStatus
	AccessStart time.Time
	AccessEnd   time.Time
	Attempts    int
	MaxAttempts int
}

// AccessDecision is returned to clients on denial so they can explain it
// without another round trip.
type AccessDecision struct {
	Allowed        bool                 `json:"allowed"`
	Reason         DenyReason           `json:"reason,omitempty"`
	Status         models.SessionStatus `json:"status"`
	AccessStart    time.Time            `json:"access_start"`
	AccessEnd      time.Time            `json:"access_end"`
	MinutesToStart int                  `json:"minutes_to_start"`
	MinutesToEnd   int                  `json:"minutes_to_end"`
	Attempts       int                  `json:"attempts"`
	MaxAttempts    int                  `json:"max_attempts"`
}

// ceilMinutes rounds a positive duration up to whole minutes.
func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// EvaluateAccess is the single source of truth for window and status rules.
// The order matters: status, before window, after window, lockout.
func EvaluateAccess(in GateInput, now time.Time) AccessDecision {
	d := AccessDecision{
		Status:      in.Status,
		AccessStart: in.AccessStart,
		AccessEnd:   in.AccessEnd,
		Attempts:    in.Attempts,
		MaxAttempts: in.MaxAttempts,
	}

	switch in.Status {
	case models.StatusCancelled:
		d.Reason = ReasonCancelled
		return d
	case models.StatusCompleted:
		d.Reason = ReasonCompleted
		return d
	case models.StatusExpired:
		d.Reason = ReasonExpired
		return d
	}

	if now.Before(in.AccessStart) {
		d.Reason = ReasonNotStarted
		d.MinutesToStart = ceilMinutes(in.AccessStart.Sub(now))
		return d
	}
	if now.After(in.AccessEnd) {
		d.Reason = ReasonWindowClosed
		return d
	}
	if in.Attempts >= in.MaxAttempts {
		d.Reason = ReasonLocked
		d.MinutesToEnd = ceilMinutes(in.AccessEnd.Sub(now))
		return d
	}

	d.Allowed = true
	d.MinutesToEnd = ceilMinutes(in.AccessEnd.Sub(now))
	return d
}

// EvaluateSession runs the gate for a session and, when a token is supplied
// and steps 1-4 pass, compares it.
func EvaluateSession(s *models.Session, now time.Time, token *string) AccessDecision {
	d := EvaluateAccess(sessionGateInput(s), now)
	if !d.Allowed || token == nil {
		return d
	}
	if !TokensEqual(*token, s.Security.AccessToken) {
		d.Allowed = false
		d.Reason = ReasonInvalidToken
	}
	return d
}

func sessionGateInput(s *models.Session) GateInput {
	return GateInput{
		Status:      s.Status,
		AccessStart: s.Window.AccessStart(),
		AccessEnd:   s.Window.AccessEnd(),
		Attempts:    s.Security.LoginAttempts,
		MaxAttempts: s.Security.MaxLoginAttempts,
	}
}

func scheduledGateInput(s *models.ScheduledSession, beforeGrace, afterGrace int) GateInput {
	return GateInput{
		Status:      s.Status,
		AccessStart: s.StartTime.Add(-time.Duration(beforeGrace) * time.Minute),
		AccessEnd:   s.EndTime.Add(time.Duration(afterGrace) * time.Minute),
		Attempts:    s.AccessAttempts,
		MaxAttempts: s.MaxAccessAttempts,
	}
}

// TokensEqual compares fixed-size digests in constant time, so neither the
// length nor the prefix of the presented token affects timing.
func TokensEqual(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(stored))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
