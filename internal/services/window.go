package services

import (
	"errors"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones without relying on the host

	"github.com/yoockh/yoointerview/internal/models"
)

var (
	errBadDate     = errors.New("scheduled_date must be YYYY-MM-DD")
	errBadTime     = errors.New("scheduled_time must be HH:MM")
	errBadDuration = errors.New("duration must be > 0 minutes")
	errBadZone     = errors.New("unknown time_zone")
	errBadGrace    = errors.New("grace minutes must be >= 0")
)

// BuildWindow turns a local date/time in tz into a session window.
// The result always satisfies scheduledStart < scheduledEnd.
func BuildWindow(date, clock string, durationMinutes int, tz string, beforeGrace, afterGrace int) (models.SessionWindow, error) {
	var w models.SessionWindow

	if durationMinutes <= 0 {
		return w, errBadDuration
	}
	if beforeGrace < 0 || afterGrace < 0 {
		return w, errBadGrace
	}
	if strings.TrimSpace(tz) == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return w, errBadZone
	}

	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return w, errBadDate
	}
	clock = strings.TrimSpace(clock)
	tod, err := time.Parse("15:04", clock)
	if err != nil {
		if tod, err = time.Parse("15:04:05", clock); err != nil {
			return w, errBadTime
		}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, loc).UTC()
	w = models.SessionWindow{
		ScheduledStart:     start,
		ScheduledEnd:       start.Add(time.Duration(durationMinutes) * time.Minute),
		BeforeGraceMinutes: beforeGrace,
		AfterGraceMinutes:  afterGrace,
		DurationMinutes:    durationMinutes,
		TimeZone:           tz,
	}
	return w, nil
}
