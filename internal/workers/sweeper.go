package workers

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoointerview/internal/services"
)

// Sweeper periodically expires overdue sessions and cleans up scheduled
// slots. With Redis set, only the replica holding LockKey runs a pass.
type Sweeper struct {
	Redis     *redis.Client // optional
	Sessions  services.SessionService
	Scheduled services.ScheduledService // optional

	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration

	Logger logrus.FieldLogger
}

func (w *Sweeper) Start(ctx context.Context) error {
	if w.Sessions == nil {
		return errors.New("Sweeper missing dependency: Sessions must be set")
	}
	if w.Interval <= 0 {
		w.Interval = 5 * time.Minute
	}
	if w.LockKey == "" {
		w.LockKey = "yoointerview:sweeper:lock"
	}
	if w.LockTTL <= 0 {
		w.LockTTL = w.Interval / 2
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}

	go w.run(ctx)
	return nil
}

func (w *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass. Failures are logged, never fatal.
func (w *Sweeper) RunOnce(ctx context.Context) {
	log := w.Logger.WithField("worker", "sweeper")

	if w.Redis != nil {
		ok, err := w.Redis.SetNX(ctx, w.LockKey, "1", w.LockTTL).Result()
		if err != nil {
			log.WithError(err).Warn("sweep lock unavailable, running anyway")
		} else if !ok {
			log.Debug("sweep skipped, another replica holds the lock")
			return
		}
	}

	start := time.Now()
	expired, err := w.Sessions.ExpireOverdue(ctx)
	if err != nil {
		log.WithError(err).Error("session sweep failed")
	}

	fields := logrus.Fields{"sessions_expired": expired}
	if w.Scheduled != nil {
		res, err := w.Scheduled.Sweep(ctx)
		if err != nil {
			log.WithError(err).Error("scheduled sweep failed")
		}
		fields["slots_expired"] = res.Expired
		fields["slots_deleted"] = res.Deleted
	}
	fields["duration_ms"] = time.Since(start).Milliseconds()
	log.WithFields(fields).Info("sweep finished")
}
