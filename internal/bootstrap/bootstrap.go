// Package bootstrap wires stores, providers and services from Settings. It is
// shared by the HTTP server and the ops CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/repositories/memory"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/storage"
)

type App struct {
	Settings config.Settings
	Logger   *logrus.Logger
	Redis    *redis.Client // nil when not configured

	Sessions     services.SessionService
	Conversation services.ConversationService
	Scheduled    services.ScheduledService
	Profiles     services.ProfileService
	Transcripts  services.TranscriptService

	closers []io.Closer
}

type stores struct {
	sessions    mongorepo.SessionRepository
	scheduled   mongorepo.ScheduledSessionRepository
	profiles    pgrepo.ProfileRepository
	tasks       pgrepo.TaskRepository
	transcripts pgrepo.TranscriptRepository
}

// Build connects the configured backends. Redis, Vertex AI and GCS are
// optional; their absence degrades to no-op cache/events, fallback replies and
// no submission artifacts.
func Build(ctx context.Context, s config.Settings, log *logrus.Logger) (*App, error) {
	app := &App{Settings: s, Logger: log}

	st, err := openStores(s, log)
	if err != nil {
		return nil, err
	}

	var (
		taskCache cache.Cache      = cache.Nop{}
		publisher events.Publisher = events.Nop{}
	)
	switch err := config.InitRedis(); {
	case err == nil:
		app.Redis = config.RedisClient
		app.closers = append(app.closers, config.RedisClient)
		taskCache = cache.NewRedisCache(config.RedisClient, s.CachePrefix)
		publisher = events.NewRedisPublisher(config.RedisClient)
		log.Info("redis connected")
	case errors.Is(err, config.ErrRedisNotConfigured):
		log.Warn("redis not configured; task cache and live status disabled")
	default:
		return nil, fmt.Errorf("redis init: %w", err)
	}

	var model llm.Provider
	if s.VertexProjectID != "" {
		v, err := llm.NewVertexGemini(ctx, s.VertexProjectID, s.VertexLocation, s.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("vertex init: %w", err)
		}
		app.closers = append(app.closers, v)
		model = llm.WithTimeout(v, s.LLMTimeout)
		log.WithField("model", s.VertexModel).Info("vertex ai ready")
	} else {
		log.Warn("VERTEX_PROJECT_ID not set; replies use the fixed fallback")
	}

	var uploader storage.Uploader
	if s.GCSBucket != "" {
		u, err := storage.NewGCSUploader(ctx, s.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("gcs init: %w", err)
		}
		app.closers = append(app.closers, u)
		uploader = u
	}

	now := func() time.Time { return time.Now().UTC() }

	preparer := services.NewContentPreparer(services.PreparerDeps{
		Profiles:     st.profiles,
		Tasks:        st.tasks,
		LLM:          model,
		Cache:        taskCache,
		TaskCacheTTL: s.TaskCacheTTL,
		Logger:       log,
		Now:          now,
	})
	app.Transcripts = services.NewTranscriptService(st.transcripts)
	app.Profiles = services.NewProfileService(st.profiles)
	app.Sessions = services.NewSessionService(services.SessionDeps{
		Sessions:    st.sessions,
		Preparer:    preparer,
		Transcripts: app.Transcripts,
		Events:      publisher,
		Logger:      log,
		Now:         now,
	}, services.SessionConfig{
		BeforeGraceMinutes: s.BeforeGraceMinutes,
		AfterGraceMinutes:  s.AfterGraceMinutes,
		MaxLoginAttempts:   s.MaxLoginAttempts,
		DefaultTimeZone:    s.DefaultTimeZone,
	})
	app.Conversation = services.NewConversationService(services.ConversationDeps{
		Sessions: st.sessions,
		Auth:     app.Sessions,
		Preparer: preparer,
		LLM:      model,
		Uploader: uploader,
		Events:   publisher,
		Logger:   log,
		Now:      now,
	}, services.ConversationConfig{
		ContextMessages: s.ContextMessages,
		ResultMaxLen:    s.CodeResultMaxLen,
	})
	app.Scheduled = services.NewScheduledService(st.scheduled, log, now, services.ScheduledConfig{
		BeforeGraceMinutes: s.BeforeGraceMinutes,
		AfterGraceMinutes:  s.AfterGraceMinutes,
		MaxAccessAttempts:  s.ScheduledMaxAttempts,
		Retention:          s.SweepRetention,
	})

	return app, nil
}

func openStores(s config.Settings, log *logrus.Logger) (*stores, error) {
	if s.StoreBackend == "memory" {
		log.Warn("STORE_BACKEND=memory; nothing is persisted")
		return &stores{
			sessions:    memory.NewSessionStore(),
			scheduled:   memory.NewScheduledStore(),
			profiles:    memory.NewProfileStore(),
			tasks:       memory.NewTaskStore(),
			transcripts: memory.NewTranscriptStore(),
		}, nil
	}

	if err := config.InitMongo(); err != nil {
		return nil, fmt.Errorf("mongo init: %w", err)
	}
	db, err := config.MongoDatabase(s.MongoDB)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureMongoIndexes(s.MongoDB); err != nil {
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	log.Info("mongodb connected")

	if err := config.InitPostgres(); err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}
	if err := config.MigratePostgres(); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("postgresql connected")

	return &stores{
		sessions:    mongorepo.NewSessionRepo(db),
		scheduled:   mongorepo.NewScheduledSessionRepo(db),
		profiles:    pgrepo.NewProfileRepo(config.PostgresDB),
		tasks:       pgrepo.NewTaskRepo(config.PostgresDB),
		transcripts: pgrepo.NewTranscriptRepo(config.PostgresDB),
	}, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.WithError(err).Warn("close failed")
		}
	}
	if config.MongoClient != nil {
		_ = config.MongoClient.Disconnect(ctx)
	}
	if config.PostgresDB != nil {
		if sqlDB, err := config.PostgresDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
