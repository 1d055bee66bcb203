package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds engine knobs read from the environment.
type Settings struct {
	Port         string
	MongoDB      string
	StoreBackend string // mongo | memory

	BeforeGraceMinutes   int
	AfterGraceMinutes    int
	MaxLoginAttempts     int
	DefaultTimeZone      string
	ScheduledMaxAttempts int
	LLMTimeout           time.Duration
	ContextMessages      int
	CodeResultMaxLen     int
	SweepInterval        time.Duration
	SweepRetention       time.Duration
	TaskCacheTTL         time.Duration
	VertexProjectID      string
	VertexLocation       string
	VertexModel          string
	GCSBucket            string
	CachePrefix          string
}

func LoadSettings() Settings {
	return Settings{
		Port:         envString("PORT", "8080"),
		MongoDB:      envString("MONGO_DB", "yoointerview"),
		StoreBackend: strings.ToLower(envString("STORE_BACKEND", "mongo")),

		BeforeGraceMinutes:   envInt("SESSION_BEFORE_GRACE_MINUTES", 15),
		AfterGraceMinutes:    envInt("SESSION_AFTER_GRACE_MINUTES", 15),
		MaxLoginAttempts:     envInt("SESSION_MAX_LOGIN_ATTEMPTS", 10),
		DefaultTimeZone:      envString("SESSION_DEFAULT_TIMEZONE", "UTC"),
		ScheduledMaxAttempts: envInt("SCHEDULED_MAX_ACCESS_ATTEMPTS", 10),
		LLMTimeout:           envDuration("LLM_TIMEOUT", 30*time.Second),
		ContextMessages:      envInt("CONVERSATION_CONTEXT_MESSAGES", 20),
		CodeResultMaxLen:     envInt("CODE_RESULT_MAX_LEN", 400),
		SweepInterval:        envDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepRetention:       envDuration("SWEEP_RETENTION", 24*time.Hour),
		TaskCacheTTL:         envDuration("TASK_CACHE_TTL", time.Hour),
		VertexProjectID:      os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:       envString("VERTEX_LOCATION", "us-central1"),
		VertexModel:          envString("VERTEX_MODEL", "gemini-1.5-flash"),
		GCSBucket:            os.Getenv("GCS_BUCKET"),
		CachePrefix:          envString("CACHE_PREFIX", "yoointerview:"),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
