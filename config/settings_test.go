package config

import (
	"testing"
	"time"
)

func TestLoadSettings_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "SESSION_BEFORE_GRACE_MINUTES", "SESSION_MAX_LOGIN_ATTEMPTS", "LLM_TIMEOUT"} {
		t.Setenv(k, "")
	}

	s := LoadSettings()
	if s.Port != "8080" {
		t.Errorf("Port = %q", s.Port)
	}
	if s.StoreBackend != "mongo" {
		t.Errorf("StoreBackend = %q", s.StoreBackend)
	}
	if s.BeforeGraceMinutes != 15 || s.AfterGraceMinutes != 15 {
		t.Errorf("grace = %d/%d, want 15/15", s.BeforeGraceMinutes, s.AfterGraceMinutes)
	}
	if s.MaxLoginAttempts != 10 {
		t.Errorf("MaxLoginAttempts = %d", s.MaxLoginAttempts)
	}
	if s.LLMTimeout != 30*time.Second {
		t.Errorf("LLMTimeout = %v", s.LLMTimeout)
	}
	if s.CodeResultMaxLen != 400 {
		t.Errorf("CodeResultMaxLen = %d", s.CodeResultMaxLen)
	}
}

func TestLoadSettings_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("SESSION_MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SESSION_AFTER_GRACE_MINUTES", "not-a-number")
	t.Setenv("LLM_TIMEOUT", "-5s")

	s := LoadSettings()
	if s.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q, want memory", s.StoreBackend)
	}
	if s.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts = %d, want 3", s.MaxLoginAttempts)
	}
	if s.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v", s.SweepInterval)
	}
	if s.AfterGraceMinutes != 15 {
		t.Errorf("invalid int should fall back to default, got %d", s.AfterGraceMinutes)
	}
	if s.LLMTimeout != 30*time.Second {
		t.Errorf("negative duration should fall back to default, got %v", s.LLMTimeout)
	}
}
