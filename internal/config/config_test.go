package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
log:
  level: debug
  format: json
mongo:
  uri: mongodb://localhost:27017
  database: matchpoint
auth:
  jwt_secret: from-file
  token_ttl: 2h
quiz:
  ttl: 5m
  session_time_limit: 10m
  free_quiz_limit: 3
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected server/log section: %+v", cfg)
	}
	if cfg.Mongo.Database != "matchpoint" {
		t.Fatalf("expected mongo database, got %q", cfg.Mongo.Database)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("env secret should win, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Quiz.FreeQuizLimit != 3 {
		t.Fatalf("expected free quiz limit 3, got %d", cfg.Quiz.FreeQuizLimit)
	}
	if got := TTLDuration(cfg.Quiz.SessionTimeLimit, 0); got != 10*time.Minute {
		t.Fatalf("expected 10m session limit, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	cases := map[string]time.Duration{
		"":        time.Minute,
		"garbage": time.Minute,
		"90s":     90 * time.Second,
	}
	for raw, want := range cases {
		if got := TTLDuration(raw, time.Minute); got != want {
			t.Fatalf("TTLDuration(%q) = %v, want %v", raw, got, want)
		}
	}
}
