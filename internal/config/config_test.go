package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndResolveDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 10m
game:
  questions: 5
  answerTime: 8s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}

	g := cfg.GameConfig()
	if g.Questions != 5 {
		t.Fatalf("expected 5 questions, got %d", g.Questions)
	}
	if g.AnswerTime != 8*time.Second {
		t.Fatalf("expected 8s answer time, got %s", g.AnswerTime)
	}
	// unset fields fall back to defaults
	if g.RevealTime != 5*time.Second {
		t.Fatalf("expected default reveal time, got %s", g.RevealTime)
	}
	if g.Capacity != 6 || g.MinPlayers != 2 {
		t.Fatalf("expected default capacity/minPlayers, got %d/%d", g.Capacity, g.MinPlayers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("empty value must fall back, got %s", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
	if d := TTLDuration("garbage", time.Minute); d != time.Minute {
		t.Fatalf("unparseable value must fall back, got %s", d)
	}
}
