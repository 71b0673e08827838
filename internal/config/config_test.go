package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.Workers != 4 {
		t.Fatalf("default workers")
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("default max attempts")
	}
	if cfg.Queue.FailureThreshold != 0.5 {
		t.Fatalf("default failure threshold")
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Kind != "pattern" {
		t.Fatalf("default provider chain")
	}
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "enrichd.json")
	data := []byte(`{"httpAddr":":9090","queue":{"workers":2,"maxAttempts":5},"providers":[{"name":"lookup","kind":"http","baseUrl":"http://example.test","rps":2}]}`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("httpAddr not applied")
	}
	if cfg.Queue.Workers != 2 || cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("queue overrides not applied: %+v", cfg.Queue)
	}
	// untouched fields keep defaults
	if cfg.Queue.ClaimTimeoutMs != 30_000 {
		t.Fatalf("claim timeout default lost")
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Kind != "http" {
		t.Fatalf("provider list not replaced")
	}
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "enrichd.yaml")
	data := []byte("httpAddr: \":7070\"\nqueue:\n  fairnessWindowMs: 1234\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("yaml httpAddr not applied")
	}
	if cfg.Queue.FairnessWindowMs != 1234 {
		t.Fatalf("yaml fairness window not applied")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("ENRICH_HTTP_ADDR", ":6060")
	t.Setenv("ENRICH_WORKERS", "9")
	t.Setenv("ENRICH_FAILURE_THRESHOLD", "0.25")
	t.Setenv("ENRICH_CLAIM_TIMEOUT_MS", "5000")

	cfg := Default()
	FromEnv(&cfg)

	if cfg.HTTPAddr != ":6060" {
		t.Fatalf("env httpAddr")
	}
	if cfg.Queue.Workers != 9 {
		t.Fatalf("env workers")
	}
	if cfg.Queue.FailureThreshold != 0.25 {
		t.Fatalf("env failure threshold")
	}
	if cfg.Queue.ClaimTimeoutMs != 5000 {
		t.Fatalf("env claim timeout")
	}
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("ENRICH_WORKERS", "not-a-number")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Queue.Workers != 4 {
		t.Fatalf("garbage env should not override default")
	}
}
