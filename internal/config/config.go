package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir   string `json:"dataDir" yaml:"dataDir"`
	HTTPAddr  string `json:"httpAddr" yaml:"httpAddr"`
	Fsync     string `json:"fsync" yaml:"fsync"` // always | interval | never
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text | json

	Queue     QueueDefaults    `json:"queue" yaml:"queue"`
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
}

// QueueDefaults captures the queue/worker baseline limits. Durations are in
// milliseconds to keep file and env forms uniform.
type QueueDefaults struct {
	Workers           int     `json:"workers" yaml:"workers"`
	WorkerConcurrency int     `json:"workerConcurrency" yaml:"workerConcurrency"`
	ClaimBatch        int     `json:"claimBatch" yaml:"claimBatch"`
	MaxAttempts       int     `json:"maxAttempts" yaml:"maxAttempts"`
	ClaimTimeoutMs    int64   `json:"claimTimeoutMs" yaml:"claimTimeoutMs"`
	FairnessWindowMs  int64   `json:"fairnessWindowMs" yaml:"fairnessWindowMs"`
	SweepIntervalMs   int64   `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
	IdleGraceMs       int64   `json:"idleGraceMs" yaml:"idleGraceMs"`
	PollIntervalMs    int64   `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	FailureThreshold  float64 `json:"failureThreshold" yaml:"failureThreshold"`
	ArchiveMaxBatches int     `json:"archiveMaxBatches" yaml:"archiveMaxBatches"`
	ArchiveMaxAgeMs   int64   `json:"archiveMaxAgeMs" yaml:"archiveMaxAgeMs"`
	JournalEnabled    bool    `json:"journalEnabled" yaml:"journalEnabled"`
	JournalMaxAgeMs   int64   `json:"journalMaxAgeMs" yaml:"journalMaxAgeMs"`
}

// ProviderConfig describes one enrichment provider in chain order.
type ProviderConfig struct {
	Name      string  `json:"name" yaml:"name"`
	Kind      string  `json:"kind" yaml:"kind"` // pattern | http
	BaseURL   string  `json:"baseUrl" yaml:"baseUrl"`
	APIKey    string  `json:"apiKey" yaml:"apiKey"`
	RPS       float64 `json:"rps" yaml:"rps"`
	Burst     int     `json:"burst" yaml:"burst"`
	TimeoutMs int64   `json:"timeoutMs" yaml:"timeoutMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		Fsync:     "always",
		LogLevel:  "info",
		LogFormat: "text",
		Queue: QueueDefaults{
			Workers:           4,
			WorkerConcurrency: 4,
			ClaimBatch:        8,
			MaxAttempts:       3,
			ClaimTimeoutMs:    30_000,
			FairnessWindowMs:  5_000,
			SweepIntervalMs:   2_000,
			IdleGraceMs:       60_000,
			PollIntervalMs:    100,
			FailureThreshold:  0.5,
			ArchiveMaxBatches: 1000,
			ArchiveMaxAgeMs:   24 * 3600 * 1000,
			JournalEnabled:    true,
			JournalMaxAgeMs:   7 * 24 * 3600 * 1000,
		},
		Providers: []ProviderConfig{
			{Name: "pattern", Kind: "pattern"},
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
