package config

import (
	"os"
	"strconv"
)

// FromEnv overlays ENRICH_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString(&cfg.DataDir, "ENRICH_DATA_DIR")
	setString(&cfg.HTTPAddr, "ENRICH_HTTP_ADDR")
	setString(&cfg.Fsync, "ENRICH_FSYNC")
	setString(&cfg.LogLevel, "ENRICH_LOG_LEVEL")
	setString(&cfg.LogFormat, "ENRICH_LOG_FORMAT")

	setInt(&cfg.Queue.Workers, "ENRICH_WORKERS")
	setInt(&cfg.Queue.WorkerConcurrency, "ENRICH_WORKER_CONCURRENCY")
	setInt(&cfg.Queue.ClaimBatch, "ENRICH_CLAIM_BATCH")
	setInt(&cfg.Queue.MaxAttempts, "ENRICH_MAX_ATTEMPTS")
	setInt64(&cfg.Queue.ClaimTimeoutMs, "ENRICH_CLAIM_TIMEOUT_MS")
	setInt64(&cfg.Queue.FairnessWindowMs, "ENRICH_FAIRNESS_WINDOW_MS")
	setInt64(&cfg.Queue.SweepIntervalMs, "ENRICH_SWEEP_INTERVAL_MS")
	setInt64(&cfg.Queue.IdleGraceMs, "ENRICH_IDLE_GRACE_MS")
	setInt64(&cfg.Queue.PollIntervalMs, "ENRICH_POLL_INTERVAL_MS")
	setFloat(&cfg.Queue.FailureThreshold, "ENRICH_FAILURE_THRESHOLD")
	setInt(&cfg.Queue.ArchiveMaxBatches, "ENRICH_ARCHIVE_MAX_BATCHES")
	setInt64(&cfg.Queue.ArchiveMaxAgeMs, "ENRICH_ARCHIVE_MAX_AGE_MS")
	setBool(&cfg.Queue.JournalEnabled, "ENRICH_JOURNAL_ENABLED")
	setInt64(&cfg.Queue.JournalMaxAgeMs, "ENRICH_JOURNAL_MAX_AGE_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
