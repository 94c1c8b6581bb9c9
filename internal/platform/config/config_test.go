package config

import (
	"os"
	"testing"
	"time"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
	testErrLoad        = "Load() error = %v"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.PostgresDSN != testPostgresDSN {
		t.Errorf("PostgresDSN = %q, want %q", cfg.PostgresDSN, testPostgresDSN)
	}

	if cfg.AppEnv != "local" {
		t.Errorf("AppEnv = %q, want %q", cfg.AppEnv, "local")
	}

	if cfg.IntelTimeout != 60*time.Second {
		t.Errorf("IntelTimeout = %s, want 60s", cfg.IntelTimeout)
	}

	if cfg.BatchStaleAfter != 10*time.Minute {
		t.Errorf("BatchStaleAfter = %s, want 10m", cfg.BatchStaleAfter)
	}

	if cfg.BatchMaxMessages != 200 {
		t.Errorf("BatchMaxMessages = %d, want 200", cfg.BatchMaxMessages)
	}
}

func TestLoad_StaleAfterMustExceedTimeout(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("INTEL_TIMEOUT", "10m")
	t.Setenv("BATCH_STALE_AFTER", "5m")

	if _, err := Load(); err == nil {
		t.Error("expected error when BATCH_STALE_AFTER <= INTEL_TIMEOUT")
	}
}

func TestLoad_InvalidMaxMessages(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BATCH_MAX_MESSAGES", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for non-positive BATCH_MAX_MESSAGES")
	}
}
