package db

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func TestGooseLogger_WritesToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := zerolog.New(&buf)
	gl := &gooseLogger{logger: &logger}

	gl.Printf("applied %d migrations", 3)

	if !strings.Contains(buf.String(), "applied 3 migrations") {
		t.Errorf("expected migration log output, got %q", buf.String())
	}
}

func TestApplyPoolOptions(t *testing.T) {
	config, err := pgxpool.ParseConfig("postgres://localhost/test")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	applyPoolOptions(config, PoolOptions{MaxConns: 7, MinConns: 2})

	if config.MaxConns != 7 {
		t.Errorf("MaxConns = %d, want 7", config.MaxConns)
	}

	if config.MinConns != 2 {
		t.Errorf("MinConns = %d, want 2", config.MinConns)
	}

	// Zero-valued options leave the existing settings alone.
	before := config.HealthCheckPeriod

	applyPoolOptions(config, PoolOptions{})

	if config.HealthCheckPeriod != before {
		t.Errorf("HealthCheckPeriod changed on zero options: %s", config.HealthCheckPeriod)
	}
}
