package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	HTTPAddr string `env:"CMD_TEST_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath   string `env:"CMD_TEST_DB_PATH" envDefault:"slotbook.db"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_HTTP_ADDR", "env:9000")
	t.Setenv("CMD_TEST_DB_PATH", "env.db")

	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "http listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path")

	if err := ParseArgs(fs, []string{"-http-addr", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.HTTPAddr != "flag:9001" {
		t.Fatalf("expected flag value for http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env.db" {
		t.Fatalf("expected env value for db path, got %q", cfg.DBPath)
	}
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_HTTP_ADDR", "configarg:9000")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", "", "http listen address")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-http-addr", "flag:9002"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfg.HTTPAddr != "flag:9002" {
		t.Fatalf("expected parsed flag addr, got %q", cfg.HTTPAddr)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceServer, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryRunsLoop(t *testing.T) {
	t.Setenv("SLOTBOOK_OTEL_ENDPOINT", "")

	wantErr := errors.New("loop done")
	err := RunWithTelemetry(context.Background(), ServiceWorker, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected run loop error, got %v", err)
	}
}
