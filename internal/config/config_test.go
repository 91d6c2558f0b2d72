package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repmgrd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadValidManualConfig(t *testing.T) {
	path := writeTempConfig(t, `
node_id: 1
conninfo: "host=node1 dbname=repmgr"
failover_mode: manual
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NodeID != 1 || cfg.Conninfo != "host=node1 dbname=repmgr" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeTempConfig(t, `
conninfo: "host=node1"
failover_mode: manual
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing node_id")
	}
}

func TestLoadAutomaticWithoutPromoteCommandFails(t *testing.T) {
	path := writeTempConfig(t, `
node_id: 1
conninfo: "host=node1"
failover_mode: automatic
follow_command: "repmgr standby follow"
`)
	_, err := Load(path)
	if err != ErrMissingPromoteCommand {
		t.Fatalf("expected ErrMissingPromoteCommand, got %v", err)
	}
}

func TestLoadAutomaticWithoutFollowCommandFails(t *testing.T) {
	path := writeTempConfig(t, `
node_id: 1
conninfo: "host=node1"
failover_mode: automatic
promote_command: "repmgr standby promote"
`)
	_, err := Load(path)
	if err != ErrMissingFollowCommand {
		t.Fatalf("expected ErrMissingFollowCommand, got %v", err)
	}
}

func TestLoadAutomaticWithServicePromoteCommandSucceeds(t *testing.T) {
	path := writeTempConfig(t, `
node_id: 1
conninfo: "host=node1"
failover_mode: automatic
service_promote_command: "systemctl start postgresql"
follow_command: "repmgr standby follow"
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsUnknownFailoverMode(t *testing.T) {
	path := writeTempConfig(t, `
node_id: 1
conninfo: "host=node1"
failover_mode: sometimes
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid failover_mode")
	}
}

func TestLogStatusIntervalDurationDisabledAtZero(t *testing.T) {
	cfg := &Config{LogStatusInterval: 0}
	if cfg.LogStatusIntervalDuration() != 0 {
		t.Fatal("expected zero duration to disable heartbeat")
	}
}

func TestApplyOverridesRespectsUnsetValues(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.ApplyOverrides("", false, nil)
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log level untouched, got %s", cfg.LogLevel)
	}

	cfg.ApplyOverrides("warn", false, nil)
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log level overridden to warn, got %s", cfg.LogLevel)
	}

	cfg.ApplyOverrides("", true, nil)
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected verbose to force debug level, got %s", cfg.LogLevel)
	}
}
