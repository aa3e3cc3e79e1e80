package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackupRetain != 5 {
		t.Fatalf("unexpected backup retain: %d", cfg.BackupRetain)
	}
	if cfg.ProbeTimeout() != 10*time.Second {
		t.Fatalf("unexpected probe timeout: %s", cfg.ProbeTimeout())
	}
	if cfg.Agent.Backend != AgentBackendSSHAdd {
		t.Fatalf("unexpected agent backend: %s", cfg.Agent.Backend)
	}
	if cfg.Agent.ExitCodes[2] != "not-running" {
		t.Fatalf("unexpected exit code map: %+v", cfg.Agent.ExitCodes)
	}

	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("expected defaults to be written: %v", err)
	}
}

func TestLoad_NormalizesInvalidValues(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "sshkit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte(strings.Join([]string{
		"backup_dir_name: ../escape",
		"backup_retain: -1",
		"probe_timeout_seconds: 0",
		"agent:",
		"  backend: carrier-pigeon",
		"log:",
		"  level: LOUD",
		"",
	}, "\n"))
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackupDirName != "backups" {
		t.Fatalf("expected normalized backup dir, got %s", cfg.BackupDirName)
	}
	if cfg.BackupRetain != 5 || cfg.ProbeTimeoutSeconds != 10 {
		t.Fatalf("expected defaults, got retain=%d timeout=%d", cfg.BackupRetain, cfg.ProbeTimeoutSeconds)
	}
	if cfg.Agent.Backend != AgentBackendSSHAdd {
		t.Fatalf("expected normalized backend, got %s", cfg.Agent.Backend)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected normalized log level, got %s", cfg.Log.Level)
	}
}

func TestLoad_ExitCodeOverride(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "sshkit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte("agent:\n  exit_codes:\n    0: running\n    1: not-running\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Agent.ExitCodes) != 2 || cfg.Agent.ExitCodes[1] != "not-running" {
		t.Fatalf("expected override to replace defaults, got %+v", cfg.Agent.ExitCodes)
	}
}

func TestLoad_UnknownExitCodeState(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "sshkit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte("agent:\n  exit_codes:\n    0: Running\n    1: runing\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.ExitCodes[0] != "running" {
		t.Fatalf("state names should be normalized, got %q", cfg.Agent.ExitCodes[0])
	}
	if cfg.Agent.ExitCodes[1] != "communication-error" {
		t.Fatalf("unknown state should map to communication-error, got %q", cfg.Agent.ExitCodes[1])
	}
}

func TestPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := Default()
	if cfg.SSHConfigPath() != filepath.Join(home, ".ssh", "config") {
		t.Fatalf("unexpected config path: %s", cfg.SSHConfigPath())
	}
	if cfg.BackupDir() != filepath.Join(home, ".ssh", "backups") {
		t.Fatalf("unexpected backup dir: %s", cfg.BackupDir())
	}
}
