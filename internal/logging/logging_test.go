package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown", "alias", "prod")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "alias=prod") {
		t.Fatalf("missing warn output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}

func TestSetupWritesToConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	prev := slog.Default()
	defer slog.SetDefault(prev)

	closer, err := Setup("info")
	if err != nil {
		t.Fatal(err)
	}
	slog.Info("backup created", "path", "x.tar.gz")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(xdg, "sshkit", FileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "backup created") {
		t.Fatalf("log file missing entry: %s", b)
	}
}
