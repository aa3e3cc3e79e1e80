package util

import (
	"path/filepath"
	"testing"
)

func TestParsePort(t *testing.T) {
	if p, err := ParsePort("", 22); err != nil || p != 22 {
		t.Fatalf("blank port: got %d, %v", p, err)
	}
	if p, err := ParsePort(" 2222 ", 22); err != nil || p != 2222 {
		t.Fatalf("explicit port: got %d, %v", p, err)
	}
	for _, bad := range []string{"abc", "0", "70000"} {
		if _, err := ParsePort(bad, 22); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestExpandAndCollapseHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	full := ExpandHome("~/.ssh/id_ed25519")
	if full != filepath.Join(home, ".ssh", "id_ed25519") {
		t.Fatalf("unexpected expansion: %s", full)
	}
	if got := CollapseHome(full); got != "~/.ssh/id_ed25519" {
		t.Fatalf("unexpected collapse: %s", got)
	}
	if got := ExpandHome("/etc/ssh"); got != "/etc/ssh" {
		t.Fatalf("absolute path changed: %s", got)
	}
}

func TestEmptyDash(t *testing.T) {
	if EmptyDash("  ") != "-" || EmptyDash("alice") != "alice" {
		t.Fatal("unexpected EmptyDash behavior")
	}
}
