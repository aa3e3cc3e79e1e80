package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/sshkit/internal/agent"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient/sshclienttest"
)

type stubAgent struct{ state agent.State }

func (s stubAgent) Status(context.Context) agent.Status { return agent.Status{State: s.state} }
func (s stubAgent) Add(context.Context, string) error { return nil }
func (s stubAgent) Remove(context.Context, string) error { return nil }
func (s stubAgent) RemoveAll(context.Context) error { return nil }
func (s stubAgent) LoadedKeys(context.Context) []model.LoadedKey { return nil }

func setup(t *testing.T, configText string) appconfig.Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sshDir, "config"), []byte(configText), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := appconfig.Default()
	cfg.SSHDir = sshDir
	return cfg
}

func hasIssue(r Report, check, target string) bool {
	for _, issue := range r.Issues {
		if issue.Check == check && (target == "" || issue.Target == target) {
			return true
		}
	}
	return false
}

func TestRunReportsMissingToolsAndIdentity(t *testing.T) {
	cfg := setup(t, strings.Join([]string{
		"Host api",
		"  HostName 10.0.0.1",
		"  IdentityFile ~/.ssh/id_gone",
		"",
	}, "\n"))
	runner := sshclienttest.New().Missing("ssh-add").Missing("ssh-copy-id")

	report, err := Run(context.Background(), Options{Config: cfg, Runner: runner, Agent: stubAgent{agent.Running}})
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "tool-missing", "ssh-add") {
		t.Fatalf("expected ssh-add issue, got %+v", report.Issues)
	}
	if !hasIssue(report, "identity-missing", "api") {
		t.Fatalf("expected identity-missing issue, got %+v", report.Issues)
	}
	if report.Issues[0].Severity != SeverityHigh {
		t.Fatalf("high severity issues must sort first: %+v", report.Issues)
	}
	if !report.HasHigh() {
		t.Fatal("expected HasHigh")
	}
}

func TestRunReportsAgentAndAudit(t *testing.T) {
	cfg := setup(t, "Host api\n  HostName 10.0.0.1\n")
	if err := os.Chmod(cfg.SSHConfigPath(), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), Options{Config: cfg, Runner: sshclienttest.New(), Agent: stubAgent{agent.NotRunning}})
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(report, "agent", "") {
		t.Fatalf("expected agent issue, got %+v", report.Issues)
	}
	if !hasIssue(report, "security-audit", "") {
		t.Fatalf("expected config-mode audit issue, got %+v", report.Issues)
	}
	if hasIssue(report, "tool-missing", "") {
		t.Fatalf("no tools should be missing, got %+v", report.Issues)
	}
}

func TestRunJSONShapeDeterministic(t *testing.T) {
	cfg := setup(t, "Host api\n  HostName 127.0.0.1\n")
	report, err := Run(context.Background(), Options{Config: cfg, Runner: sshclienttest.New(), Agent: stubAgent{agent.Running}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["issues"]; !ok {
		t.Fatalf("expected issues key in json output: %s", string(b))
	}
}
