package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/treykane/sshkit/internal/app"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/events"
	"github.com/treykane/sshkit/internal/keys/keystest"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/nav"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/sshclient/sshclienttest"
	"github.com/treykane/sshkit/internal/wizard"
)

func newTestModel(t *testing.T) (modelUI, *sshclienttest.Runner) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := appconfig.Default()
	cfg.SSHDir = filepath.Join(t.TempDir(), ".ssh")
	if err := os.MkdirAll(cfg.SSHDir, 0o700); err != nil {
		t.Fatal(err)
	}
	r := sshclienttest.New()
	return newModel(context.Background(), app.NewWithRunner(cfg, r)), r
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends keys one by one, running the returned commands to completion.
func press(t *testing.T, m modelUI, keys ...string) modelUI {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(keyMsg(k))
		m = drain(t, next.(modelUI), cmd)
	}
	return m
}

func drain(t *testing.T, m modelUI, cmd tea.Cmd) modelUI {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok || msg == nil {
			return m
		}
		next, c := m.Update(msg)
		m, cmd = next.(modelUI), c
	}
	return m
}

func (m modelUI) keyDir() string { return m.svc.Config.ResolvedSSHDir() }

func TestHomeEmptiesStackFromAnyDepth(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, "8")
	if got := m.nav.Current(); got != nav.ShowConfig {
		t.Fatalf("expected show-config, got %s", got)
	}
	m = press(t, m, "b")
	if m.nav.Current() != nav.Home || m.nav.Depth() != 0 {
		t.Fatalf("back should return home, got %s depth %d", m.nav.Current(), m.nav.Depth())
	}

	m = press(t, m, "1")
	if step, _ := m.nav.Current().Step(); step != 1 {
		t.Fatalf("expected wizard step 1, got %s", m.nav.Current())
	}
	m = press(t, m, "esc")
	m = press(t, m, "7")
	if m.nav.Current() != nav.AgentStatus {
		t.Fatalf("expected agent-status, got %s", m.nav.Current())
	}
	m = press(t, m, "h")
	if m.nav.Current() != nav.Home || m.nav.Depth() != 0 {
		t.Fatalf("home should clear the stack, got %s depth %d", m.nav.Current(), m.nav.Depth())
	}
}

func TestQuitFromFormScreen(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, "3")
	if m.form == nil {
		t.Fatal("generate-key should show a form")
	}
	next, cmd := m.Update(keyMsg("ctrl+c"))
	m = next.(modelUI)
	if !m.nav.Done() {
		t.Fatal("ctrl+c should quit regardless of depth")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.Quit")
	}
}

func TestUnrecognizedKeyKeepsScreen(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, "z")
	if m.nav.Current() != nav.Home {
		t.Fatalf("unexpected screen %s", m.nav.Current())
	}
	if !strings.Contains(m.status, "unrecognized") {
		t.Fatalf("status should report the key, got %q", m.status)
	}
}

func TestBusyIgnoresProceed(t *testing.T) {
	m, _ := newTestModel(t)
	m.busy = true
	m = press(t, m, "enter")
	if m.nav.Current() != nav.Home {
		t.Fatalf("proceed while busy must be ignored, got %s", m.nav.Current())
	}
}

func TestDeleteKeyRequiresConfirmation(t *testing.T) {
	m, _ := newTestModel(t)
	priv := keystest.WritePair(t, m.keyDir(), "id_ed25519", keystest.Options{})

	m = press(t, m, "4")
	if len(m.pairs) != 1 {
		t.Fatalf("expected one key, got %d", len(m.pairs))
	}
	m = press(t, m, "enter")
	if m.confirm == nil {
		t.Fatal("delete should ask first")
	}
	m = press(t, m, "n")
	if _, err := os.Stat(priv); err != nil {
		t.Fatalf("declined delete removed the key: %v", err)
	}

	m = press(t, m, "enter", "y")
	if _, err := os.Stat(priv); !os.IsNotExist(err) {
		t.Fatalf("confirmed delete left the key: %v", err)
	}
	if len(m.pairs) != 0 {
		t.Fatalf("list should refresh after delete, got %d", len(m.pairs))
	}
	evts, err := events.NewStore().Read(events.Query{Operation: events.OpKeyDelete})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Outcome != events.OutcomeOK {
		t.Fatalf("expected one ok journal entry, got %+v", evts)
	}
}

func TestFixPermissionsAfterConfirm(t *testing.T) {
	m, _ := newTestModel(t)
	priv := keystest.WritePair(t, m.keyDir(), "id_ed25519", keystest.Options{})
	if err := os.Chmod(priv, 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 13; i++ {
		m = press(t, m, "j")
	}
	m = press(t, m, "enter")
	if m.nav.Current() != nav.SecurityCheck {
		t.Fatalf("expected security-check, got %s", m.nav.Current())
	}
	if len(m.audit.Findings) != 1 || m.audit.Findings[0].Kind != model.FindingKeyMode {
		t.Fatalf("expected one key-mode finding, got %+v", m.audit.Findings)
	}
	if !strings.Contains(m.status, "High severity") {
		t.Fatalf("a high finding should point at the fix, got status %q", m.status)
	}

	m = press(t, m, "enter")
	if m.nav.Current() != nav.FixPermissions {
		t.Fatalf("expected fix-permissions, got %s", m.nav.Current())
	}
	st, _ := os.Stat(priv)
	if st.Mode().Perm() != 0o644 {
		t.Fatal("entering fix-permissions must not change anything")
	}

	m = press(t, m, "enter", "y")
	st, _ = os.Stat(priv)
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 after fix, got %#o", st.Mode().Perm())
	}
	if len(m.audit.Findings) != 0 {
		t.Fatalf("audit should be clean after fix, got %+v", m.audit.Findings)
	}
}

func TestWizardZeroKeysForcesGeneration(t *testing.T) {
	m, r := newTestModel(t)
	r.On("ssh-keygen -t", sshclienttest.Response{Effect: func(args []string) {
		for i, a := range args {
			if a == "-f" {
				keystest.WritePair(t, filepath.Dir(args[i+1]), filepath.Base(args[i+1]), keystest.Options{})
			}
		}
	}})

	m = press(t, m, "1")
	if !m.needKey || m.form == nil {
		t.Fatal("zero keys should offer generation")
	}
	s := m.nav.Session()
	if wizard.Reachable(s, wizard.StepProvision) {
		t.Fatal("provisioning reachable without a key")
	}

	fill(m.form, "ed25519", "id_ed25519", "", "", "")
	m = press(t, m, "enter")
	if m.needKey || len(m.usable) != 1 {
		t.Fatalf("expected one usable key after generation, needKey=%v usable=%d", m.needKey, len(m.usable))
	}
	if s.Result(wizard.StepKeys) != model.StepOK {
		t.Fatalf("step 1 should be ok, got %q", s.Result(wizard.StepKeys))
	}

	m = press(t, m, "enter")
	if step, _ := m.nav.Current().Step(); step != wizard.StepProvision {
		t.Fatalf("single key should skip selection, got %s", m.nav.Current())
	}
	if s.Result(wizard.StepSelect) != model.StepSkipped {
		t.Fatalf("selection should be skipped, got %q", s.Result(wizard.StepSelect))
	}
}

func TestWizardCommandsLeaveSessionToUpdate(t *testing.T) {
	m, _ := newTestModel(t)
	keystest.WritePair(t, m.keyDir(), "id_ed25519", keystest.Options{})
	next, cmd := m.Update(keyMsg("1"))
	m = next.(modelUI)
	if cmd == nil {
		t.Fatal("entering the wizard should start the key check")
	}
	s := m.nav.Session()

	done := make(chan tea.Msg)
	go func() { done <- cmd() }()
	for i := 0; i < 50; i++ {
		_ = m.View()
	}
	msg := <-done
	if got := s.Result(wizard.StepKeys); got != model.StepPending {
		t.Fatalf("the key check must not write the session off the update loop, got %q", got)
	}

	m = drain(t, m, func() tea.Msg { return msg })
	if got := s.Result(wizard.StepKeys); got != model.StepOK {
		t.Fatalf("step 1 should be recorded on update, got %q", got)
	}
	if len(m.usable) != 1 {
		t.Fatalf("expected one usable key, got %d", len(m.usable))
	}
}

func TestWizardSelectStartsOnPreferredKey(t *testing.T) {
	m, _ := newTestModel(t)
	keystest.WritePair(t, m.keyDir(), "a_rsa", keystest.Options{Type: "rsa", Bits: 3072})
	keystest.WritePair(t, m.keyDir(), "id_ed25519", keystest.Options{})
	m = press(t, m, "1", "enter")
	if step, _ := m.nav.Current().Step(); step != wizard.StepSelect {
		t.Fatalf("two keys should ask for a selection, got %s", m.nav.Current())
	}
	if m.usable[m.sel].Name != "id_ed25519" {
		t.Fatalf("cursor should start on the ed25519 key, got %s", m.usable[m.sel].Name)
	}
}

func TestRestoreWithoutBackupsWarns(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < 12; i++ {
		m = press(t, m, "j")
	}
	m = press(t, m, "enter")
	if m.nav.Current() != nav.Restore {
		t.Fatalf("expected restore, got %s", m.nav.Current())
	}
	if !m.warn || !strings.Contains(m.status, "no backups") {
		t.Fatalf("empty backup set should warn, got warn=%v status=%q", m.warn, m.status)
	}
	m = press(t, m, "enter")
	if m.confirm != nil || !m.warn {
		t.Fatal("proceeding without backups should only warn")
	}
}

func TestWizardProvisionRetryThenPersist(t *testing.T) {
	m, _ := newTestModel(t)
	keystest.WritePair(t, m.keyDir(), "id_ed25519", keystest.Options{})
	m = press(t, m, "1", "enter")
	if step, _ := m.nav.Current().Step(); step != wizard.StepProvision {
		t.Fatalf("expected step 3, got %s", m.nav.Current())
	}

	s := m.nav.Session()
	if err := wizard.SetTarget(s, "deploy@10.0.0.5"); err != nil {
		t.Fatal(err)
	}
	m = drain(t, m, func() tea.Msg { return wizardMsg{step: wizard.StepProvision, err: errors.New("exit status 1")} })
	if step, _ := m.nav.Current().Step(); step != wizard.StepProvision || !m.failed {
		t.Fatalf("failed copy should stay on step 3 with an error, got %s failed=%v", m.nav.Current(), m.failed)
	}
	if s.Result(wizard.StepProvision) != model.StepFailed {
		t.Fatalf("step 3 should be failed, got %q", s.Result(wizard.StepProvision))
	}

	m = drain(t, m, func() tea.Msg { return wizardMsg{step: wizard.StepProvision} })
	if step, _ := m.nav.Current().Step(); step != wizard.StepVerify {
		t.Fatalf("expected step 4, got %s", m.nav.Current())
	}

	m = press(t, m, "enter")
	if step, _ := m.nav.Current().Step(); step != wizard.StepPersist {
		t.Fatalf("expected step 5 after verification, got %s (%s)", m.nav.Current(), m.status)
	}
	if m.form == nil || m.form.value(0) != "10-0-0-5" {
		t.Fatal("alias should default to the suggested name")
	}

	m = press(t, m, "enter")
	if m.confirm == nil {
		t.Fatal("persisting should ask first")
	}
	m = press(t, m, "y")
	data, err := os.ReadFile(m.svc.Hosts.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Host 10-0-0-5") || !strings.Contains(string(data), "IdentitiesOnly yes") {
		t.Fatalf("unexpected config:\n%s", data)
	}

	m = press(t, m, "enter")
	if m.nav.Current() != nav.Home {
		t.Fatalf("finishing should return home, got %s", m.nav.Current())
	}
}

func TestTestConnectionUsesAlias(t *testing.T) {
	m, r := newTestModel(t)
	if err := m.svc.Hosts.Add(model.HostEntry{Alias: "prod", HostName: "10.0.0.5"}); err != nil {
		t.Fatal(err)
	}
	r.On("ssh -o BatchMode=yes", sshclienttest.Response{
		Result: sshclient.Result{ExitCode: 255, Stderr: []byte("Permission denied (publickey).")},
	})

	for i := 0; i < 10; i++ {
		m = press(t, m, "j")
	}
	m = press(t, m, "enter")
	if m.nav.Current() != nav.TestConnection || len(m.doc.Hosts) != 1 {
		t.Fatalf("expected test-connection with one host, got %s %d", m.nav.Current(), len(m.doc.Hosts))
	}
	m = press(t, m, "enter")
	last := r.Last()
	if last.Name != "ssh" || last.Args[len(last.Args)-2] != "prod" {
		t.Fatalf("probe should target the alias, got %s", last)
	}
	if !m.failed || !strings.Contains(m.status, "permission denied") {
		t.Fatalf("expected classified failure, got %q", m.status)
	}
}
