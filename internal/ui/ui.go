// Package ui is the interactive sshkit session: a Bubble Tea program driven
// by the navigation engine. Entering a screen only reads state; every change
// runs from an explicit Proceed, and destructive ones only after a y/n prompt.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/sshkit/internal/agent"
	"github.com/treykane/sshkit/internal/app"
	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/backup"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/nav"
	"github.com/treykane/sshkit/internal/security"
	"github.com/treykane/sshkit/internal/sshclient"
)

type modelUI struct {
	svc *app.Services
	ctx context.Context
	nav *nav.Engine

	width  int
	height int
	status string
	warn   bool
	failed bool
	busy   bool

	// Screen state, reset by enter.
	sel      int
	pairs    []model.KeyPair
	warnings []string
	doc      config.ParseResult
	lintErr  error
	archives []model.BackupArchive
	agentSt  agent.Status
	audit    security.Report
	lines    []string
	picked   *model.KeyPair
	form     *form
	confirm  *prompt

	// Wizard state that survives moving between steps.
	usable  []model.KeyPair
	needKey bool
}

// prompt is a pending y/n question. no may be nil, in which case Deny just
// dismisses the prompt.
type prompt struct {
	question string
	yes      func(m *modelUI) tea.Cmd
	no       func(m *modelUI) tea.Cmd
}

type keysMsg struct {
	pairs    []model.KeyPair
	warnings []string
	err      error
}

type hostsMsg struct {
	doc     config.ParseResult
	lintErr error
	err     error
}

type archivesMsg struct {
	archives []model.BackupArchive
	err      error
}

type agentMsg struct {
	status agent.Status
	pairs  []model.KeyPair
}

type auditMsg struct {
	report security.Report
	pairs  []model.KeyPair
	err    error
}

// opMsg reports the end of a mutating operation.
type opMsg struct {
	text  string
	lines []string
	err   error
}

// wizardMsg reports the end of a wizard step action. Commands leave the
// session alone; wizardResult records err. For the copy step err is the raw
// exit error of the attached command.
type wizardMsg struct {
	step   int
	usable []model.KeyPair
	err    error
}

func newModel(ctx context.Context, svc *app.Services) modelUI {
	return modelUI{
		svc:    svc,
		ctx:    ctx,
		nav:    nav.New(),
		status: "Ready. Pick an entry with j/k and Enter, or press a number.",
	}
}

func (m modelUI) Init() tea.Cmd {
	return nil
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case keysMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.pairs, m.warnings = msg.pairs, msg.warnings
		m.clampSel(len(m.listPairs()))
	case hostsMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.doc, m.lintErr = msg.doc, msg.lintErr
		m.warnings = msg.doc.Warnings
		m.clampSel(len(m.doc.Hosts))
	case archivesMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.archives = msg.archives
		m.clampSel(len(m.archives))
		if len(m.archives) == 0 && m.nav.Current() == nav.Restore {
			m.setError(backup.ErrNoBackups)
		}
	case agentMsg:
		m.busy = false
		m.agentSt = msg.status
		m.pairs = msg.pairs
		m.clampSel(len(m.pairs))
	case auditMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.audit, m.pairs = msg.report, msg.pairs
		if m.audit.HasHigh() && m.nav.Current() == nav.SecurityCheck {
			m.setStatus("High severity findings. Press Enter to fix permissions.")
		}
	case opMsg:
		m.busy = false
		if msg.err != nil {
			m.lines = msg.lines
			m.setError(msg.err)
			return m, nil
		}
		cmd := m.enter()
		m.lines = msg.lines
		m.setStatus(msg.text)
		return m, cmd
	case wizardMsg:
		return m.wizardResult(msg)
	}
	return m, nil
}

func (m modelUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	typing := m.form != nil && m.confirm == nil
	a, err := nav.ParseKey(msg.String(), typing)
	if err != nil {
		m.setStatus(err.Error() + "; see Help on the home menu")
		return m, nil
	}
	if a.Kind == nav.Quit {
		m.nav.Quit()
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	if m.confirm != nil {
		return m.answer(a)
	}
	switch a.Kind {
	case nav.Back, nav.GoHome:
		m.nav.Apply(a)
		return m, m.enter()
	case nav.Input:
		return m, m.form.input(msg)
	}
	if m.form != nil {
		switch a.Kind {
		case nav.Up:
			return m, m.form.prev()
		case nav.Down, nav.Next:
			return m, m.form.next()
		case nav.Proceed:
			if !m.form.onLast() {
				return m, m.form.next()
			}
		}
	}
	return m.act(a)
}

// answer resolves a pending y/n prompt. Anything but Confirm or Deny keeps it
// open, except Back which dismisses it.
func (m modelUI) answer(a nav.Action) (tea.Model, tea.Cmd) {
	p := m.confirm
	switch a.Kind {
	case nav.Confirm:
		m.confirm = nil
		return m, p.yes(&m)
	case nav.Deny, nav.Back:
		m.confirm = nil
		if p.no != nil && a.Kind == nav.Deny {
			return m, p.no(&m)
		}
		m.setStatus("Cancelled.")
	}
	return m, nil
}

func (m *modelUI) ask(question string, yes func(m *modelUI) tea.Cmd) {
	m.confirm = &prompt{question: question, yes: yes}
}

// act dispatches a screen-specific action.
func (m modelUI) act(a nav.Action) (tea.Model, tea.Cmd) {
	cur := m.nav.Current()
	if step, ok := cur.Step(); ok {
		return m.actWizard(step, a)
	}
	switch cur {
	case nav.Home:
		return m.actHome(a)
	case nav.ListKeys:
		return m.actListKeys(a)
	case nav.GenerateKey:
		return m.actGenerate(a)
	case nav.DeleteKey:
		return m.actDeleteKey(a)
	case nav.ChangePassphrase:
		return m.actPassphrase(a)
	case nav.CopyKey:
		return m.actCopyKey(a)
	case nav.AgentStatus:
		return m.actAgent(a)
	case nav.AddHost:
		return m.actAddHost(a)
	case nav.RemoveHost:
		return m.actRemoveHost(a)
	case nav.TestConnection:
		return m.actTestConnection(a)
	case nav.Backup:
		return m.actBackup(a)
	case nav.Restore:
		return m.actRestore(a)
	case nav.SecurityCheck:
		if a.Kind == nav.Proceed {
			m.nav.Push(nav.FixPermissions)
			return m, m.enter()
		}
	case nav.FixPermissions:
		return m.actFixPermissions(a)
	}
	return m, nil
}

// enter resets screen state for the current screen and starts its read-only
// load.
func (m *modelUI) enter() tea.Cmd {
	m.sel = 0
	m.lines = nil
	m.picked = nil
	m.form = nil
	m.confirm = nil
	m.pairs = nil
	m.warnings = nil
	m.doc = config.ParseResult{}
	m.lintErr = nil
	m.archives = nil

	cur := m.nav.Current()
	if step, ok := cur.Step(); ok {
		return m.enterWizard(step)
	}
	switch cur {
	case nav.ListKeys, nav.DeleteKey, nav.ChangePassphrase, nav.CopyKey:
		return m.scanKeys()
	case nav.GenerateKey:
		m.form = generateForm(m.svc.Config.DefaultKeyType, false)
	case nav.AgentStatus:
		return m.loadAgent()
	case nav.ShowConfig, nav.RemoveHost, nav.TestConnection:
		return m.loadHosts(cur == nav.TestConnection)
	case nav.AddHost:
		m.form = hostForm()
	case nav.Backup, nav.Restore:
		return m.loadArchives()
	case nav.SecurityCheck, nav.FixPermissions:
		return m.loadAudit()
	}
	return nil
}

// move applies Up/Down/Select to the list selection. It reports whether the
// action was a movement.
func (m *modelUI) move(a nav.Action, n int) bool {
	switch a.Kind {
	case nav.Up:
		if m.sel > 0 {
			m.sel--
		}
	case nav.Down:
		if m.sel < n-1 {
			m.sel++
		}
	case nav.Select:
		if a.N <= n {
			m.sel = a.N - 1
		}
	default:
		return false
	}
	return true
}

func (m *modelUI) clampSel(n int) {
	if m.sel >= n {
		m.sel = n - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func (m *modelUI) setStatus(s string) {
	m.status = s
	m.warn = false
	m.failed = false
}

// setError shows err. Constraint and missing-prerequisite errors are
// warnings; everything else is logged with its debug detail.
func (m *modelUI) setError(err error) {
	m.status = apperr.UserMessage(err, true)
	if apperr.IsWarning(err) {
		m.warn, m.failed = true, false
		return
	}
	m.warn, m.failed = false, true
	slog.Warn("operation failed", "screen", m.nav.Current(), "error", apperr.DebugMessage(err))
}

// startOp marks the session busy and runs fn off the event loop, journaling
// its outcome.
func (m *modelUI) startOp(op, subject, okText string, fn func(ctx context.Context) ([]string, error)) tea.Cmd {
	m.busy = true
	m.setStatus("Working...")
	ctx, journal := m.ctx, m.svc.Journal
	return func() tea.Msg {
		lines, err := fn(ctx)
		journal.Record(op, subject, err)
		if err == nil {
			slog.Info("operation done", "op", op, "subject", subject)
		}
		return opMsg{text: okText, lines: lines, err: err}
	}
}

func (m modelUI) View() string {
	cur := m.nav.Current()
	width := m.effectiveWidth()

	head := lipgloss.NewStyle().Bold(true).Foreground(accentMain).Render("sshkit")
	var trail []string
	for _, s := range m.nav.Stack() {
		trail = append(trail, s.Title())
	}
	trail = append(trail, cur.Title())
	subhead := strings.Join(trail, " > ")

	parts := []string{head, subhead, m.renderPanel(cur.Title(), m.body(), width, accentMain)}
	if len(m.lines) > 0 {
		parts = append(parts, m.renderPanel("Result", strings.Join(m.lines, "\n"), width, accentDetail))
	}
	if m.confirm != nil {
		parts = append(parts, m.renderPanel("Confirm", m.confirm.question+"\n\ny to confirm, n to cancel", width, accentConfirm))
	}
	statusAccent := accentStatus
	switch {
	case m.failed:
		statusAccent = accentConfirm
	case m.warn:
		statusAccent = accentWarn
	}
	status := m.status
	if m.busy {
		status = "Working..."
	}
	parts = append(parts, m.renderPanel("Status", status, width, statusAccent))
	parts = append(parts, "Keys: Enter proceed | Esc/b back | h home | q quit")
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m modelUI) body() string {
	cur := m.nav.Current()
	if step, ok := cur.Step(); ok {
		return m.wizardBody(step)
	}
	switch cur {
	case nav.Home:
		items := make([]string, 0, len(nav.Menu))
		for _, it := range nav.Menu {
			items = append(items, it.Label)
		}
		return cursorList(items, m.sel, "") + "\nEnter opens the selected entry."
	case nav.ListKeys:
		return m.keysBody("Enter copies the selected public key to the clipboard.")
	case nav.DeleteKey:
		return m.keysBody("Enter deletes the selected key pair after confirmation.")
	case nav.ChangePassphrase, nav.CopyKey:
		if m.form != nil && m.picked != nil {
			return "Key: " + m.picked.Label() + "\n\n" + m.form.view()
		}
		return m.keysBody("Enter picks the selected key.")
	case nav.GenerateKey, nav.AddHost:
		if m.form != nil {
			return m.form.view()
		}
	case nav.AgentStatus:
		return m.agentBody()
	case nav.ShowConfig:
		return m.configBody()
	case nav.RemoveHost:
		return cursorList(hostRows(m.doc.Hosts), m.sel, "(no hosts in ssh config)") + "\nEnter removes the selected host after confirmation."
	case nav.TestConnection:
		return cursorList(hostRows(m.doc.Hosts), m.sel, "(no hosts in ssh config)") + "\nEnter runs a non-interactive login test. Recently used hosts come first."
	case nav.Backup:
		return m.archivesBody("Enter writes a new backup of " + m.svc.Config.SSHDir + ".")
	case nav.Restore:
		return m.archivesBody("Enter restores the selected backup after confirmation. The current state is backed up first.")
	case nav.SecurityCheck:
		return findingRows(m.audit.Findings) + "\nEnter opens Fix permissions."
	case nav.FixPermissions:
		return findingRows(m.audit.Findings) + "\nEnter applies 0700 to the directory, 0600 to private keys and config, 0644 to public keys."
	case nav.Help:
		return helpBlock()
	}
	return ""
}

func (m modelUI) keysBody(hint string) string {
	var b strings.Builder
	b.WriteString(cursorList(keyRows(m.listPairs()), m.sel, "(no keys found in "+m.svc.Config.SSHDir+")"))
	for _, w := range m.warnings {
		b.WriteString("  warning: " + w + "\n")
	}
	b.WriteString("\n" + hint)
	return b.String()
}

// listPairs returns the pairs the current screen lets the user pick from.
func (m modelUI) listPairs() []model.KeyPair {
	switch m.nav.Current() {
	case nav.ListKeys, nav.DeleteKey:
		return m.pairs
	}
	return usablePairs(m.pairs)
}

func (m modelUI) archivesBody(hint string) string {
	rows := make([]string, 0, len(m.archives))
	for _, a := range m.archives {
		rows = append(rows, fmt.Sprintf("%s  %s", a.CapturedAt.Format("2006-01-02 15:04:05"), a.Path))
	}
	return cursorList(rows, m.sel, "(no backups yet)") + "\n" + hint
}

func helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move, 1-9 pick an entry, Enter proceeds.",
		"  Back: Esc, b or Backspace returns to the previous screen.",
		"  Home: h (or the Home key) jumps to the home menu from any depth.",
		"  Forms: Tab/Shift-Tab move between fields, Enter submits on the last field.",
		"  Prompts: y confirms, n cancels. Deleting keys, removing hosts,",
		"  restoring backups, clearing the agent and fixing permissions always ask.",
		"  Quit: q or Ctrl+C from anywhere.",
		"",
		"  Passwordless setup walks through: key, selection, copy to server,",
		"  key-only login test and saving a Host block to the ssh config.",
	}, "\n")
}

// Run starts the interactive session.
func Run(ctx context.Context, svc *app.Services) error {
	if err := sshclient.NewWithRunner(svc.Runner).EnsureBinary("ssh"); err != nil {
		return err
	}
	p := tea.NewProgram(newModel(ctx, svc), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
