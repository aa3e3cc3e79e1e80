package ui

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/treykane/sshkit/internal/agent"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/backup"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/events"
	"github.com/treykane/sshkit/internal/history"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/nav"
	"github.com/treykane/sshkit/internal/security"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/util"
)

// Field indices of the generate-key form.
const (
	genType = iota
	genName
	genComment
	genPass
	genPassAgain
)

// Field indices of the add-host form.
const (
	hostAlias = iota
	hostHostName
	hostUser
	hostPort
	hostIdentity
	hostIdentitiesOnly
)

func generateForm(defaultType string, first bool) *form {
	name := ""
	if first {
		name = "id_" + defaultType
	}
	return newForm(
		fieldSpec{label: "Type", placeholder: "ed25519 | rsa | ecdsa", value: defaultType, limit: 16},
		fieldSpec{label: "File name", placeholder: "id_<type> (default)", value: name, limit: 64},
		fieldSpec{label: "Comment", placeholder: "user@host (optional)", limit: 128},
		fieldSpec{label: "Passphrase", placeholder: "empty for none", secret: true},
		fieldSpec{label: "Repeat passphrase", secret: true},
	)
}

// generateRequest validates the generate form against dir.
func generateRequest(f *form, dir string) (keys.GenerateRequest, error) {
	alg, err := model.ParseAlgorithm(f.value(genType))
	if err != nil {
		return keys.GenerateRequest{}, apperr.Wrap(err, apperr.KindConstraint, err.Error())
	}
	if f.raw(genPass) != f.raw(genPassAgain) {
		return keys.GenerateRequest{}, apperr.New(apperr.KindConstraint, "passphrases do not match")
	}
	path := keys.DefaultKeyPath(dir, alg)
	if name := f.value(genName); name != "" {
		if strings.ContainsAny(name, `/\`) || strings.HasSuffix(name, ".pub") {
			return keys.GenerateRequest{}, apperr.New(apperr.KindConstraint, "file name must be a plain name without .pub")
		}
		path = filepath.Join(dir, name)
	}
	return keys.GenerateRequest{
		Algorithm:  alg,
		Path:       path,
		Comment:    f.value(genComment),
		Passphrase: f.raw(genPass),
	}, nil
}

func hostForm() *form {
	return newForm(
		fieldSpec{label: "Alias", placeholder: "my-server (required)", limit: 64},
		fieldSpec{label: "HostName", placeholder: "192.168.1.1 or example.com (required)"},
		fieldSpec{label: "User", placeholder: "deploy (optional)", limit: 64},
		fieldSpec{label: "Port", placeholder: "22 (default)", limit: 5},
		fieldSpec{label: "IdentityFile", placeholder: "~/.ssh/id_ed25519 (optional)"},
		fieldSpec{label: "IdentitiesOnly", placeholder: "yes | no", value: "no", limit: 3},
	)
}

// hostEntry validates the add-host form.
func hostEntry(f *form) (model.HostEntry, error) {
	h := model.HostEntry{
		Alias:        f.value(hostAlias),
		HostName:     f.value(hostHostName),
		User:         f.value(hostUser),
		IdentityFile: f.value(hostIdentity),
	}
	if err := config.ValidateAlias(h.Alias); err != nil {
		return model.HostEntry{}, err
	}
	if h.HostName == "" {
		return model.HostEntry{}, apperr.New(apperr.KindConstraint, "hostname is required")
	}
	port, err := util.ParsePort(f.value(hostPort), model.DefaultPort)
	if err != nil {
		return model.HostEntry{}, apperr.Wrap(err, apperr.KindConstraint, "port must be 1-65535")
	}
	h.Port = port
	switch strings.ToLower(f.value(hostIdentitiesOnly)) {
	case "yes", "y":
		h.IdentitiesOnly = true
	case "", "no", "n":
	default:
		return model.HostEntry{}, apperr.New(apperr.KindConstraint, "IdentitiesOnly must be yes or no")
	}
	return h, nil
}

func passphraseForm() *form {
	return newForm(
		fieldSpec{label: "Current passphrase", placeholder: "empty if none", secret: true},
		fieldSpec{label: "New passphrase", placeholder: "empty to remove", secret: true},
		fieldSpec{label: "Repeat new", secret: true},
	)
}

func targetForm(value string) *form {
	return newForm(fieldSpec{label: "Destination", placeholder: "user@hostname:port", value: value})
}

// recentTarget returns the last provisioned target as a form default.
func recentTarget() string {
	recent, err := history.RecentTargets(1)
	if err != nil || len(recent) == 0 {
		return ""
	}
	return recent[0].String()
}

func usablePairs(pairs []model.KeyPair) []model.KeyPair {
	return keys.Usable(pairs)
}

// Loads. Each one is a read; results arrive as messages.

func (m *modelUI) scanKeys() tea.Cmd {
	m.busy = true
	inv, ctx := m.svc.Keys, m.ctx
	return func() tea.Msg {
		pairs, warnings, err := inv.Scan(ctx)
		return keysMsg{pairs: pairs, warnings: warnings, err: err}
	}
}

func (m *modelUI) loadHosts(recentFirst bool) tea.Cmd {
	m.busy = true
	store := m.svc.Hosts
	return func() tea.Msg {
		doc, err := store.Load()
		if err != nil {
			return hostsMsg{err: err}
		}
		msg := hostsMsg{doc: doc}
		if data, rerr := os.ReadFile(store.Path); rerr == nil {
			msg.lintErr = config.Lint(string(data))
		}
		if recentFirst {
			if lastUsed, herr := history.LastUsed(); herr == nil {
				msg.doc.Hosts = history.SortHostsRecent(doc.Hosts, lastUsed)
			}
		}
		return msg
	}
}

func (m *modelUI) loadArchives() tea.Cmd {
	m.busy = true
	mgr := m.svc.Backups
	return func() tea.Msg {
		list, err := mgr.List()
		return archivesMsg{archives: list, err: err}
	}
}

func (m *modelUI) loadAgent() tea.Cmd {
	m.busy = true
	ctrl, inv, ctx := m.svc.Agent, m.svc.Keys, m.ctx
	return func() tea.Msg {
		st := ctrl.Status(ctx)
		pairs, _, _ := inv.Scan(ctx)
		return agentMsg{status: st, pairs: keys.Usable(pairs)}
	}
}

func (m *modelUI) loadAudit() tea.Cmd {
	m.busy = true
	inv, ctx := m.svc.Keys, m.ctx
	dir, cfgPath := m.svc.Config.ResolvedSSHDir(), m.svc.Config.SSHConfigPath()
	return func() tea.Msg {
		pairs, _, err := inv.Scan(ctx)
		if err != nil {
			return auditMsg{err: err}
		}
		return auditMsg{report: security.Audit(dir, cfgPath, pairs), pairs: pairs}
	}
}

// Screen actions.

func (m modelUI) actHome(a nav.Action) (tea.Model, tea.Cmd) {
	switch a.Kind {
	case nav.Up, nav.Down:
		m.move(a, len(nav.Menu))
		return m, nil
	case nav.Select:
		if a.N > len(nav.Menu) {
			return m, nil
		}
		m.sel = a.N - 1
	case nav.Proceed:
	default:
		return m, nil
	}
	item := nav.Menu[m.sel]
	if _, ok := item.Screen.Step(); ok {
		m.nav.StartWizard()
		m.usable, m.needKey = nil, false
	} else {
		m.nav.Push(item.Screen)
	}
	return m, m.enter()
}

func (m modelUI) actListKeys(a nav.Action) (tea.Model, tea.Cmd) {
	if m.move(a, len(m.pairs)) || a.Kind != nav.Proceed || len(m.pairs) == 0 {
		return m, nil
	}
	pair := m.pairs[m.sel]
	pub, err := keys.ReadPublicKey(pair.PublicKeyPath)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	if err := clipboard.WriteAll(pub); err != nil {
		m.lines = []string{pub}
		m.setError(apperr.Wrap(err, apperr.KindMissing, "clipboard unavailable; the key is shown below"))
		return m, nil
	}
	m.setStatus("Copied " + filepath.Base(pair.PublicKeyPath) + " to the clipboard.")
	return m, nil
}

func (m modelUI) actGenerate(a nav.Action) (tea.Model, tea.Cmd) {
	if a.Kind != nav.Proceed {
		return m, nil
	}
	req, err := generateRequest(m.form, m.svc.Config.ResolvedSSHDir())
	if err != nil {
		m.form.fail(err)
		return m, nil
	}
	gen := m.svc.Keygen
	return m, m.startOp(events.OpKeyGenerate, req.Path, "Generated "+filepath.Base(req.Path)+".",
		func(ctx context.Context) ([]string, error) {
			if err := gen.Generate(ctx, req); err != nil {
				return nil, err
			}
			return []string{"private: " + req.Path, "public:  " + req.Path + ".pub"}, nil
		})
}

func (m modelUI) actDeleteKey(a nav.Action) (tea.Model, tea.Cmd) {
	if m.move(a, len(m.pairs)) || a.Kind != nav.Proceed || len(m.pairs) == 0 {
		return m, nil
	}
	pair := m.pairs[m.sel]
	m.ask(fmt.Sprintf("Delete %s and %s?", pair.Name, filepath.Base(pair.PublicKeyPath)), func(m *modelUI) tea.Cmd {
		return m.startOp(events.OpKeyDelete, pair.Name, "Deleted "+pair.Name+".",
			func(context.Context) ([]string, error) { return nil, keys.Delete(pair) })
	})
	return m, nil
}

func (m modelUI) actPassphrase(a nav.Action) (tea.Model, tea.Cmd) {
	usable := m.listPairs()
	if m.picked == nil {
		if m.move(a, len(usable)) || a.Kind != nav.Proceed || len(usable) == 0 {
			return m, nil
		}
		pair := usable[m.sel]
		m.picked = &pair
		m.form = passphraseForm()
		return m, nil
	}
	if a.Kind != nav.Proceed {
		return m, nil
	}
	if m.form.raw(1) != m.form.raw(2) {
		m.form.fail(fmt.Errorf("new passphrases do not match"))
		return m, nil
	}
	pair, oldPass, newPass := *m.picked, m.form.raw(0), m.form.raw(1)
	gen := m.svc.Keygen
	return m, m.startOp(events.OpKeyPassphrase, pair.Name, "Passphrase of "+pair.Name+" changed.",
		func(ctx context.Context) ([]string, error) {
			return nil, gen.ChangePassphrase(ctx, pair.PrivateKeyPath, oldPass, newPass)
		})
}

func (m modelUI) actCopyKey(a nav.Action) (tea.Model, tea.Cmd) {
	usable := m.listPairs()
	if m.picked == nil {
		if m.move(a, len(usable)) || a.Kind != nav.Proceed || len(usable) == 0 {
			return m, nil
		}
		pair := usable[m.sel]
		m.picked = &pair
		m.form = targetForm(recentTarget())
		return m, nil
	}
	if a.Kind != nav.Proceed {
		return m, nil
	}
	target, err := model.ParseTarget(m.form.value(0))
	if err != nil {
		m.form.fail(err)
		return m, nil
	}
	cmd, err := m.svc.Copier.CopyCommand(target, m.picked.PublicKeyPath)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	m.busy = true
	journal := m.svc.Journal
	return m, tea.ExecProcess(cmd, func(runErr error) tea.Msg {
		err := sshclient.CopyFailure(target, "", runErr)
		journal.Record(events.OpKeyCopy, target.String(), err)
		if err == nil {
			_ = history.TouchTarget(target)
		}
		return opMsg{text: "Key installed on " + target.String() + ".", err: err}
	})
}

func (m modelUI) agentBody() string {
	var b strings.Builder
	b.WriteString("Agent: " + m.agentSt.State.Label() + "\n")
	if m.agentSt.Detail != "" {
		b.WriteString("  " + m.agentSt.Detail + "\n")
	}
	b.WriteString("\nLoaded identities:\n")
	if len(m.agentSt.Keys) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, k := range m.agentSt.Keys {
		b.WriteString(fmt.Sprintf("  %4d %s %s (%s)\n", k.Bits, k.Fingerprint, util.EmptyDash(k.Comment), k.Type))
	}
	b.WriteString("\nLocal keys:\n")
	b.WriteString(cursorList(keyRows(m.pairs), m.sel, "(no usable keys)"))
	b.WriteString("\nEnter adds or removes the selected key. Tab clears the agent.")
	return b.String()
}

func (m modelUI) actAgent(a nav.Action) (tea.Model, tea.Cmd) {
	if m.move(a, len(m.pairs)) {
		return m, nil
	}
	ctrl := m.svc.Agent
	switch a.Kind {
	case nav.Next:
		m.ask("Remove all identities from the agent?", func(m *modelUI) tea.Cmd {
			return m.startOp(events.OpAgentRemoveAll, "", "Agent cleared.",
				func(ctx context.Context) ([]string, error) { return nil, ctrl.RemoveAll(ctx) })
		})
		return m, nil
	case nav.Proceed:
	default:
		return m, nil
	}
	if len(m.pairs) == 0 {
		return m, nil
	}
	pair := m.pairs[m.sel]
	if pair.LoadedInAgent {
		return m, m.startOp(events.OpAgentRemove, pair.Name, "Removed "+pair.Name+" from the agent.",
			func(ctx context.Context) ([]string, error) { return nil, ctrl.Remove(ctx, pair.PrivateKeyPath) })
	}
	if pair.HasPassphrase && m.svc.Config.Agent.Backend != appconfig.AgentBackendSocket {
		// ssh-add asks for the passphrase on the terminal.
		m.busy = true
		journal := m.svc.Journal
		return m, tea.ExecProcess(exec.Command("ssh-add", pair.PrivateKeyPath), func(runErr error) tea.Msg {
			var err error
			if runErr != nil {
				err = fmt.Errorf("%w: %v", agent.ErrAgentAdd, runErr)
			}
			journal.Record(events.OpAgentAdd, pair.Name, err)
			return opMsg{text: "Added " + pair.Name + " to the agent.", err: err}
		})
	}
	return m, m.startOp(events.OpAgentAdd, pair.Name, "Added "+pair.Name+" to the agent.",
		func(ctx context.Context) ([]string, error) { return nil, ctrl.Add(ctx, pair.PrivateKeyPath) })
}

func (m modelUI) configBody() string {
	var b strings.Builder
	b.WriteString("File: " + util.CollapseHome(m.svc.Hosts.Path) + "\n\n")
	text := config.Serialize(m.doc)
	if text == "" {
		text = "(empty)\n"
	}
	b.WriteString(text)
	for _, w := range m.warnings {
		b.WriteString("\nwarning: " + w)
	}
	if m.lintErr != nil {
		b.WriteString("\nlint: " + m.lintErr.Error())
	}
	return b.String()
}

func (m modelUI) actAddHost(a nav.Action) (tea.Model, tea.Cmd) {
	if a.Kind != nav.Proceed {
		return m, nil
	}
	h, err := hostEntry(m.form)
	if err != nil {
		m.form.fail(err)
		return m, nil
	}
	store := m.svc.Hosts
	return m, m.startOp(events.OpHostAdd, h.Alias, "Added Host "+h.Alias+".",
		func(context.Context) ([]string, error) {
			if err := store.Add(h); err != nil {
				return nil, err
			}
			return strings.Split(strings.TrimSuffix(config.FormatHostBlock(h), "\n"), "\n"), nil
		})
}

func (m modelUI) actRemoveHost(a nav.Action) (tea.Model, tea.Cmd) {
	hosts := m.doc.Hosts
	if m.move(a, len(hosts)) || a.Kind != nav.Proceed || len(hosts) == 0 {
		return m, nil
	}
	alias := hosts[m.sel].Alias
	store := m.svc.Hosts
	m.ask("Remove Host "+alias+" from the ssh config?", func(m *modelUI) tea.Cmd {
		return m.startOp(events.OpHostRemove, alias, "Removed Host "+alias+".",
			func(context.Context) ([]string, error) { return nil, store.Remove(alias) })
	})
	return m, nil
}

func (m modelUI) actTestConnection(a nav.Action) (tea.Model, tea.Cmd) {
	hosts := m.doc.Hosts
	if m.move(a, len(hosts)) || a.Kind != nav.Proceed || len(hosts) == 0 {
		return m, nil
	}
	alias := hosts[m.sel].Alias
	prober := m.svc.Prober
	// The alias lets ssh apply the Host block, including its IdentityFile.
	return m, m.startOp(events.OpConnectionTest, alias, "Key-only login to "+alias+" works.",
		func(ctx context.Context) ([]string, error) {
			if err := prober.Probe(ctx, model.Target{Host: alias}, ""); err != nil {
				return nil, err
			}
			_ = history.Touch(alias)
			return nil, nil
		})
}

func (m modelUI) actBackup(a nav.Action) (tea.Model, tea.Cmd) {
	if m.move(a, len(m.archives)) || a.Kind != nav.Proceed {
		return m, nil
	}
	mgr := m.svc.Backups
	return m, m.startOp(events.OpBackup, mgr.Dir, "Backup written.",
		func(context.Context) ([]string, error) {
			archive, err := mgr.Backup()
			if err != nil {
				return nil, err
			}
			return []string{archive.Path}, nil
		})
}

func (m modelUI) actRestore(a nav.Action) (tea.Model, tea.Cmd) {
	if m.move(a, len(m.archives)) || a.Kind != nav.Proceed {
		return m, nil
	}
	if len(m.archives) == 0 {
		m.setError(backup.ErrNoBackups)
		return m, nil
	}
	archive := m.archives[m.sel]
	mgr := m.svc.Backups
	m.ask("Restore "+filepath.Base(archive.Path)+" over "+m.svc.Config.SSHDir+"?", func(m *modelUI) tea.Cmd {
		return m.startOp(events.OpRestore, archive.Path, "Restored "+filepath.Base(archive.Path)+".",
			func(context.Context) ([]string, error) {
				safety, err := mgr.Restore(archive)
				if err != nil {
					return nil, err
				}
				if safety.Path == "" {
					return nil, nil
				}
				return []string{"previous state saved to " + safety.Path}, nil
			})
	})
	return m, nil
}

func (m modelUI) actFixPermissions(a nav.Action) (tea.Model, tea.Cmd) {
	if a.Kind != nav.Proceed {
		return m, nil
	}
	dir, cfgPath, pairs := m.svc.Config.ResolvedSSHDir(), m.svc.Config.SSHConfigPath(), m.pairs
	m.ask("Apply the recommended permissions under "+m.svc.Config.SSHDir+"?", func(m *modelUI) tea.Cmd {
		return m.startOp(events.OpFixPermissions, dir, "Permissions fixed.",
			func(context.Context) ([]string, error) {
				changes, err := security.FixPermissions(dir, cfgPath, pairs)
				lines := make([]string, 0, len(changes))
				for _, c := range changes {
					lines = append(lines, fmt.Sprintf("%s: %#o -> %#o", c.Path, c.From, c.To))
				}
				if err == nil && len(lines) == 0 {
					lines = append(lines, "nothing to change")
				}
				return lines, err
			})
	})
	return m, nil
}
