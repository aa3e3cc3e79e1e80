package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/nav"
	"github.com/treykane/sshkit/internal/wizard"
)

func (m *modelUI) enterWizard(step int) tea.Cmd {
	s := m.nav.Session()
	if !wizard.Reachable(s, step) {
		m.setError(wizard.ErrUnreachable)
		return nil
	}
	switch step {
	case wizard.StepKeys:
		m.needKey = false
		m.busy = true
		w, ctx := m.svc.Wizard(), m.ctx
		return func() tea.Msg {
			usable, err := w.ScanUsable(ctx)
			return wizardMsg{step: wizard.StepKeys, usable: usable, err: err}
		}
	case wizard.StepSelect:
		current, ok := keys.PreferredKey(m.usable)
		if s.SelectedKey != nil {
			current, ok = *s.SelectedKey, true
		}
		for i, k := range m.usable {
			if ok && k.Name == current.Name {
				m.sel = i
			}
		}
	case wizard.StepProvision:
		value := recentTarget()
		if s.Target != nil {
			value = s.Target.String()
		}
		m.form = targetForm(value)
	case wizard.StepPersist:
		if s.Result(wizard.StepPersist) == model.StepPending || s.Result(wizard.StepPersist) == model.StepFailed {
			m.form = newForm(fieldSpec{label: "Alias", placeholder: "Host alias", value: wizard.SuggestAlias(*s.Target), limit: 64})
		}
	}
	return nil
}

func (m modelUI) actWizard(step int, a nav.Action) (tea.Model, tea.Cmd) {
	s := m.nav.Session()
	w := m.svc.Wizard()
	switch step {
	case wizard.StepKeys:
		if a.Kind != nav.Proceed {
			return m, nil
		}
		if m.needKey {
			req, err := generateRequest(m.form, m.svc.Config.ResolvedSSHDir())
			if err != nil {
				m.form.fail(err)
				return m, nil
			}
			m.busy = true
			ctx := m.ctx
			return m, func() tea.Msg {
				usable, err := w.GenerateUsable(ctx, req)
				return wizardMsg{step: wizard.StepKeys, usable: usable, err: err}
			}
		}
		if s.Result(wizard.StepKeys) != model.StepOK {
			return m, m.enter()
		}
		if wizard.AutoSelect(s, m.usable) {
			m.nav.Push(nav.WizardStep(wizard.StepProvision))
			cmd := m.enter()
			m.setStatus("Using " + s.SelectedKey.Label() + ", the only usable key.")
			return m, cmd
		}
		m.nav.Push(nav.WizardStep(wizard.StepSelect))
		return m, m.enter()

	case wizard.StepSelect:
		if m.move(a, len(m.usable)) || a.Kind != nav.Proceed || len(m.usable) == 0 {
			return m, nil
		}
		if err := wizard.SelectKey(s, m.usable[m.sel]); err != nil {
			m.setError(err)
			return m, nil
		}
		m.nav.Push(nav.WizardStep(wizard.StepProvision))
		return m, m.enter()

	case wizard.StepProvision:
		if a.Kind != nav.Proceed {
			return m, nil
		}
		if err := wizard.SetTarget(s, m.form.value(0)); err != nil {
			m.form.fail(err)
			return m, nil
		}
		cmd, err := w.ProvisionCommand(s)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.busy = true
		return m, tea.ExecProcess(cmd, func(runErr error) tea.Msg {
			return wizardMsg{step: wizard.StepProvision, err: runErr}
		})

	case wizard.StepVerify:
		if a.Kind != nav.Proceed {
			return m, nil
		}
		if !wizard.Reachable(s, wizard.StepVerify) || s.Target == nil || s.SelectedKey == nil {
			m.setError(wizard.ErrUnreachable)
			return m, nil
		}
		m.busy = true
		ctx, target, key := m.ctx, *s.Target, *s.SelectedKey
		return m, func() tea.Msg {
			return wizardMsg{step: wizard.StepVerify, err: w.Login(ctx, target, key)}
		}

	case wizard.StepPersist:
		if a.Kind != nav.Proceed {
			return m, nil
		}
		if res := s.Result(wizard.StepPersist); res == model.StepOK || res == model.StepSkipped {
			m.nav.GoHome()
			cmd := m.enter()
			m.setStatus("Passwordless setup finished.")
			return m, cmd
		}
		alias := m.form.value(0)
		if alias == "" {
			alias = wizard.SuggestAlias(*s.Target)
		}
		m.confirm = &prompt{
			question: fmt.Sprintf("Save Host %s to the ssh config?", alias),
			yes:      func(m *modelUI) tea.Cmd { return m.persist(w, alias, true) },
			no:       func(m *modelUI) tea.Cmd { return m.persist(w, alias, false) },
		}
	}
	return m, nil
}

// persist finishes step 5. The config write is local, so it runs inline.
func (m *modelUI) persist(w *wizard.Wizard, alias string, confirm bool) tea.Cmd {
	s := m.nav.Session()
	if err := w.Persist(s, alias, confirm); err != nil {
		m.setError(err)
		return nil
	}
	m.form = nil
	m.lines = wizard.Summary(s)
	if confirm {
		m.setStatus("Saved Host " + alias + ". Press Enter to finish.")
	} else {
		m.setStatus("Host block not saved. Press Enter to finish.")
	}
	return nil
}

// wizardResult applies the outcome of a wizard command. The session is only
// written here, on the update goroutine.
func (m modelUI) wizardResult(msg wizardMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	s := m.nav.Session()
	switch msg.step {
	case wizard.StepKeys:
		wizard.RecordKeys(s, msg.err)
		if errors.Is(msg.err, wizard.ErrNoKeys) {
			m.needKey = true
			m.form = generateForm(m.svc.Config.DefaultKeyType, true)
			m.setError(msg.err)
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.needKey = false
		m.form = nil
		m.usable = msg.usable
		m.setStatus(fmt.Sprintf("%d usable key(s) found. Press Enter to continue.", len(msg.usable)))
	case wizard.StepProvision:
		if err := m.svc.Wizard().CompleteProvision(s, "", msg.err); err != nil {
			m.setError(err)
			m.status += ". Press Enter to retry."
			return m, nil
		}
		m.nav.Push(nav.WizardStep(wizard.StepVerify))
		cmd := m.enter()
		m.setStatus("Key installed on " + s.Target.String() + ". Press Enter to test key-only login.")
		return m, cmd
	case wizard.StepVerify:
		wizard.RecordVerify(s, msg.err)
		if msg.err != nil {
			m.setError(msg.err)
			m.status += ". Press Enter to retry."
			return m, nil
		}
		m.nav.Push(nav.WizardStep(wizard.StepPersist))
		cmd := m.enter()
		m.setStatus("Key-only login works. Save a Host block for it?")
		return m, cmd
	}
	return m, nil
}

func (m modelUI) wizardBody(step int) string {
	s := m.nav.Session()
	var b strings.Builder
	for _, line := range wizard.Summary(s) {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\n")
	switch step {
	case wizard.StepKeys:
		if m.needKey && m.form != nil {
			b.WriteString("No usable key yet. Generate one:\n\n" + m.form.view())
			break
		}
		b.WriteString(cursorList(keyRows(m.usable), -1, "(scanning...)"))
	case wizard.StepSelect:
		b.WriteString("Choose the key to install:\n")
		b.WriteString(cursorList(keyRows(m.usable), m.sel, "(no usable keys)"))
	case wizard.StepProvision:
		if s.SelectedKey != nil {
			b.WriteString("Key: " + s.SelectedKey.Label() + "\n")
		}
		b.WriteString("The remote password is asked once by ssh.\n\n")
		if m.form != nil {
			b.WriteString(m.form.view())
		}
	case wizard.StepVerify:
		if s.Target != nil && s.SelectedKey != nil {
			b.WriteString(fmt.Sprintf("Enter logs in to %s with %s only, without prompts.", s.Target, s.SelectedKey.Name))
		}
	case wizard.StepPersist:
		if m.form != nil {
			b.WriteString(m.form.view())
		} else {
			b.WriteString("Press Enter to return home.")
		}
	}
	return b.String()
}
