package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/treykane/sshkit/internal/app"
	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/history"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/wizard"
)

// prompter asks the line-mode questions. huhPrompter is the terminal
// implementation; tests script the answers.
type prompter interface {
	Confirm(title string, def bool) (bool, error)
	Input(title, def string, validate func(string) error) (string, error)
	Password(title string) (string, error)
	Select(title string, options []string) (int, error)
}

type huhPrompter struct{}

func (huhPrompter) Confirm(title string, def bool) (bool, error) {
	v := def
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&v),
		),
	)
	return v, form.Run()
}

func (huhPrompter) Input(title, def string, validate func(string) error) (string, error) {
	v := def
	in := huh.NewInput().Title(title).Value(&v)
	if validate != nil {
		in = in.Validate(validate)
	}
	err := huh.NewForm(huh.NewGroup(in)).Run()
	return strings.TrimSpace(v), err
}

func (huhPrompter) Password(title string) (string, error) {
	var v string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description("Leave empty for no passphrase").
				EchoMode(huh.EchoModePassword).
				Value(&v),
		),
	)
	return v, form.Run()
}

func (huhPrompter) Select(title string, options []string) (int, error) {
	var v int
	opts := make([]huh.Option[int], 0, len(options))
	for i, o := range options {
		opts = append(opts, huh.NewOption(o, i))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(title).
				Options(opts...).
				Value(&v),
		),
	)
	return v, form.Run()
}

// quickSetup is the line-mode passwordless wizard.
type quickSetup struct {
	w       *wizard.Wizard
	ask     prompter
	out     io.Writer
	sshDir  string
	keyType string
	// provision runs step 3; the default attaches the copy command to a pty.
	provision func(ctx context.Context, s *model.WizardSession) error
}

func runQuickSetup(ctx context.Context, svc *app.Services, ask prompter, out io.Writer) error {
	w := svc.Wizard()
	q := &quickSetup{
		w:         w,
		ask:       ask,
		out:       out,
		sshDir:    svc.Config.ResolvedSSHDir(),
		keyType:   svc.Config.DefaultKeyType,
		provision: w.Provision,
	}
	return q.run(ctx)
}

func (q *quickSetup) run(ctx context.Context) error {
	s := &model.WizardSession{}
	defer q.summary(s)

	usable, err := q.keys(ctx, s)
	if err != nil {
		return err
	}
	if err := q.selectKey(s, usable); err != nil {
		return err
	}
	if err := q.copyKey(ctx, s); err != nil {
		return err
	}
	if err := q.verify(ctx, s); err != nil {
		return err
	}
	return q.persist(s)
}

func (q *quickSetup) keys(ctx context.Context, s *model.WizardSession) ([]model.KeyPair, error) {
	usable, err := q.w.CheckKeys(ctx, s)
	if !errors.Is(err, wizard.ErrNoKeys) {
		return usable, err
	}
	fmt.Fprintln(q.out, "No usable SSH key found in", q.sshDir)
	ok, err := q.ask.Confirm(fmt.Sprintf("Generate an %s key now?", q.keyType), true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wizard.ErrNoKeys
	}
	alg, err := model.ParseAlgorithm(q.keyType)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindConstraint, err.Error())
	}
	pass, err := q.ask.Password("Passphrase for the new key")
	if err != nil {
		return nil, err
	}
	req := keys.GenerateRequest{Algorithm: alg, Path: keys.DefaultKeyPath(q.sshDir, alg), Passphrase: pass}
	usable, err = q.w.GenerateFirstKey(ctx, s, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(q.out, "Generated", req.Path)
	return usable, nil
}

func (q *quickSetup) selectKey(s *model.WizardSession, usable []model.KeyPair) error {
	if wizard.AutoSelect(s, usable) {
		fmt.Fprintln(q.out, "Using", s.SelectedKey.Label())
		return nil
	}
	labels := make([]string, 0, len(usable))
	for _, k := range usable {
		labels = append(labels, k.Label())
	}
	idx, err := q.ask.Select("Which key should be installed?", labels)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(usable) {
		return apperr.New(apperr.KindConstraint, "invalid key selection")
	}
	return wizard.SelectKey(s, usable[idx])
}

func (q *quickSetup) copyKey(ctx context.Context, s *model.WizardSession) error {
	def := ""
	if recent, err := history.RecentTargets(1); err == nil && len(recent) > 0 {
		def = recent[0].String()
	}
	input, err := q.ask.Input("Remote account (user@host[:port])", def, func(v string) error {
		_, err := model.ParseTarget(v)
		return err
	})
	if err != nil {
		return err
	}
	if err := wizard.SetTarget(s, input); err != nil {
		return err
	}
	for {
		fmt.Fprintf(q.out, "Copying %s to %s; ssh asks for the remote password once.\n", s.SelectedKey.Name, s.Target)
		err := q.provision(ctx, s)
		if err == nil {
			return nil
		}
		fmt.Fprintln(q.out, "Error:", apperr.UserMessage(err, true))
		retry, aerr := q.ask.Confirm("Retry copying the key?", true)
		if aerr != nil || !retry {
			return err
		}
	}
}

func (q *quickSetup) verify(ctx context.Context, s *model.WizardSession) error {
	for {
		fmt.Fprintf(q.out, "Testing key-only login to %s...\n", s.Target)
		err := q.w.Verify(ctx, s)
		if err == nil {
			fmt.Fprintln(q.out, "Key-only login works.")
			return nil
		}
		fmt.Fprintln(q.out, "Error:", apperr.UserMessage(err, true))
		retry, aerr := q.ask.Confirm("Retry the login test?", true)
		if aerr != nil || !retry {
			return err
		}
	}
}

func (q *quickSetup) persist(s *model.WizardSession) error {
	save, err := q.ask.Confirm("Save a Host block to the ssh config?", true)
	if err != nil {
		return err
	}
	if !save {
		return q.w.Persist(s, "", false)
	}
	alias := wizard.SuggestAlias(*s.Target)
	for {
		alias, err = q.ask.Input("Host alias", alias, config.ValidateAlias)
		if err != nil {
			return err
		}
		err = q.w.Persist(s, alias, true)
		if !errors.Is(err, config.ErrDuplicateAlias) {
			if err == nil {
				fmt.Fprintf(q.out, "Saved Host %s. Connect with: ssh %s\n", alias, alias)
			}
			return err
		}
		fmt.Fprintln(q.out, "Error:", apperr.UserMessage(err, true))
	}
}

func (q *quickSetup) summary(s *model.WizardSession) {
	fmt.Fprintln(q.out)
	for _, line := range wizard.Summary(s) {
		fmt.Fprintln(q.out, line)
	}
}
