// Package wizard sequences the passwordless setup flow: make sure a key
// exists, pick it, install it on the remote account, prove that key-only login
// works and optionally save a Host block for the target.
//
// Step results live in the model.WizardSession owned by the navigation
// engine. A failed mandatory step keeps its "failed" result until it is
// retried; later steps stay unreachable in the meantime.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/events"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/util"
)

// Step numbers.
const (
	StepKeys = iota + 1
	StepSelect
	StepProvision
	StepVerify
	StepPersist
)

var (
	// ErrNoKeys means step 1 cannot pass until a key is generated.
	ErrNoKeys = apperr.New(apperr.KindMissing, "no usable SSH keys; generate one to continue")
	// ErrUnreachable means an earlier mandatory step has not succeeded.
	ErrUnreachable = apperr.New(apperr.KindMissing, "complete the previous steps first")
)

// KeyScanner lists the key pairs available for selection.
type KeyScanner interface {
	Scan(ctx context.Context) ([]model.KeyPair, []string, error)
}

// HostStore persists new Host blocks.
type HostStore interface {
	Add(entry model.HostEntry) error
}

// Wizard holds the collaborators of the flow. Journal and Remember are
// optional.
type Wizard struct {
	Keys     KeyScanner
	Gen      keys.Generator
	Copier   sshclient.RemoteCopier
	Prober   sshclient.ConnectionProber
	Hosts    HostStore
	Journal  *events.Store
	Remember func(model.Target) error
}

// Reachable reports whether step may run given the results so far. Selection
// counts as passed when it was skipped.
func Reachable(s *model.WizardSession, step int) bool {
	if step < StepKeys || step > model.WizardSteps {
		return false
	}
	for prior := StepKeys; prior < step; prior++ {
		res := s.Result(prior)
		if res == model.StepOK || (prior == StepSelect && res == model.StepSkipped) {
			continue
		}
		return false
	}
	return true
}

// CheckKeys runs step 1. It records ok when a usable key exists and returns
// ErrNoKeys otherwise, leaving the step pending so generation is forced.
func (w *Wizard) CheckKeys(ctx context.Context, s *model.WizardSession) ([]model.KeyPair, error) {
	usable, err := w.ScanUsable(ctx)
	RecordKeys(s, err)
	return usable, err
}

// ScanUsable lists the keys step 1 would accept without touching a session,
// so it can run off the goroutine that owns it. It returns ErrNoKeys when
// there are none.
func (w *Wizard) ScanUsable(ctx context.Context) ([]model.KeyPair, error) {
	pairs, warnings, err := w.Keys.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, warn := range warnings {
		slog.Warn("key scan", "warning", warn)
	}
	usable := keys.Usable(pairs)
	if len(usable) == 0 {
		return nil, ErrNoKeys
	}
	return usable, nil
}

// RecordKeys stores the step 1 outcome of ScanUsable or GenerateUsable.
func RecordKeys(s *model.WizardSession, err error) {
	switch {
	case errors.Is(err, ErrNoKeys):
		s.Results[StepKeys-1] = model.StepPending
	case err != nil:
		s.Record(StepKeys, model.StepFailed)
	default:
		s.Record(StepKeys, model.StepOK)
	}
}

// GenerateFirstKey creates a key for step 1 and re-runs the check.
func (w *Wizard) GenerateFirstKey(ctx context.Context, s *model.WizardSession, req keys.GenerateRequest) ([]model.KeyPair, error) {
	usable, err := w.GenerateUsable(ctx, req)
	RecordKeys(s, err)
	return usable, err
}

// GenerateUsable creates a key and scans again without touching a session.
func (w *Wizard) GenerateUsable(ctx context.Context, req keys.GenerateRequest) ([]model.KeyPair, error) {
	err := w.Gen.Generate(ctx, req)
	w.Journal.Record(events.OpKeyGenerate, req.Path, err)
	if err != nil {
		return nil, err
	}
	return w.ScanUsable(ctx)
}

// AutoSelect completes step 2 without asking when exactly one usable key
// exists. It reports whether it did.
func AutoSelect(s *model.WizardSession, usable []model.KeyPair) bool {
	if len(usable) != 1 || !Reachable(s, StepSelect) {
		return false
	}
	k := usable[0]
	s.SelectedKey = &k
	s.Record(StepSelect, model.StepSkipped)
	return true
}

// SelectKey completes step 2 with the chosen pair.
func SelectKey(s *model.WizardSession, pair model.KeyPair) error {
	if !Reachable(s, StepSelect) {
		return ErrUnreachable
	}
	if !pair.HasPrivateKey {
		s.Record(StepSelect, model.StepFailed)
		return apperr.Newf(apperr.KindMissing, "%s has no private key", pair.Name)
	}
	s.SelectedKey = &pair
	s.Record(StepSelect, model.StepOK)
	return nil
}

// SetTarget parses and stores the remote account for steps 3 to 5.
func SetTarget(s *model.WizardSession, input string) error {
	t, err := model.ParseTarget(input)
	if err != nil {
		return apperr.Wrap(err, apperr.KindConstraint, "invalid destination")
	}
	s.Target = &t
	return nil
}

// ProvisionCommand builds the interactive copy command for step 3. The caller
// runs it with the terminal attached and reports back via CompleteProvision.
func (w *Wizard) ProvisionCommand(s *model.WizardSession) (*exec.Cmd, error) {
	if !Reachable(s, StepProvision) || s.SelectedKey == nil {
		return nil, ErrUnreachable
	}
	if s.Target == nil {
		return nil, apperr.New(apperr.KindMissing, "enter a destination first")
	}
	cmd, err := w.Copier.CopyCommand(*s.Target, s.SelectedKey.PublicKeyPath)
	if err != nil {
		s.Record(StepProvision, model.StepFailed)
		return nil, err
	}
	return cmd, nil
}

// CompleteProvision records the outcome of the copy command.
func (w *Wizard) CompleteProvision(s *model.WizardSession, output string, runErr error) error {
	var err error
	if runErr != nil && s.Target != nil {
		err = sshclient.CopyFailure(*s.Target, output, runErr)
	} else if runErr != nil {
		err = apperr.Delegated(runErr, "copying key failed", output)
	}
	subject := ""
	if s.Target != nil {
		subject = s.Target.String()
	}
	w.Journal.Record(events.OpKeyCopy, subject, err)
	if err != nil {
		s.Record(StepProvision, model.StepFailed)
		slog.Warn("provision failed", "target", subject, "error", apperr.DebugMessage(err))
		return err
	}
	s.Record(StepProvision, model.StepOK)
	if w.Remember != nil && s.Target != nil {
		if rerr := w.Remember(*s.Target); rerr != nil {
			slog.Warn("remember target", "error", rerr)
		}
	}
	return nil
}

// Provision runs step 3 in line mode with the copy command attached to a pty.
func (w *Wizard) Provision(ctx context.Context, s *model.WizardSession) error {
	cmd, err := w.ProvisionCommand(s)
	if err != nil {
		return err
	}
	output, runErr := sshclient.RunAttached(ctx, cmd)
	return w.CompleteProvision(s, output, runErr)
}

// Verify runs step 4: a non-interactive login using only the selected key.
func (w *Wizard) Verify(ctx context.Context, s *model.WizardSession) error {
	if !Reachable(s, StepVerify) || s.Target == nil || s.SelectedKey == nil {
		return ErrUnreachable
	}
	err := w.Login(ctx, *s.Target, *s.SelectedKey)
	RecordVerify(s, err)
	return err
}

// Login probes target with key alone and journals the outcome. It does not
// touch a session.
func (w *Wizard) Login(ctx context.Context, target model.Target, key model.KeyPair) error {
	err := w.Prober.Probe(ctx, target, key.PrivateKeyPath)
	w.Journal.Record(events.OpWizardVerify, target.String(), err)
	return err
}

// RecordVerify stores the step 4 outcome of Login.
func RecordVerify(s *model.WizardSession, err error) {
	if err != nil {
		s.Record(StepVerify, model.StepFailed)
		return
	}
	s.Record(StepVerify, model.StepOK)
}

// SuggestAlias proposes a Host alias for the target: the first label of the
// hostname, or the whole address for IPs.
func SuggestAlias(t model.Target) string {
	host := t.Host
	if strings.Count(host, ".") == 3 && strings.Trim(host, "0123456789.") == "" {
		return strings.ReplaceAll(host, ".", "-")
	}
	if i := strings.Index(host, "."); i > 0 {
		host = host[:i]
	}
	return host
}

// HostEntryFor builds the Host block persisted by step 5.
func HostEntryFor(alias string, t model.Target, key model.KeyPair) model.HostEntry {
	return model.HostEntry{
		Alias:          alias,
		HostName:       t.Host,
		User:           t.User,
		Port:           t.Port,
		IdentityFile:   util.CollapseHome(key.PrivateKeyPath),
		IdentitiesOnly: true,
	}
}

// Persist runs the optional step 5. Without confirmation the step is skipped.
// A failure is recorded for step 5 only.
func (w *Wizard) Persist(s *model.WizardSession, alias string, confirm bool) error {
	if !Reachable(s, StepPersist) || s.Target == nil || s.SelectedKey == nil {
		return ErrUnreachable
	}
	if !confirm {
		s.Record(StepPersist, model.StepSkipped)
		return nil
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = SuggestAlias(*s.Target)
	}
	err := w.Hosts.Add(HostEntryFor(alias, *s.Target, *s.SelectedKey))
	w.Journal.Record(events.OpHostAdd, alias, err)
	if err != nil {
		s.Record(StepPersist, model.StepFailed)
		if errors.Is(err, config.ErrDuplicateAlias) {
			return fmt.Errorf("%w; choose another alias", err)
		}
		return err
	}
	s.Record(StepPersist, model.StepOK)
	return nil
}

// Summary renders one line per step for the final screen and line mode.
func Summary(s *model.WizardSession) []string {
	names := [...]string{"Key availability", "Key selection", "Copy key", "Verify login", "Save host"}
	out := make([]string, 0, len(names))
	for i, name := range names {
		res := s.Result(i + 1)
		if res == model.StepPending {
			res = "pending"
		}
		out = append(out, fmt.Sprintf("%d. %-16s %s", i+1, name, res))
	}
	return out
}
