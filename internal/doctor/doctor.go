// Package doctor aggregates environment diagnostics: required tools, config
// parse and lint warnings, dangling IdentityFile references, agent state and
// the security audit.
package doctor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/treykane/sshkit/internal/agent"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/security"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/util"
)

// Severity is shared with the security auditor.
type Severity = model.Severity

const (
	SeverityLow    = model.SeverityLow
	SeverityMedium = model.SeverityMedium
	SeverityHigh   = model.SeverityHigh
)

// Issue is one failed check with the action that fixes it.
type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Report holds every issue found by Run.
type Report struct {
	Issues []Issue `json:"issues"`
}

// HasHigh reports whether any issue is high severity.
func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Options supplies the collaborators. Nil Runner and Agent use the real tools.
type Options struct {
	Config appconfig.Config
	Runner sshclient.Runner
	Agent  agent.Controller
}

// Run executes local diagnostics for sshkit operations.
func Run(ctx context.Context, opts Options) (Report, error) {
	runner := opts.Runner
	if runner == nil {
		runner = sshclient.ExecRunner{}
	}
	ctrl := opts.Agent
	if ctrl == nil {
		ctrl = agent.New(opts.Config.Agent.Backend, opts.Config.Agent.ExitCodes, runner)
	}
	sshDir := opts.Config.ResolvedSSHDir()
	cfgPath := opts.Config.SSHConfigPath()

	var issues []Issue
	client := sshclient.NewWithRunner(runner)
	for _, bin := range sshclient.Required {
		if err := client.EnsureBinary(bin); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "tool-missing",
				Target:         bin,
				Message:        err.Error(),
				Recommendation: "install the OpenSSH client tools and ensure they are on PATH",
			})
		}
	}
	if err := client.EnsureBinary("ssh-copy-id"); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "tool-missing",
			Target:         "ssh-copy-id",
			Message:        err.Error(),
			Recommendation: "keys will be installed with a single ssh command instead",
		})
	}

	store := config.NewStore(cfgPath, opts.Config.BackupDir(), opts.Config.ConfigBackupKeep)
	if doc, err := store.Load(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-read",
			Target:         util.CollapseHome(cfgPath),
			Message:        err.Error(),
			Recommendation: "check ownership and permissions of the ssh config",
		})
	} else {
		for _, w := range doc.Warnings {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "config-warning",
				Target:         util.CollapseHome(cfgPath),
				Message:        w,
				Recommendation: "fix malformed Host blocks in the ssh config",
			})
		}
		if b, err := os.ReadFile(cfgPath); err == nil {
			if lintErr := config.Lint(string(b)); lintErr != nil {
				issues = append(issues, Issue{
					Severity:       SeverityLow,
					Check:          "config-lint",
					Target:         util.CollapseHome(cfgPath),
					Message:        lintErr.Error(),
					Recommendation: "run `ssh -G <alias>` to see how OpenSSH reads the file",
				})
			}
		}
		issues = append(issues, identityIssues(doc.Hosts)...)
	}

	status := ctrl.Status(ctx)
	switch status.State {
	case agent.NotRunning:
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "agent",
			Target:         "ssh-agent",
			Message:        "no authentication agent is running",
			Recommendation: "start one with `eval $(ssh-agent)` to cache key passphrases",
		})
	case agent.CommunicationError:
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "agent",
			Target:         "ssh-agent",
			Message:        strings.TrimSpace("cannot talk to the authentication agent " + status.Detail),
			Recommendation: "check SSH_AUTH_SOCK or switch agent.backend in config.yaml",
		})
	}

	inv := keys.NewInventory(sshDir, ctrl)
	pairs, warnings, err := inv.Scan(ctx)
	if err == nil {
		for _, w := range warnings {
			issues = append(issues, Issue{
				Severity:       SeverityLow,
				Check:          "key-warning",
				Target:         util.CollapseHome(sshDir),
				Message:        w,
				Recommendation: "remove or regenerate incomplete key pairs",
			})
		}
	}

	audit := security.Audit(sshDir, cfgPath, pairs)
	for _, f := range audit.Findings {
		issues = append(issues, Issue{
			Severity:       f.Severity,
			Check:          "security-audit",
			Target:         util.CollapseHome(f.Subject),
			Message:        fmt.Sprintf("%s: observed %s, expected %s", f.Kind, f.Observed, f.Expected),
			Recommendation: recommendation(f.Kind),
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

// identityIssues reports Host blocks whose IdentityFile does not exist.
func identityIssues(hosts []model.HostEntry) []Issue {
	var issues []Issue
	for _, h := range hosts {
		if strings.TrimSpace(h.IdentityFile) == "" {
			continue
		}
		if _, err := os.Stat(util.ExpandHome(h.IdentityFile)); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "identity-missing",
				Target:         h.Alias,
				Message:        fmt.Sprintf("IdentityFile %s does not exist", h.IdentityFile),
				Recommendation: "generate the key or update the Host block",
			})
		}
	}
	return issues
}

func recommendation(kind model.FindingKind) string {
	switch kind {
	case model.FindingWeakKey:
		return "generate an ed25519 key and retire the short RSA key"
	case model.FindingDeprecatedAlgorithm:
		return "DSA keys are refused by current OpenSSH; replace with ed25519"
	default:
		return "run the fix-permissions screen or chmod to the expected mode"
	}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
