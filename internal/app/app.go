// Package app wires the sshkit services from the application config. Both the
// TUI and the line-mode commands build their collaborators here.
package app

import (
	"github.com/treykane/sshkit/internal/agent"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/backup"
	"github.com/treykane/sshkit/internal/config"
	"github.com/treykane/sshkit/internal/events"
	"github.com/treykane/sshkit/internal/history"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/wizard"
)

// Services bundles everything an interactive session touches.
type Services struct {
	Config  appconfig.Config
	Runner  sshclient.Runner
	Agent   agent.Controller
	Keys    *keys.Inventory
	Keygen  keys.Generator
	Hosts   *config.Store
	Backups *backup.Manager
	Prober  sshclient.ConnectionProber
	Copier  sshclient.RemoteCopier
	Journal *events.Store
}

// New builds services that delegate to the real OpenSSH tools.
func New(cfg appconfig.Config) *Services {
	return NewWithRunner(cfg, sshclient.ExecRunner{})
}

// NewWithRunner builds services around runner, which tests replace with a fake.
func NewWithRunner(cfg appconfig.Config, runner sshclient.Runner) *Services {
	dir := cfg.ResolvedSSHDir()
	ctrl := agent.New(cfg.Agent.Backend, cfg.Agent.ExitCodes, runner)
	return &Services{
		Config:  cfg,
		Runner:  runner,
		Agent:   ctrl,
		Keys:    keys.NewInventory(dir, ctrl),
		Keygen:  keys.NewKeygen(runner),
		Hosts:   config.NewStore(cfg.SSHConfigPath(), cfg.BackupDir(), cfg.ConfigBackupKeep),
		Backups: backup.NewManager(dir, cfg.BackupDir(), cfg.BackupRetain),
		Prober:  sshclient.NewBatchProber(runner, cfg.ProbeTimeout()),
		Copier:  sshclient.CopyKeyCommand{Runner: runner},
		Journal: events.NewStore(),
	}
}

// Wizard returns a passwordless setup flow over these services. Provisioned
// targets are remembered for the next run.
func (s *Services) Wizard() *wizard.Wizard {
	return &wizard.Wizard{
		Keys:     s.Keys,
		Gen:      s.Keygen,
		Copier:   s.Copier,
		Prober:   s.Prober,
		Hosts:    s.Hosts,
		Journal:  s.Journal,
		Remember: history.TouchTarget,
	}
}
