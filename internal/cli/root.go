// Package cli provides the command-line interface for sshkit.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/treykane/sshkit/internal/app"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/doctor"
	"github.com/treykane/sshkit/internal/events"
	"github.com/treykane/sshkit/internal/keys"
	"github.com/treykane/sshkit/internal/logging"
	"github.com/treykane/sshkit/internal/security"
	"github.com/treykane/sshkit/internal/ui"
	"github.com/treykane/sshkit/internal/util"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// ErrNoTerminal is returned when the interactive session is started without a
// terminal on stdin and stdout.
var ErrNoTerminal = errors.New("the interactive session needs a terminal; use --quick-setup or a subcommand")

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var (
		quickSetup bool
		sshDir     string
	)
	root := &cobra.Command{
		Use:           "sshkit",
		Short:         "Manage SSH keys, the agent and ~/.ssh/config, and set up passwordless login",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := loadServices(sshDir)
			if err != nil {
				return err
			}
			defer closer.Close()
			if quickSetup {
				return runQuickSetup(cmd.Context(), svc, huhPrompter{}, os.Stdout)
			}
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return ErrNoTerminal
			}
			return ui.Run(cmd.Context(), svc)
		},
	}
	root.SetVersionTemplate("sshkit {{.Version}}\n")
	root.Flags().BoolVar(&quickSetup, "quick-setup", false, "run the passwordless setup wizard with line prompts")
	root.PersistentFlags().StringVar(&sshDir, "ssh-dir", "", "credential directory (default: ssh_dir from config.yaml, ~/.ssh)")

	root.AddCommand(newDoctorCmd(&sshDir))
	root.AddCommand(newAuditCmd(&sshDir))
	root.AddCommand(newBackupCmd(&sshDir))
	root.AddCommand(newEventsCmd())
	return root
}

// loadServices reads config.yaml, applies the --ssh-dir override and installs
// the file logger. The closer flushes the log file.
func loadServices(sshDir string) (*app.Services, io.Closer, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if sshDir != "" {
		cfg.SSHDir = sshDir
	}
	closer, err := logging.Setup(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
	}
	slog.Debug("config loaded", "ssh_dir", cfg.SSHDir, "agent_backend", cfg.Agent.Backend)
	return app.New(cfg), closer, nil
}

func newDoctorCmd(sshDir *string) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, agent, ssh config and key hygiene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := loadServices(*sshDir)
			if err != nil {
				return err
			}
			defer closer.Close()
			report, err := doctor.Run(cmd.Context(), doctor.Options{Config: svc.Config, Runner: svc.Runner, Agent: svc.Agent})
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("No issues found.")
				return nil
			}
			fmt.Printf("%-8s %-18s %-32s %s\n", "SEVERITY", "CHECK", "TARGET", "MESSAGE")
			for _, i := range report.Issues {
				fmt.Printf("%-8s %-18s %-32s %s\n", i.Severity, i.Check, util.EmptyDash(util.CollapseHome(i.Target)), apperr.RedactMessage(i.Message))
				if i.Recommendation != "" {
					fmt.Printf("%-8s %-18s %-32s -> %s\n", "", "", "", i.Recommendation)
				}
			}
			if report.HasHigh() {
				fmt.Println("High severity issues need attention before passwordless setup.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newAuditCmd(sshDir *string) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report permission and key strength findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := loadServices(*sshDir)
			if err != nil {
				return err
			}
			defer closer.Close()
			pairs, _, err := keys.NewInventory(svc.Config.ResolvedSSHDir(), nil).Scan(cmd.Context())
			if err != nil {
				return err
			}
			report := security.Audit(svc.Config.ResolvedSSHDir(), svc.Config.SSHConfigPath(), pairs)
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Printf("%-8s %-22s %-10s %-10s %s\n", "SEVERITY", "KIND", "OBSERVED", "EXPECTED", "SUBJECT")
			for _, f := range report.Findings {
				fmt.Printf("%-8s %-22s %-10s %-10s %s\n", f.Severity, f.Kind, f.Observed, f.Expected, util.CollapseHome(f.Subject))
			}
			fmt.Printf("%d finding(s)\n", report.Count)
			if report.HasHigh() {
				fmt.Println("High severity findings: run sshkit and choose Fix permissions.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newBackupCmd(sshDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a tar.gz snapshot of the credential directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := loadServices(*sshDir)
			if err != nil {
				return err
			}
			defer closer.Close()
			archive, err := svc.Backups.Backup()
			svc.Journal.Record(events.OpBackup, svc.Backups.Dir, err)
			if err != nil {
				return err
			}
			fmt.Printf("backup written to %s\n", archive.Path)
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var (
		jsonOut   bool
		limit     int
		operation string
		since     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the operation journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{Operation: operation, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			fmt.Printf("%-20s %-26s %-8s %-28s %s\n", "TIME", "OPERATION", "OUTCOME", "SUBJECT", "MESSAGE")
			for _, e := range evts {
				fmt.Printf("%-20s %-26s %-8s %-28s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Operation, e.Outcome,
					util.EmptyDash(util.CollapseHome(e.Subject)), e.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().StringVar(&operation, "op", "", "only show one operation, e.g. key.copy")
	cmd.Flags().DurationVar(&since, "since", 0, "only show events newer than this, e.g. 24h")
	return cmd
}
