// Package appconfig manages sshkit's own configuration and file locations.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/treykane/sshkit/internal/util"
	"gopkg.in/yaml.v3"
)

const (
	AgentBackendSSHAdd = "ssh-add"
	AgentBackendSocket = "socket"
)

// AgentConfig selects how the key agent is queried.
type AgentConfig struct {
	Backend string `yaml:"backend"`
	// ExitCodes maps ssh-add -l exit codes to agent states. The meaning of the
	// codes differs between agent implementations, so it is data, not code.
	ExitCodes map[int]string `yaml:"exit_codes"`
}

// LogConfig controls the sshkit.log verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config holds application-level configuration.
type Config struct {
	SSHDir              string      `yaml:"ssh_dir"`
	BackupDirName       string      `yaml:"backup_dir_name"`
	BackupRetain        int         `yaml:"backup_retain"`
	ConfigBackupKeep    int         `yaml:"config_backup_keep"`
	ProbeTimeoutSeconds int         `yaml:"probe_timeout_seconds"`
	DefaultKeyType      string      `yaml:"default_key_type"`
	Agent               AgentConfig `yaml:"agent"`
	Log                 LogConfig   `yaml:"log"`
}

// agentStates are the names exit_codes may map to. Anything else is read as
// a communication error.
var agentStates = []string{"running", "running-no-keys", "not-running", "communication-error"}

// DefaultExitCodes is the OpenSSH ssh-add mapping.
func DefaultExitCodes() map[int]string {
	return map[int]string{
		0: "running",
		1: "running-no-keys",
		2: "not-running",
	}
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SSHDir:              "~/.ssh",
		BackupDirName:       util.BackupDirName,
		BackupRetain:        util.DefaultBackupRetain,
		ConfigBackupKeep:    util.DefaultConfigBackupKeep,
		ProbeTimeoutSeconds: int(util.DefaultProbeTimeout / time.Second),
		DefaultKeyType:      "ed25519",
		Agent:               AgentConfig{Backend: AgentBackendSSHAdd, ExitCodes: DefaultExitCodes()},
		Log:                 LogConfig{Level: "info"},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/sshkit.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sshkit"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "sshkit"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	// yaml.v3 merges into existing maps, so start from an empty one to let
	// the file replace the default mapping entirely.
	cfg.Agent.ExitCodes = nil
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func normalize(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.SSHDir) == "" {
		cfg.SSHDir = def.SSHDir
	}
	name := strings.TrimSpace(cfg.BackupDirName)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		cfg.BackupDirName = def.BackupDirName
	}
	if cfg.BackupRetain <= 0 {
		cfg.BackupRetain = def.BackupRetain
	}
	if cfg.ConfigBackupKeep <= 0 {
		cfg.ConfigBackupKeep = def.ConfigBackupKeep
	}
	if cfg.ProbeTimeoutSeconds <= 0 {
		cfg.ProbeTimeoutSeconds = def.ProbeTimeoutSeconds
	}
	if strings.TrimSpace(cfg.DefaultKeyType) == "" {
		cfg.DefaultKeyType = def.DefaultKeyType
	}
	switch cfg.Agent.Backend {
	case AgentBackendSSHAdd, AgentBackendSocket:
	default:
		cfg.Agent.Backend = AgentBackendSSHAdd
	}
	if len(cfg.Agent.ExitCodes) == 0 {
		cfg.Agent.ExitCodes = DefaultExitCodes()
	}
	for code, name := range cfg.Agent.ExitCodes {
		name = strings.ToLower(strings.TrimSpace(name))
		if !slices.Contains(agentStates, name) {
			name = "communication-error"
		}
		cfg.Agent.ExitCodes[code] = name
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	default:
		cfg.Log.Level = def.Log.Level
	}
}

// ResolvedSSHDir returns the credential directory with "~" expanded.
func (c Config) ResolvedSSHDir() string {
	return util.ExpandHome(c.SSHDir)
}

// SSHConfigPath returns the ssh client config inside the credential directory.
func (c Config) SSHConfigPath() string {
	return filepath.Join(c.ResolvedSSHDir(), "config")
}

// BackupDir returns the directory for archives and pre-write config copies.
func (c Config) BackupDir() string {
	return filepath.Join(c.ResolvedSSHDir(), c.BackupDirName)
}

// ProbeTimeout returns the connection probe bound.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}
