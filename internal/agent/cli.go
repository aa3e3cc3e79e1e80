package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient"
)

// CLI drives the agent through ssh-add.
type CLI struct {
	Runner sshclient.Runner
	// ExitCodes maps `ssh-add -l` exit codes to states. Codes not in the map
	// mean CommunicationError.
	ExitCodes map[int]State
}

// NewCLI creates an ssh-add controller. A nil map uses the OpenSSH defaults.
func NewCLI(runner sshclient.Runner, exitCodes map[int]string) *CLI {
	if exitCodes == nil {
		exitCodes = appconfig.DefaultExitCodes()
	}
	m := make(map[int]State, len(exitCodes))
	for code, name := range exitCodes {
		m[code] = ParseState(name)
	}
	return &CLI{Runner: runner, ExitCodes: m}
}

// Status maps the exit code of ssh-add -l to a State.
func (c *CLI) Status(ctx context.Context) Status {
	res, err := c.Runner.Run(ctx, "ssh-add", "-l", "-E", "sha256")
	if err != nil {
		return Status{State: CommunicationError, Detail: err.Error()}
	}
	state, ok := c.ExitCodes[res.ExitCode]
	if !ok {
		return Status{State: CommunicationError, Detail: fmt.Sprintf("ssh-add exited with status %d: %s", res.ExitCode, res.Output())}
	}
	st := Status{State: state}
	if state == Running {
		st.Keys = ParseList(string(res.Stdout))
	}
	return st
}

func (c *CLI) LoadedKeys(ctx context.Context) []model.LoadedKey {
	return c.Status(ctx).Keys
}

func (c *CLI) Add(ctx context.Context, privPath string) error {
	return c.run(ctx, ErrAgentAdd, "ssh-add", privPath)
}

func (c *CLI) Remove(ctx context.Context, privPath string) error {
	return c.run(ctx, ErrAgentRemove, "ssh-add", "-d", privPath)
}

func (c *CLI) RemoveAll(ctx context.Context) error {
	return c.run(ctx, ErrAgentRemove, "ssh-add", "-D")
}

func (c *CLI) run(ctx context.Context, sentinel error, name string, args ...string) error {
	res, err := c.Runner.Run(ctx, name, args...)
	if err == nil && res.Success() {
		slog.Info("agent updated", "args", strings.Join(args, " "))
		return nil
	}
	out := res.Output()
	if err == nil {
		err = fmt.Errorf("exit status %d", res.ExitCode)
	}
	slog.Warn("ssh-add failed", "args", strings.Join(args, " "), "error", err, "output", out)
	if out != "" {
		return fmt.Errorf("%w: %s", sentinel, out)
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// ParseList parses `ssh-add -l` output lines of the form
// "256 SHA256:abc comment words (ED25519)".
func ParseList(out string) []model.LoadedKey {
	var keys []model.LoadedKey
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		bits, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		k := model.LoadedKey{Bits: bits, Fingerprint: fields[1]}
		rest := fields[2:]
		if n := len(rest); n > 0 && strings.HasPrefix(rest[n-1], "(") && strings.HasSuffix(rest[n-1], ")") {
			k.Type = strings.Trim(rest[n-1], "()")
			rest = rest[:n-1]
		}
		k.Comment = strings.Join(rest, " ")
		keys = append(keys, k)
	}
	return keys
}
