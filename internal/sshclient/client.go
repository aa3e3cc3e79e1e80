// Package sshclient runs the OpenSSH command-line tools on sshkit's behalf.
//
// It does NOT implement the SSH protocol. Connection probes, remote key
// installation and key generation are delegated to ssh, ssh-copy-id and
// ssh-keygen, so the user's full client configuration (known_hosts, agent,
// ProxyJump chains) applies without being reimplemented here.
//
// All arguments are passed via exec.Command's argv, never through a local
// shell, so aliases or hostnames containing metacharacters cannot inject
// commands.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Result is the outcome of a command that started and exited.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports a zero exit code.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Output returns stderr followed by stdout, for error messages.
func (r Result) Output() string {
	return string(bytes.TrimSpace(append(append([]byte{}, r.Stderr...), r.Stdout...)))
}

// Runner executes external commands. The returned error is non-nil only when
// the command could not be started or was cut off by ctx; a non-zero exit is
// reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// RunEnv is Run with env appended to the inherited environment.
	RunEnv(ctx context.Context, env []string, name string, args ...string) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return r.RunEnv(ctx, nil, name, args...)
}

func (ExecRunner) RunEnv(ctx context.Context, env []string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Client checks the delegated tools through a Runner.
type Client struct {
	runner Runner
}

// NewWithRunner creates a client backed by r.
func NewWithRunner(r Runner) *Client { return &Client{runner: r} }

// Required lists the tools sshkit cannot work without.
var Required = []string{"ssh", "ssh-keygen", "ssh-add"}

// EnsureBinary checks that name is available on the PATH.
func (c *Client) EnsureBinary(name string) error {
	if _, err := c.runner.LookPath(name); err != nil {
		return fmt.Errorf("%s binary not found in PATH", name)
	}
	return nil
}
