package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
)

// RemoteCopier installs a public key into a remote account's authorized_keys.
// The returned command is interactive: the remote password prompt must reach
// the user's terminal.
type RemoteCopier interface {
	CopyCommand(target model.Target, pubKeyPath string) (*exec.Cmd, error)
}

// manualInstallScript creates ~/.ssh, appends the key read from stdin unless an
// identical line is present, and fixes permissions, all in one remote shell.
const manualInstallScript = `umask 077; mkdir -p ~/.ssh && chmod 700 ~/.ssh && touch ~/.ssh/authorized_keys && ` +
	`read -r key && { grep -qxF "$key" ~/.ssh/authorized_keys || printf '%s\n' "$key" >> ~/.ssh/authorized_keys; } && ` +
	`chmod 600 ~/.ssh/authorized_keys`

// CopyKeyCommand prefers ssh-copy-id and falls back to a single ssh invocation
// that runs manualInstallScript.
type CopyKeyCommand struct {
	Runner Runner
}

// CopyCommand returns the interactive command that appends the key at
// pubKeyPath to target's authorized_keys. It prefers ssh-copy-id and falls
// back to ssh with the key on stdin.
func (c CopyKeyCommand) CopyCommand(target model.Target, pubKeyPath string) (*exec.Cmd, error) {
	key, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindFilesystem, "read public key")
	}
	runner := c.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if path, err := runner.LookPath("ssh-copy-id"); err == nil {
		return exec.Command(path, CopyIDArgs(target, pubKeyPath)...), nil
	}
	cmd := exec.Command("ssh", ManualArgs(target)...)
	cmd.Stdin = bytes.NewReader(append(bytes.TrimSpace(key), '\n'))
	return cmd, nil
}

// CopyIDArgs builds the ssh-copy-id argv.
func CopyIDArgs(target model.Target, pubKeyPath string) []string {
	args := []string{"-i", pubKeyPath}
	if target.Port != 0 && target.Port != model.DefaultPort {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	return append(args, target.Destination())
}

// ManualArgs builds the argv of the fallback ssh invocation.
func ManualArgs(target model.Target) []string {
	var args []string
	if target.Port != 0 && target.Port != model.DefaultPort {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	return append(args, target.Destination(), manualInstallScript)
}

// RunAttached runs cmd inside a pseudo-terminal connected to the user's
// terminal, so remote password prompts work in line mode. Output is echoed and
// also captured for error classification.
func RunAttached(ctx context.Context, cmd *exec.Cmd) (string, error) {
	var captured bytes.Buffer
	if cmd.Stdin != nil {
		// The key is piped on stdin; ssh reads the password from /dev/tty.
		cmd.Stdout = io.MultiWriter(os.Stdout, &captured)
		cmd.Stderr = cmd.Stdout
		if err := cmd.Start(); err != nil {
			return "", err
		}
		err := waitCtx(ctx, cmd)
		return captured.String(), err
	}

	f, err := pty.Start(cmd)
	if err != nil {
		return "", err
	}
	// The pty echoes what the child allows; the local terminal must not.
	restore := rawTerminal(f)
	stop := forwardInput(f)
	_, _ = io.Copy(io.MultiWriter(os.Stdout, &captured), f)
	err = waitCtx(ctx, cmd)
	_ = f.Close()
	stop()
	restore()
	return captured.String(), err
}

// rawTerminal puts stdin in raw mode and sizes the pty like stdout. The
// returned func restores the previous state; it is a no-op off a terminal.
func rawTerminal(f *os.File) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil && rows > 0 && cols > 0 {
		_ = pty.Setsize(f, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, old) }
}

// forwardInput copies stdin into f until the returned stop func is called.
// stop waits for the copy to end, so no keystroke meant for the next prompt
// is swallowed.
func forwardInput(f *os.File) func() {
	in, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		slog.Warn("stdin not forwarded to pty", "error", err)
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(f, in)
	}()
	return func() {
		in.Cancel()
		<-done
		_ = in.Close()
	}
}

// waitCtx waits for cmd, killing it if ctx ends first.
func waitCtx(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		case <-done:
		}
	}()
	return cmd.Wait()
}

// CopyFailure converts the result of an attached copy run into an apperr.
func CopyFailure(target model.Target, output string, err error) error {
	if err == nil {
		return nil
	}
	msg := ClassifyFailure(target.String(), output)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && strings.TrimSpace(output) == "" {
		msg = fmt.Sprintf("copying key to %s failed (exit %d)", target, exitErr.ExitCode())
	}
	return apperr.Delegated(err, msg, output)
}
