package sshclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/util"
)

// ConnectionProber verifies key-based, non-interactive authentication.
type ConnectionProber interface {
	Probe(ctx context.Context, target model.Target, identity string) error
}

// BatchProber runs `ssh -o BatchMode=yes ... true`. Password prompts are
// disabled, so success proves the key alone is accepted.
type BatchProber struct {
	Runner  Runner
	Timeout time.Duration
}

// NewBatchProber creates a prober with the given connect timeout.
func NewBatchProber(r Runner, timeout time.Duration) *BatchProber {
	if timeout <= 0 {
		timeout = util.DefaultProbeTimeout
	}
	return &BatchProber{Runner: r, Timeout: timeout}
}

// ProbeArgs builds the ssh argv for a verification probe.
func ProbeArgs(target model.Target, identity string, timeout time.Duration) []string {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=" + strconv.Itoa(secs),
		"-o", "StrictHostKeyChecking=accept-new",
	}
	if identity != "" {
		args = append(args, "-i", identity, "-o", "IdentitiesOnly=yes")
	}
	if target.Port != 0 && target.Port != model.DefaultPort {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	return append(args, target.Destination(), "true")
}

// Probe runs a non-interactive login to target with identity and classifies
// a failure by ssh's exit status and stderr.
func (p *BatchProber) Probe(ctx context.Context, target model.Target, identity string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = util.DefaultProbeTimeout
	}
	// Allow ssh a few seconds beyond ConnectTimeout to report its own error.
	ctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	res, err := p.Runner.Run(ctx, "ssh", ProbeArgs(target, identity, timeout)...)
	if err != nil {
		return apperr.Delegated(err, fmt.Sprintf("connection test to %s did not finish", target), res.Output())
	}
	if !res.Success() {
		return apperr.Delegated(fmt.Errorf("ssh exited with status %d", res.ExitCode),
			ClassifyFailure(target.String(), res.Output()), res.Output())
	}
	return nil
}

// ClassifyFailure turns common ssh/ssh-copy-id error output into a short
// message for the user.
func ClassifyFailure(host, output string) string {
	switch {
	case strings.Contains(output, "Permission denied"):
		return fmt.Sprintf("permission denied on %s", host)
	case strings.Contains(output, "Connection refused"):
		return fmt.Sprintf("connection refused by %s", host)
	case strings.Contains(output, "Could not resolve hostname"):
		return fmt.Sprintf("cannot resolve hostname %s", host)
	case strings.Contains(output, "timed out"):
		return fmt.Sprintf("connection to %s timed out", host)
	case strings.Contains(output, "Host key verification failed"):
		return fmt.Sprintf("host key verification failed for %s", host)
	default:
		return fmt.Sprintf("ssh to %s failed", host)
	}
}
