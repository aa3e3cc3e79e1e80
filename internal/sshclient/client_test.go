package sshclient_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/sshclient/sshclienttest"
)

func TestProbeArgs(t *testing.T) {
	args := sshclient.ProbeArgs(model.Target{User: "deploy", Host: "10.0.0.5", Port: 2222}, "/k/id_ed25519", 10*time.Second)
	assert.Equal(t, []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=10",
		"-o", "StrictHostKeyChecking=accept-new",
		"-i", "/k/id_ed25519", "-o", "IdentitiesOnly=yes",
		"-p", "2222",
		"deploy@10.0.0.5", "true",
	}, args)
}

func TestProbeArgsDefaultPortOmitted(t *testing.T) {
	args := sshclient.ProbeArgs(model.Target{Host: "box", Port: 22}, "", time.Second)
	assert.NotContains(t, args, "-p")
	assert.NotContains(t, args, "-i")
	assert.Equal(t, "box", args[len(args)-2])
}

func TestBatchProberSuccess(t *testing.T) {
	r := sshclienttest.New()
	p := sshclient.NewBatchProber(r, 3*time.Second)
	require.NoError(t, p.Probe(context.Background(), model.Target{Host: "box"}, "/k/id"))
	assert.Equal(t, "ssh", r.Last().Name)
	assert.Contains(t, r.Last().Args, "ConnectTimeout=3")
}

func TestBatchProberAuthFailure(t *testing.T) {
	r := sshclienttest.New().On("ssh", sshclienttest.Response{
		Result: sshclient.Result{ExitCode: 255, Stderr: []byte("deploy@box: Permission denied (publickey).")},
	})
	err := sshclient.NewBatchProber(r, time.Second).Probe(context.Background(), model.Target{User: "deploy", Host: "box"}, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDelegated))
	assert.Equal(t, "permission denied on deploy@box", apperr.UserMessage(err, false))
	assert.Contains(t, apperr.DebugMessage(err), "publickey")
}

func TestBatchProberTimeout(t *testing.T) {
	r := sshclienttest.New().On("ssh", sshclienttest.Response{Err: context.DeadlineExceeded})
	err := sshclient.NewBatchProber(r, time.Second).Probe(context.Background(), model.Target{Host: "box"}, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDelegated))
}

func TestClassifyFailure(t *testing.T) {
	cases := map[string]string{
		"ssh: connect to host x port 22: Connection refused": "connection refused by x",
		"ssh: Could not resolve hostname x":                  "cannot resolve hostname x",
		"something else":                                     "ssh to x failed",
	}
	for out, want := range cases {
		assert.Equal(t, want, sshclient.ClassifyFailure("x", out))
	}
}

func TestCopyCommandPrefersSSHCopyID(t *testing.T) {
	pub := writePub(t)
	r := sshclienttest.New()
	cmd, err := sshclient.CopyKeyCommand{Runner: r}.CopyCommand(model.Target{User: "u", Host: "h", Port: 2200}, pub)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/ssh-copy-id", cmd.Path)
	assert.Equal(t, []string{"/usr/bin/ssh-copy-id", "-i", pub, "-p", "2200", "u@h"}, cmd.Args)
	assert.Nil(t, cmd.Stdin)
}

func TestCopyCommandManualFallback(t *testing.T) {
	pub := writePub(t)
	r := sshclienttest.New().Missing("ssh-copy-id")
	cmd, err := sshclient.CopyKeyCommand{Runner: r}.CopyCommand(model.Target{Host: "h"}, pub)
	require.NoError(t, err)
	require.NotNil(t, cmd.Stdin)
	assert.Equal(t, "h", cmd.Args[1])
	script := cmd.Args[len(cmd.Args)-1]
	for _, part := range []string{"mkdir -p ~/.ssh", "chmod 700 ~/.ssh", "grep -qxF", "chmod 600 ~/.ssh/authorized_keys"} {
		assert.Contains(t, script, part)
	}
}

func TestCopyCommandMissingKey(t *testing.T) {
	_, err := sshclient.CopyKeyCommand{Runner: sshclienttest.New()}.CopyCommand(model.Target{Host: "h"}, filepath.Join(t.TempDir(), "nope.pub"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFilesystem))
}

func TestEnsureBinary(t *testing.T) {
	c := sshclient.NewWithRunner(sshclienttest.New().Missing("ssh-add"))
	assert.NoError(t, c.EnsureBinary("ssh"))
	err := c.EnsureBinary("ssh-add")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ssh-add"))
}

func writePub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_ed25519.pub")
	require.NoError(t, os.WriteFile(path, []byte("ssh-ed25519 AAAAC3Nza test@host\n"), 0o644))
	return path
}
