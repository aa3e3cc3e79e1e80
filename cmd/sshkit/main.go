// Package main is the entry point for the sshkit binary.
//
// sshkit manages the contents of ~/.ssh from one terminal program: key pairs,
// the ssh agent, the client config, permission audits and backups. It also
// walks through passwordless login setup for a remote account.
//
// Usage:
//
//	sshkit                # launch the interactive menu
//	sshkit --quick-setup  # passwordless setup with line prompts
//	sshkit doctor         # check tools, agent and key hygiene
//	sshkit audit --json   # permission and key strength findings
//
// The command tree lives in internal/cli and the menu in internal/ui.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/cli"
	"github.com/treykane/sshkit/internal/keys"
)

func main() {
	// ssh-keygen runs this binary as its askpass helper for passphrases.
	if reply, ok := keys.AskpassReply(os.Args, os.Getenv); ok {
		fmt.Println(reply)
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		// Errors carry a user-safe message; raw tool output only goes to the log.
		fmt.Fprintln(os.Stderr, "Error:", apperr.UserMessage(err, true))
		os.Exit(1)
	}
}
