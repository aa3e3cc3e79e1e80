// Package sshclienttest provides a scripted sshclient.Runner for tests.
package sshclienttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/treykane/sshkit/internal/sshclient"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
	Env  []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is what the runner returns for a matching command line.
type Response struct {
	Result sshclient.Result
	Err    error
	// Effect runs before the response is returned, e.g. to create files the
	// real tool would have written.
	Effect func(args []string)
}

// Runner answers commands by prefix. The longest matching prefix of
// "name arg1 arg2 ..." wins; unmatched commands succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	missing   map[string]bool
	Calls     []Call
}

// New creates an empty runner.
func New() *Runner {
	return &Runner{responses: map[string]Response{}, missing: map[string]bool{}}
}

// On registers a response for commands starting with prefix.
func (r *Runner) On(prefix string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = resp
	return r
}

// Missing makes LookPath fail for name.
func (r *Runner) Missing(name string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing[name] = true
	return r
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) (sshclient.Result, error) {
	return r.RunEnv(ctx, nil, name, args...)
}

func (r *Runner) RunEnv(_ context.Context, env []string, name string, args ...string) (sshclient.Result, error) {
	r.mu.Lock()
	call := Call{Name: name, Args: append([]string(nil), args...), Env: append([]string(nil), env...)}
	r.Calls = append(r.Calls, call)
	line := call.String()
	var (
		best  Response
		found bool
		size  int
	)
	for prefix, resp := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= size {
			best, found, size = resp, true, len(prefix)
		}
	}
	r.mu.Unlock()

	if !found {
		return sshclient.Result{}, nil
	}
	if best.Effect != nil {
		best.Effect(args)
	}
	return best.Result, best.Err
}

func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Last returns the most recent call.
func (r *Runner) Last() Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Calls) == 0 {
		return Call{}
	}
	return r.Calls[len(r.Calls)-1]
}
