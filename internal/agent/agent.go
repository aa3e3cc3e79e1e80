// Package agent reports and changes the state of the user's authentication
// agent. Two backends exist: the ssh-add tool (default) and a direct client on
// the agent socket.
package agent

import (
	"context"
	"strings"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient"
)

// State is the agent's availability.
type State string

const (
	Running            State = "running"
	RunningNoKeys      State = "running-no-keys"
	NotRunning         State = "not-running"
	CommunicationError State = "communication-error"
)

// Status is one observation of the agent.
type Status struct {
	State State
	Keys  []model.LoadedKey
	// Detail carries the tool or socket error behind CommunicationError.
	Detail string
}

// Controller is the agent capability used by the rest of sshkit.
type Controller interface {
	Status(ctx context.Context) Status
	Add(ctx context.Context, privPath string) error
	Remove(ctx context.Context, privPath string) error
	RemoveAll(ctx context.Context) error
	// LoadedKeys lists loaded identities, empty when the agent is unusable.
	LoadedKeys(ctx context.Context) []model.LoadedKey
}

var (
	// ErrAgentAdd reports that a key could not be loaded.
	ErrAgentAdd = apperr.New(apperr.KindDelegated, "could not add key to agent")
	// ErrAgentRemove reports that a key could not be unloaded.
	ErrAgentRemove = apperr.New(apperr.KindDelegated, "could not remove key from agent")
)

// New selects a controller for backend. Unknown backends fall back to ssh-add.
func New(backend string, exitCodes map[int]string, runner sshclient.Runner) Controller {
	if strings.EqualFold(strings.TrimSpace(backend), appconfig.AgentBackendSocket) {
		return NewSocket()
	}
	return NewCLI(runner, exitCodes)
}

// ParseState maps a configured state name to a State. Unknown names are
// communication errors.
func ParseState(name string) State {
	switch s := State(strings.ToLower(strings.TrimSpace(name))); s {
	case Running, RunningNoKeys, NotRunning:
		return s
	default:
		return CommunicationError
	}
}

// Label is the human-readable state shown in the TUI.
func (s State) Label() string {
	switch s {
	case Running:
		return "running"
	case RunningNoKeys:
		return "running, no keys loaded"
	case NotRunning:
		return "not running"
	default:
		return "communication error"
	}
}
