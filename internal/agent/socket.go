package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	sshagent "golang.org/x/crypto/ssh/agent"

	"github.com/treykane/sshkit/internal/model"
)

// errNoSocket means SSH_AUTH_SOCK is unset or cannot be dialed.
var errNoSocket = errors.New("agent socket unavailable")

// Socket talks to the agent directly over SSH_AUTH_SOCK.
type Socket struct {
	// Dial opens an agent connection. The closer is released after each call.
	Dial func() (sshagent.Agent, io.Closer, error)
}

// NewSocket creates a controller dialing $SSH_AUTH_SOCK.
func NewSocket() *Socket {
	return &Socket{Dial: dialEnv}
}

func dialEnv() (sshagent.Agent, io.Closer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, errNoSocket
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errNoSocket, err)
	}
	return sshagent.NewClient(conn), conn, nil
}

func (s *Socket) with(fn func(sshagent.Agent) error) error {
	a, closer, err := s.Dial()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	return fn(a)
}

// Status dials SSH_AUTH_SOCK and lists identities over the agent protocol.
func (s *Socket) Status(_ context.Context) Status {
	var st Status
	err := s.with(func(a sshagent.Agent) error {
		list, err := a.List()
		if err != nil {
			return err
		}
		for _, k := range list {
			st.Keys = append(st.Keys, loadedKey(k))
		}
		return nil
	})
	switch {
	case errors.Is(err, errNoSocket):
		return Status{State: NotRunning, Detail: err.Error()}
	case err != nil:
		return Status{State: CommunicationError, Detail: err.Error()}
	case len(st.Keys) == 0:
		st.State = RunningNoKeys
	default:
		st.State = Running
	}
	return st
}

func (s *Socket) LoadedKeys(ctx context.Context) []model.LoadedKey {
	return s.Status(ctx).Keys
}

func (s *Socket) Add(_ context.Context, privPath string) error {
	data, err := os.ReadFile(privPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentAdd, err)
	}
	raw, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w: key is passphrase protected; use the ssh-add agent backend", ErrAgentAdd)
		}
		return fmt.Errorf("%w: %v", ErrAgentAdd, err)
	}
	err = s.with(func(a sshagent.Agent) error {
		return a.Add(sshagent.AddedKey{PrivateKey: raw, Comment: privPath})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentAdd, err)
	}
	slog.Info("agent updated", "added", privPath)
	return nil
}

func (s *Socket) Remove(_ context.Context, privPath string) error {
	data, err := os.ReadFile(privPath + ".pub")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentRemove, err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentRemove, err)
	}
	if err := s.with(func(a sshagent.Agent) error { return a.Remove(pub) }); err != nil {
		return fmt.Errorf("%w: %v", ErrAgentRemove, err)
	}
	slog.Info("agent updated", "removed", privPath)
	return nil
}

func (s *Socket) RemoveAll(_ context.Context) error {
	if err := s.with(func(a sshagent.Agent) error { return a.RemoveAll() }); err != nil {
		return fmt.Errorf("%w: %v", ErrAgentRemove, err)
	}
	slog.Info("agent cleared")
	return nil
}

func loadedKey(k *sshagent.Key) model.LoadedKey {
	lk := model.LoadedKey{Fingerprint: ssh.FingerprintSHA256(k), Comment: k.Comment, Type: k.Type()}
	if pub, err := ssh.ParsePublicKey(k.Marshal()); err == nil {
		if cp, ok := pub.(ssh.CryptoPublicKey); ok {
			lk.Bits = cryptoBits(cp)
		}
	}
	return lk
}

func cryptoBits(cp ssh.CryptoPublicKey) int {
	switch k := cp.CryptoPublicKey().(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}
