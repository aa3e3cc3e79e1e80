package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/sshclient"
	"github.com/treykane/sshkit/internal/util"
)

// GenerateRequest describes a new key pair.
type GenerateRequest struct {
	Algorithm  model.Algorithm
	Bits       int
	Path       string // private key path; the public key is Path + ".pub"
	Comment    string
	Passphrase string
}

// Generator creates and modifies key pairs.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) error
	ChangePassphrase(ctx context.Context, privPath, oldPass, newPass string) error
}

// Default sizes used when a request leaves Bits unset.
const (
	DefaultRSABits   = 4096
	DefaultECDSABits = 521
)

// Keygen delegates to ssh-keygen.
type Keygen struct {
	Runner sshclient.Runner
	// Askpass is the executable ssh-keygen calls for non-empty passphrases.
	Askpass string
}

// NewKeygen creates a generator backed by runner that answers passphrase
// prompts from the running sshkit binary.
func NewKeygen(runner sshclient.Runner) *Keygen {
	self, err := os.Executable()
	if err != nil {
		slog.Warn("cannot locate own executable, passphrase-protected keys unavailable", "error", err)
	}
	return &Keygen{Runner: runner, Askpass: self}
}

// KeygenArgs builds the ssh-keygen argv for req. A non-empty passphrase is
// left off so ssh-keygen prompts for it.
func KeygenArgs(req GenerateRequest) []string {
	alg := req.Algorithm
	if alg == "" {
		alg = model.AlgorithmEd25519
	}
	args := []string{"-t", string(alg)}
	bits := req.Bits
	switch alg {
	case model.AlgorithmRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
	case model.AlgorithmECDSA:
		if bits == 0 {
			bits = DefaultECDSABits
		}
	default:
		bits = 0
	}
	if bits > 0 {
		args = append(args, "-b", strconv.Itoa(bits))
	}
	args = append(args, "-f", req.Path)
	if req.Passphrase == "" {
		args = append(args, "-N", "")
	}
	return append(args, "-C", req.Comment, "-q")
}

// ChangePassphraseArgs builds the ssh-keygen -p argv. Only empty passphrases
// appear on it.
func ChangePassphraseArgs(privPath, oldPass, newPass string) []string {
	args := []string{"-p", "-f", privPath}
	if oldPass == "" {
		args = append(args, "-P", "")
	}
	if newPass == "" {
		args = append(args, "-N", "")
	}
	return append(args, "-q")
}

func (k *Keygen) run(ctx context.Context, oldPass, newPass string, args []string) (sshclient.Result, error) {
	if oldPass == "" && newPass == "" {
		return k.Runner.Run(ctx, "ssh-keygen", args...)
	}
	if k.Askpass == "" {
		return sshclient.Result{}, apperr.New(apperr.KindMissing, "sshkit executable not found for passphrase entry")
	}
	return k.Runner.RunEnv(ctx, AskpassEnv(k.Askpass, oldPass, newPass), "ssh-keygen", args...)
}

func (k *Keygen) Generate(ctx context.Context, req GenerateRequest) error {
	if strings.TrimSpace(req.Path) == "" {
		return apperr.New(apperr.KindConstraint, "key path cannot be empty")
	}
	if req.Algorithm == model.AlgorithmRSA && req.Bits != 0 && req.Bits < util.MinRSABits {
		return apperr.Newf(apperr.KindConstraint, "RSA keys must be at least %d bits", util.MinRSABits)
	}
	for _, p := range []string{req.Path, req.Path + ".pub"} {
		if _, err := os.Stat(p); err == nil {
			return apperr.Newf(apperr.KindConstraint, "%s already exists", filepath.Base(p))
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.Path), util.DirMode); err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "create key directory")
	}

	res, err := k.run(ctx, "", req.Passphrase, KeygenArgs(req))
	if apperr.Is(err, apperr.KindMissing) {
		return err
	}
	if err != nil {
		return apperr.Delegated(err, "ssh-keygen could not be run", res.Output())
	}
	if !res.Success() {
		return apperr.Delegated(fmt.Errorf("ssh-keygen exited with status %d", res.ExitCode), "key generation failed", res.Output())
	}
	if _, err := os.Stat(req.Path); err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "generated key not found")
	}
	slog.Info("key generated", "path", req.Path, "algorithm", req.Algorithm)
	return nil
}

func (k *Keygen) ChangePassphrase(ctx context.Context, privPath, oldPass, newPass string) error {
	res, err := k.run(ctx, oldPass, newPass, ChangePassphraseArgs(privPath, oldPass, newPass))
	if apperr.Is(err, apperr.KindMissing) {
		return err
	}
	if err != nil {
		return apperr.Delegated(err, "ssh-keygen could not be run", res.Output())
	}
	if !res.Success() {
		msg := "passphrase change failed"
		if strings.Contains(strings.ToLower(res.Output()), "incorrect passphrase") {
			msg = "current passphrase is incorrect"
		}
		return apperr.Delegated(fmt.Errorf("ssh-keygen exited with status %d", res.ExitCode), msg, res.Output())
	}
	slog.Info("passphrase changed", "path", privPath)
	return nil
}

// Delete removes both files of pair. Files that are already gone are ignored.
func Delete(pair model.KeyPair) error {
	for _, p := range []string{pair.PrivateKeyPath, pair.PublicKeyPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.Wrap(err, apperr.KindFilesystem, "delete "+filepath.Base(p))
		}
	}
	slog.Info("key deleted", "name", pair.Name)
	return nil
}

// DefaultKeyPath returns the conventional file name for alg inside dir.
func DefaultKeyPath(dir string, alg model.Algorithm) string {
	if alg == "" {
		alg = model.AlgorithmEd25519
	}
	return filepath.Join(dir, "id_"+string(alg))
}
