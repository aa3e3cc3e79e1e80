// Package keys enumerates, inspects, generates and deletes the key pairs in
// the credential directory. Pairs are derived from the filesystem on every
// scan; nothing is cached between calls.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
)

// AgentKeys lists the keys currently held by the authentication agent.
type AgentKeys interface {
	LoadedKeys(ctx context.Context) []model.LoadedKey
}

// Inventory scans one credential directory.
type Inventory struct {
	Dir   string
	Probe Probe
	Agent AgentKeys
}

// NewInventory creates an inventory using the x/crypto probe.
func NewInventory(dir string, agent AgentKeys) *Inventory {
	return &Inventory{Dir: dir, Probe: CryptoProbe{}, Agent: agent}
}

// Scan returns every pair with a public key in Dir, sorted by name. Problems
// with individual pairs are returned as warnings; a missing directory is an
// empty inventory.
func (inv *Inventory) Scan(ctx context.Context) ([]model.KeyPair, []string, error) {
	entries, err := os.ReadDir(inv.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, apperr.Wrap(err, apperr.KindFilesystem, "read key directory")
	}

	probe := inv.Probe
	if probe == nil {
		probe = CryptoProbe{}
	}
	var loaded []model.LoadedKey
	if inv.Agent != nil {
		loaded = inv.Agent.LoadedKeys(ctx)
	}

	var (
		pairs    []model.KeyPair
		warnings []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pub") {
			continue
		}
		pubPath := filepath.Join(inv.Dir, e.Name())
		pair := model.KeyPair{
			Name:           strings.TrimSuffix(e.Name(), ".pub"),
			Algorithm:      model.AlgorithmUnknown,
			PublicKeyPath:  pubPath,
			PrivateKeyPath: strings.TrimSuffix(pubPath, ".pub"),
		}
		if info, err := probe.Inspect(pubPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", e.Name(), err))
		} else {
			pair.Algorithm = info.Algorithm
			pair.Bits = info.Bits
			pair.Fingerprint = info.Fingerprint
			pair.Comment = info.Comment
		}
		if st, err := os.Stat(pair.PrivateKeyPath); err == nil && st.Mode().IsRegular() {
			pair.HasPrivateKey = true
			pair.HasPassphrase = probe.RequiresPassphrase(pair.PrivateKeyPath)
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: private key missing", pair.Name))
		}
		pair.LoadedInAgent = isLoaded(pair, loaded)
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	slog.Debug("key scan", "dir", inv.Dir, "pairs", len(pairs), "warnings", len(warnings))
	return pairs, warnings, nil
}

// Usable filters pairs down to those with a private key on disk.
func Usable(pairs []model.KeyPair) []model.KeyPair {
	var out []model.KeyPair
	for _, p := range pairs {
		if p.HasPrivateKey {
			out = append(out, p)
		}
	}
	return out
}

// PreferredKey picks ed25519 over ecdsa over rsa among usable pairs.
func PreferredKey(pairs []model.KeyPair) (model.KeyPair, bool) {
	usable := Usable(pairs)
	for _, alg := range []model.Algorithm{model.AlgorithmEd25519, model.AlgorithmECDSA, model.AlgorithmRSA} {
		for _, p := range usable {
			if p.Algorithm == alg {
				return p, true
			}
		}
	}
	if len(usable) > 0 {
		return usable[0], true
	}
	return model.KeyPair{}, false
}

// ReadPublicKey returns the trimmed contents of a public key file.
func ReadPublicKey(pubPath string) (string, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindFilesystem, "read public key "+filepath.Base(pubPath))
	}
	return strings.TrimSpace(string(data)), nil
}

func isLoaded(pair model.KeyPair, loaded []model.LoadedKey) bool {
	for _, k := range loaded {
		if pair.Fingerprint != "" && k.Fingerprint == pair.Fingerprint {
			return true
		}
		if k.Comment != "" && (k.Comment == pair.PrivateKeyPath || (pair.Comment != "" && k.Comment == pair.Comment)) {
			return true
		}
	}
	return false
}
