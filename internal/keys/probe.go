package keys

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/treykane/sshkit/internal/model"
)

// PublicKeyInfo is what a probe learns from a public key file.
type PublicKeyInfo struct {
	Algorithm   model.Algorithm
	Bits        int
	Fingerprint string
	Comment     string
}

// Probe inspects key files on behalf of the inventory.
type Probe interface {
	Inspect(pubPath string) (PublicKeyInfo, error)
	// RequiresPassphrase reports whether the private key cannot be read
	// without a passphrase. Any read failure counts as protected.
	RequiresPassphrase(privPath string) bool
}

// CryptoProbe reads keys with golang.org/x/crypto/ssh.
type CryptoProbe struct{}

// Inspect parses the authorized_keys formatted file at pubPath.
func (CryptoProbe) Inspect(pubPath string) (PublicKeyInfo, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return PublicKeyInfo{}, fmt.Errorf("read public key: %w", err)
	}
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return PublicKeyInfo{}, fmt.Errorf("parse public key %s: %w", pubPath, err)
	}
	alg, bits := describe(pub)
	return PublicKeyInfo{
		Algorithm:   alg,
		Bits:        bits,
		Fingerprint: ssh.FingerprintSHA256(pub),
		Comment:     strings.TrimSpace(comment),
	}, nil
}

// RequiresPassphrase reports whether the private key at privPath cannot be
// parsed without a passphrase. Unreadable keys count as encrypted.
func (CryptoProbe) RequiresPassphrase(privPath string) bool {
	data, err := os.ReadFile(privPath)
	if err != nil {
		return true
	}
	_, err = ssh.ParseRawPrivateKey(data)
	return err != nil
}

func describe(pub ssh.PublicKey) (model.Algorithm, int) {
	switch pub.Type() {
	case ssh.KeyAlgoED25519, ssh.KeyAlgoSKED25519:
		return model.AlgorithmEd25519, 256
	case ssh.KeyAlgoRSA:
		if cp, ok := pub.(ssh.CryptoPublicKey); ok {
			if k, ok := cp.CryptoPublicKey().(*rsa.PublicKey); ok {
				return model.AlgorithmRSA, k.N.BitLen()
			}
		}
		return model.AlgorithmRSA, 0
	case ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521, ssh.KeyAlgoSKECDSA256:
		if cp, ok := pub.(ssh.CryptoPublicKey); ok {
			if k, ok := cp.CryptoPublicKey().(*ecdsa.PublicKey); ok {
				return model.AlgorithmECDSA, k.Curve.Params().BitSize
			}
		}
		return model.AlgorithmECDSA, 0
	case "ssh-dss":
		return model.AlgorithmDSA, 1024
	default:
		return model.AlgorithmUnknown, 0
	}
}
