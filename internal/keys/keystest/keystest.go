// Package keystest writes real key pairs into temporary directories.
package keystest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Options control the generated pair.
type Options struct {
	// Type is "ed25519" (default), "rsa" or "ecdsa".
	Type       string
	Bits       int
	Comment    string
	Passphrase string
}

// WritePair creates dir/name and dir/name.pub and returns the private path.
func WritePair(t testing.TB, dir, name string, opts Options) string {
	t.Helper()
	var (
		priv crypto.PrivateKey
		pub  crypto.PublicKey
	)
	switch opts.Type {
	case "rsa":
		bits := opts.Bits
		if bits == 0 {
			bits = 2048
		}
		k, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			t.Fatalf("rsa key: %v", err)
		}
		priv, pub = k, &k.PublicKey
	case "ecdsa":
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("ecdsa key: %v", err)
		}
		priv, pub = k, &k.PublicKey
	default:
		p, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("ed25519 key: %v", err)
		}
		priv, pub = k, p
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	var block *pem.Block
	if opts.Passphrase != "" {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, opts.Comment, []byte(opts.Passphrase))
	} else {
		block, err = ssh.MarshalPrivateKey(priv, opts.Comment)
	}
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}

	privPath := filepath.Join(dir, name)
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	line := ssh.MarshalAuthorizedKey(sshPub)
	if opts.Comment != "" {
		line = append(line[:len(line)-1], []byte(" "+opts.Comment+"\n")...)
	}
	if err := os.WriteFile(privPath+".pub", line, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privPath
}

// Fingerprint returns the SHA256 fingerprint of the public key next to privPath.
func Fingerprint(t testing.TB, privPath string) string {
	t.Helper()
	data, err := os.ReadFile(privPath + ".pub")
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	return ssh.FingerprintSHA256(pub)
}
