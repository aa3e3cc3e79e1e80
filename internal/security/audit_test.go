package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/treykane/sshkit/internal/model"
)

func setupDir(t *testing.T) (string, string, []model.KeyPair) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	priv := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(priv, []byte("private"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(priv+".pub", []byte("ssh-ed25519 AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "config")
	if err := os.WriteFile(cfg, []byte("Host x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	pairs := []model.KeyPair{{
		Name: "id_ed25519", Algorithm: model.AlgorithmEd25519, Bits: 256,
		PrivateKeyPath: priv, PublicKeyPath: priv + ".pub", HasPrivateKey: true,
	}}
	return dir, cfg, pairs
}

func TestAuditCleanDirectory(t *testing.T) {
	dir, cfg, pairs := setupDir(t)
	report := Audit(dir, cfg, pairs)
	if report.Count != 0 {
		t.Fatalf("expected no findings, got %+v", report.Findings)
	}
}

func TestAuditKeyModeThenFixed(t *testing.T) {
	dir, cfg, pairs := setupDir(t)
	if err := os.Chmod(pairs[0].PrivateKeyPath, 0o644); err != nil {
		t.Fatal(err)
	}

	report := Audit(dir, cfg, pairs)
	if report.Count != 1 {
		t.Fatalf("expected exactly one finding, got %+v", report.Findings)
	}
	f := report.Findings[0]
	if f.Kind != model.FindingKeyMode || f.Observed != "0644" || f.Expected != "0600" {
		t.Fatalf("unexpected finding %+v", f)
	}
	if !report.HasHigh() {
		t.Fatal("expected key-mode finding to be high severity")
	}

	if err := os.Chmod(pairs[0].PrivateKeyPath, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := Audit(dir, cfg, pairs).Count; got != 0 {
		t.Fatalf("expected zero findings after chmod, got %d", got)
	}
}

func TestAuditStricterModeIsCompliant(t *testing.T) {
	dir, cfg, pairs := setupDir(t)
	if err := os.Chmod(pairs[0].PrivateKeyPath, 0o400); err != nil {
		t.Fatal(err)
	}
	if got := Audit(dir, cfg, pairs).Count; got != 0 {
		t.Fatalf("0400 should satisfy 0600, got %d findings", got)
	}
}

func TestAuditWeakAndDeprecatedKeys(t *testing.T) {
	dir, cfg, _ := setupDir(t)
	pairs := []model.KeyPair{
		{Name: "old_rsa", Algorithm: model.AlgorithmRSA, Bits: 1024, PublicKeyPath: filepath.Join(dir, "old_rsa.pub")},
		{Name: "ok_rsa", Algorithm: model.AlgorithmRSA, Bits: 4096, PublicKeyPath: filepath.Join(dir, "ok_rsa.pub")},
		{Name: "id_dsa", Algorithm: model.AlgorithmDSA, Bits: 1024, PublicKeyPath: filepath.Join(dir, "id_dsa.pub")},
	}
	report := Audit(dir, cfg, pairs)
	if report.Count != 2 {
		t.Fatalf("expected two findings, got %+v", report.Findings)
	}
	if report.Findings[0].Kind != model.FindingDeprecatedAlgorithm {
		t.Fatalf("high severity finding should sort first, got %+v", report.Findings)
	}
	if report.Findings[1].Kind != model.FindingWeakKey || report.Findings[1].Observed != "1024 bits" {
		t.Fatalf("unexpected weak-key finding %+v", report.Findings[1])
	}
}

func TestAuditSkipsMissingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	report := Audit(dir, filepath.Join(dir, "config"), []model.KeyPair{{PrivateKeyPath: filepath.Join(dir, "k"), HasPrivateKey: true}})
	if report.Count != 0 {
		t.Fatalf("expected no findings, got %+v", report.Findings)
	}
}

func TestFixPermissions(t *testing.T) {
	dir, cfg, pairs := setupDir(t)
	for path, mode := range map[string]os.FileMode{
		dir:                      0o755,
		pairs[0].PrivateKeyPath:  0o644,
		pairs[0].PublicKeyPath:   0o600,
		cfg:                      0o666,
	} {
		if err := os.Chmod(path, mode); err != nil {
			t.Fatal(err)
		}
	}

	changes, err := FixPermissions(dir, cfg, pairs)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 4 {
		t.Fatalf("expected four changes, got %+v", changes)
	}
	if got := Audit(dir, cfg, pairs).Count; got != 0 {
		t.Fatalf("expected clean audit after fix, got %d findings", got)
	}
	st, err := os.Stat(pairs[0].PublicKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o644 {
		t.Fatalf("public key mode = %#o, want 0644", st.Mode().Perm())
	}

	again, err := FixPermissions(dir, cfg, pairs)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second fix should change nothing, got %+v", again)
	}
}
