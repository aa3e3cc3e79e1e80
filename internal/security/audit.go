// Package security audits the credential directory against the permission and
// key-strength policy, and repairs permissions on request.
package security

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/util"
)

// Report is the result of one audit.
type Report struct {
	Findings []model.SecurityFinding `json:"findings"`
	Count    int                     `json:"count"`
}

// HasHigh reports whether any finding is high severity.
func (r Report) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == model.SeverityHigh {
			return true
		}
	}
	return false
}

// Audit inspects dir, the private key of every pair and configPath. It never
// changes anything on disk. Missing files are skipped.
func Audit(dir, configPath string, pairs []model.KeyPair) Report {
	var findings []model.SecurityFinding
	checkMode(&findings, dir, util.DirMode, model.FindingDirMode, model.SeverityHigh)
	for _, p := range pairs {
		if p.HasPrivateKey {
			checkMode(&findings, p.PrivateKeyPath, util.PrivateKeyMode, model.FindingKeyMode, model.SeverityHigh)
		}
		switch {
		case p.Algorithm == model.AlgorithmDSA:
			findings = append(findings, model.SecurityFinding{
				Subject:  p.PublicKeyPath,
				Kind:     model.FindingDeprecatedAlgorithm,
				Observed: "dsa",
				Expected: "ed25519, ecdsa or rsa",
				Severity: model.SeverityHigh,
			})
		case p.Algorithm == model.AlgorithmRSA && p.Bits > 0 && p.Bits < util.MinRSABits:
			findings = append(findings, model.SecurityFinding{
				Subject:  p.PublicKeyPath,
				Kind:     model.FindingWeakKey,
				Observed: fmt.Sprintf("%d bits", p.Bits),
				Expected: fmt.Sprintf(">= %d bits", util.MinRSABits),
				Severity: model.SeverityMedium,
			})
		}
	}
	checkMode(&findings, configPath, util.ConfigMode, model.FindingConfigMode, model.SeverityMedium)

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		if findings[i].Subject != findings[j].Subject {
			return findings[i].Subject < findings[j].Subject
		}
		return findings[i].Kind < findings[j].Kind
	})
	return Report{Findings: findings, Count: len(findings)}
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Compliant reports whether mode grants nothing beyond expected.
func Compliant(mode, expected os.FileMode) bool {
	return mode.Perm()&^expected == 0
}

func checkMode(findings *[]model.SecurityFinding, path string, expected os.FileMode, kind model.FindingKind, sev model.Severity) {
	if path == "" {
		return
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		*findings = append(*findings, model.SecurityFinding{
			Subject:  path,
			Kind:     kind,
			Observed: fmt.Sprintf("unreadable: %v", err),
			Expected: fmt.Sprintf("%#o", expected),
			Severity: model.SeverityLow,
		})
		return
	}
	if mode := st.Mode().Perm(); !Compliant(mode, expected) {
		*findings = append(*findings, model.SecurityFinding{
			Subject:  path,
			Kind:     kind,
			Observed: fmt.Sprintf("%#o", mode),
			Expected: fmt.Sprintf("%#o", expected),
			Severity: sev,
		})
	}
}

// Change is one permission repair.
type Change struct {
	Path string      `json:"path"`
	From os.FileMode `json:"from"`
	To   os.FileMode `json:"to"`
}

// FixPermissions sets the policy modes on dir, every key file and configPath
// and returns what changed. Files already at the policy mode are untouched.
func FixPermissions(dir, configPath string, pairs []model.KeyPair) ([]Change, error) {
	type target struct {
		path string
		mode os.FileMode
	}
	targets := []target{{dir, util.DirMode}}
	for _, p := range pairs {
		if p.HasPrivateKey {
			targets = append(targets, target{p.PrivateKeyPath, util.PrivateKeyMode})
		}
		targets = append(targets, target{p.PublicKeyPath, util.PublicKeyMode})
	}
	targets = append(targets, target{configPath, util.ConfigMode})

	var changes []Change
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		st, err := os.Stat(t.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return changes, apperr.Wrap(err, apperr.KindFilesystem, "inspect "+t.path)
		}
		if st.Mode().Perm() == t.mode {
			continue
		}
		if err := os.Chmod(t.path, t.mode); err != nil {
			return changes, apperr.Wrap(err, apperr.KindFilesystem, "chmod "+t.path)
		}
		changes = append(changes, Change{Path: t.path, From: st.Mode().Perm(), To: t.mode})
		slog.Info("permissions fixed", "path", t.path, "from", fmt.Sprintf("%#o", st.Mode().Perm()), "to", fmt.Sprintf("%#o", t.mode))
	}
	return changes, nil
}
