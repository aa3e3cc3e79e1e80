package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the port assumed for hosts that do not set one.
const DefaultPort = 22

// Directive is one line of a host block that sshkit does not model as a typed
// field. Name and Value keep their original spelling. Opaque lines (comments,
// malformed text) only carry Raw.
type Directive struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// Opaque reports whether the directive is preserved as raw text.
func (d Directive) Opaque() bool {
	return d.Name == ""
}

// HostEntry is one Host block of the ssh config.
type HostEntry struct {
	Alias          string      `json:"alias"`
	HostName       string      `json:"host_name,omitempty"`
	User           string      `json:"user,omitempty"`
	Port           int         `json:"port,omitempty"`
	IdentityFile   string      `json:"identity_file,omitempty"`
	IdentitiesOnly bool        `json:"identities_only,omitempty"`
	Extra          []Directive `json:"extra,omitempty"`
}

// DisplayTarget is the address shown for h: HostName when set, else the alias.
func (h HostEntry) DisplayTarget() string {
	if h.HostName != "" {
		return h.HostName
	}
	return h.Alias
}

// EffectivePort returns the configured port or DefaultPort when unset.
func (h HostEntry) EffectivePort() int {
	if h.Port == 0 {
		return DefaultPort
	}
	return h.Port
}

// Algorithm identifies the key type of a key pair.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = "ed25519"
	AlgorithmRSA     Algorithm = "rsa"
	AlgorithmECDSA   Algorithm = "ecdsa"
	AlgorithmDSA     Algorithm = "dsa"
	AlgorithmUnknown Algorithm = "unknown"
)

// ParseAlgorithm maps user input to a generatable algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ed25519":
		return AlgorithmEd25519, nil
	case "rsa":
		return AlgorithmRSA, nil
	case "ecdsa":
		return AlgorithmECDSA, nil
	default:
		return "", fmt.Errorf("unsupported key type %q (use ed25519, rsa or ecdsa)", s)
	}
}

// KeyPair is a local public/private key pair. It is derived from the
// filesystem on every scan.
type KeyPair struct {
	Name           string    `json:"name"`
	Algorithm      Algorithm `json:"algorithm"`
	Bits           int       `json:"bits,omitempty"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	PublicKeyPath  string    `json:"public_key_path"`
	PrivateKeyPath string    `json:"private_key_path"`
	HasPrivateKey  bool      `json:"has_private_key"`
	HasPassphrase  bool      `json:"has_passphrase"`
	LoadedInAgent  bool      `json:"loaded_in_agent"`
}

// Label is the one-line list entry for k: name, algorithm and size.
func (k KeyPair) Label() string {
	bits := ""
	if k.Bits > 0 {
		bits = fmt.Sprintf(" %d", k.Bits)
	}
	return fmt.Sprintf("%s (%s%s)", k.Name, k.Algorithm, bits)
}

// LoadedKey is one identity reported by the authentication agent.
type LoadedKey struct {
	Bits        int    `json:"bits,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Comment     string `json:"comment,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Target is the remote account the wizard provisions.
type Target struct {
	User string `json:"user,omitempty"`
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// Destination renders user@host for ssh arguments.
func (t Target) Destination() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

func (t Target) String() string {
	if t.Port == 0 || t.Port == DefaultPort {
		return t.Destination()
	}
	return fmt.Sprintf("%s:%d", t.Destination(), t.Port)
}

// ParseTarget parses hostname, user@hostname, hostname:port or
// user@hostname:port. A suffix that is not a valid port stays part of the host.
func ParseTarget(input string) (Target, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Target{}, fmt.Errorf("destination cannot be empty")
	}

	t := Target{Port: DefaultPort}
	if at := strings.LastIndex(input, "@"); at > 0 {
		t.User = input[:at]
		input = input[at+1:]
	}
	if colon := strings.LastIndex(input, ":"); colon > 0 {
		if port, err := strconv.Atoi(input[colon+1:]); err == nil && port > 0 && port <= 65535 {
			t.Port = port
			input = input[:colon]
		}
	}
	t.Host = input
	if t.Host == "" {
		return Target{}, fmt.Errorf("hostname cannot be empty")
	}
	if strings.ContainsAny(t.Host, " \t") {
		return Target{}, fmt.Errorf("hostname cannot contain whitespace")
	}
	return t, nil
}

// StepResult is the outcome of one wizard step. The zero value means the step
// has not run yet.
type StepResult string

const (
	StepPending StepResult = ""
	StepOK      StepResult = "ok"
	StepFailed  StepResult = "failed"
	StepSkipped StepResult = "skipped"
)

// WizardSteps is the number of steps in the passwordless setup flow.
const WizardSteps = 5

// WizardSession carries the state of one passwordless setup run.
type WizardSession struct {
	SelectedKey    *KeyPair
	Target         *Target
	Results        [WizardSteps]StepResult
	LastStepResult StepResult
}

// Record stores the outcome of step (1-based).
func (s *WizardSession) Record(step int, res StepResult) {
	if step < 1 || step > WizardSteps {
		return
	}
	s.Results[step-1] = res
	s.LastStepResult = res
}

// Result returns the outcome of step (1-based).
func (s *WizardSession) Result(step int) StepResult {
	if step < 1 || step > WizardSteps {
		return StepPending
	}
	return s.Results[step-1]
}

// FindingKind classifies a security finding.
type FindingKind string

const (
	FindingDirMode             FindingKind = "dir-mode"
	FindingKeyMode             FindingKind = "key-mode"
	FindingConfigMode          FindingKind = "config-mode"
	FindingWeakKey             FindingKind = "weak-key"
	FindingDeprecatedAlgorithm FindingKind = "deprecated-algorithm"
)

// Severity ranks audit findings and doctor issues.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SecurityFinding is a single policy deviation reported by the auditor.
type SecurityFinding struct {
	Subject  string      `json:"subject"`
	Kind     FindingKind `json:"kind"`
	Observed string      `json:"observed"`
	Expected string      `json:"expected"`
	Severity Severity    `json:"severity"`
}

// BackupArchive is one snapshot of the credential directory.
type BackupArchive struct {
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
}
