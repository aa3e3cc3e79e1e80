// Package util provides common utility functions and constants used across
// sshkit. It imports no other internal/* package so every layer can depend on it.
package util

import (
	"os"
	"time"
)

// Permission policy for the credential directory and its files. The security
// auditor reports deviations from these modes and fix-permissions applies them.
const (
	DirMode        os.FileMode = 0o700
	PrivateKeyMode os.FileMode = 0o600
	PublicKeyMode  os.FileMode = 0o644
	ConfigMode     os.FileMode = 0o600
)

const (
	// MinRSABits is the smallest RSA modulus the auditor accepts.
	MinRSABits = 2048

	// DefaultProbeTimeout bounds a non-interactive connection probe. The probe
	// also runs with BatchMode so it can never wait on a password prompt.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultBackupRetain is how many ssh_backup_* archives survive pruning.
	DefaultBackupRetain = 5

	// DefaultConfigBackupKeep is how many pre-write config copies are kept.
	DefaultConfigBackupKeep = 10

	// BackupDirName is the subdirectory of the credential directory holding
	// archives and pre-write config copies. Archives never include it.
	BackupDirName = "backups"

	// TimestampLayout stamps backup names so they sort lexicographically in
	// capture order.
	TimestampLayout = "20060102_150405"
)
