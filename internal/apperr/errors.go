// Package apperr classifies sshkit failures so callers can decide whether an
// error is a warning that returns control to the current screen or a failure
// of the attempted operation.
package apperr

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind is the error taxonomy shared by the TUI and the CLI.
type Kind string

const (
	// KindConstraint covers duplicate aliases and missing aliases.
	KindConstraint Kind = "constraint-violation"
	// KindMissing covers absent prerequisites: no keys, empty config, no backups.
	KindMissing Kind = "missing-prerequisite"
	// KindDelegated covers a failing external collaborator (ssh, ssh-keygen, ssh-add, ssh-copy-id).
	KindDelegated Kind = "delegated-command-failure"
	// KindFilesystem covers permission and I/O failures on local files.
	KindFilesystem Kind = "filesystem-failure"
)

// Error separates a user-safe message from verbose debug details.
type Error struct {
	Kind        Kind
	UserSafe    string
	DebugDetail string
	Cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.UserSafe)
	if msg == "" {
		msg = "operation failed"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, userSafe string) error {
	return &Error{Kind: kind, UserSafe: userSafe}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, UserSafe: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and user-safe message to err. A nil err stays nil.
func Wrap(err error, kind Kind, userSafe string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, UserSafe: userSafe, Cause: err}
}

// Delegated wraps a failing external command together with its output.
func Delegated(err error, userSafe, output string) error {
	return &Error{Kind: KindDelegated, UserSafe: userSafe, DebugDetail: strings.TrimSpace(output), Cause: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are reported as filesystem failures when they wrap an
// *os.PathError, otherwise as delegated failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		return KindFilesystem
	}
	return KindDelegated
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsWarning reports whether err should be shown as a warning rather than a
// failure. Warnings never abort the session.
func IsWarning(err error) bool {
	k := KindOf(err)
	return k == KindConstraint || k == KindMissing
}

// UserMessage returns a message safe to show in CLI/TUI contexts.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	// Only the outermost error's UserSafe text replaces err.Error(); wrapping
	// with fmt.Errorf keeps the added context visible.
	msg := err.Error()
	if ae, ok := err.(*Error); ok {
		msg = ae.UserSafe
		if msg == "" {
			msg = "operation failed"
		}
	}
	if redact {
		return RedactMessage(msg)
	}
	return msg
}

// DebugMessage returns detailed error text for logs.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && strings.TrimSpace(ae.DebugDetail) != "" {
		return err.Error() + ": " + ae.DebugDetail
	}
	return err.Error()
}

// RedactMessage replaces the home directory with "~" in user-visible text.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return strings.ReplaceAll(msg, home, "~")
	}
	return msg
}
