// Package logging routes slog output to a file in the sshkit config
// directory. The terminal belongs to the TUI, so nothing is logged to stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/treykane/sshkit/internal/appconfig"
)

// FileName is the log file inside the config directory.
const FileName = "sshkit.log"

// ParseLevel maps a config level name to a slog level (info by default).
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger writing to w.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Setup installs the default slog logger. The returned closer flushes the log
// file; callers defer it. When the file cannot be opened, logs are discarded.
func Setup(level string) (io.Closer, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		slog.SetDefault(New(io.Discard, level))
		return io.NopCloser(nil), err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.SetDefault(New(io.Discard, level))
		return io.NopCloser(nil), err
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.SetDefault(New(io.Discard, level))
		return io.NopCloser(nil), err
	}
	slog.SetDefault(New(f, level))
	return f, nil
}
