package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/util"
)

const configBackupPrefix = "config_"

// Store owns one ssh config file. Every mutation reads the current file,
// applies the change in memory, copies the current file into BackupDir and
// atomically replaces the target, so a crash never leaves a partial config.
type Store struct {
	Path      string
	BackupDir string
	Keep      int
	Now       func() time.Time
}

// NewStore creates a store for path with pre-write copies under backupDir.
func NewStore(path, backupDir string, keep int) *Store {
	return &Store{Path: path, BackupDir: backupDir, Keep: keep, Now: time.Now}
}

// Load parses the current file. A missing file is an empty document.
func (s *Store) Load() (ParseResult, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ParseResult{}, nil
		}
		return ParseResult{}, apperr.Wrap(err, apperr.KindFilesystem, "read ssh config")
	}
	return Parse(string(b)), nil
}

// Add appends a Host block for entry.
func (s *Store) Add(entry model.HostEntry) error {
	return s.mutate(func(hosts []model.HostEntry) ([]model.HostEntry, error) {
		return Add(hosts, entry)
	})
}

// Remove deletes the Host block for alias.
func (s *Store) Remove(alias string) error {
	return s.mutate(func(hosts []model.HostEntry) ([]model.HostEntry, error) {
		return Remove(hosts, alias)
	})
}

func (s *Store) mutate(apply func([]model.HostEntry) ([]model.HostEntry, error)) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	hosts, err := apply(doc.Hosts)
	if err != nil {
		return err
	}
	doc.Hosts = hosts
	text := Serialize(doc)
	if lintErr := Lint(text); lintErr != nil {
		slog.Warn("ssh config lint", "path", s.Path, "error", lintErr)
	}
	if err := s.backupCurrent(); err != nil {
		return err
	}
	return s.writeAtomic([]byte(text))
}

// backupCurrent copies the current file into BackupDir. Nothing is copied when
// the file does not exist yet.
func (s *Store) backupCurrent() error {
	current, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Wrap(err, apperr.KindFilesystem, "read ssh config for backup")
	}
	if err := os.MkdirAll(s.BackupDir, util.DirMode); err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "create backup directory")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stamp := now().Format(util.TimestampLayout)
	name := configBackupPrefix + stamp + ".bak"
	for i := 1; fileExists(filepath.Join(s.BackupDir, name)); i++ {
		name = fmt.Sprintf("%s%s_%d.bak", configBackupPrefix, stamp, i)
	}
	if err := os.WriteFile(filepath.Join(s.BackupDir, name), current, util.ConfigMode); err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "write ssh config backup")
	}
	s.pruneBackups()
	return nil
}

func (s *Store) pruneBackups() {
	if s.Keep <= 0 {
		return
	}
	matches, err := filepath.Glob(filepath.Join(s.BackupDir, configBackupPrefix+"*.bak"))
	if err != nil || len(matches) <= s.Keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-s.Keep] {
		if err := os.Remove(old); err != nil {
			slog.Warn("prune config backup", "path", old, "error", err)
		}
	}
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, util.DirMode); err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "create ssh directory")
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return apperr.Wrap(err, apperr.KindFilesystem, "create temporary config")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperr.Wrap(err, apperr.KindFilesystem, "write temporary config")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperr.Wrap(err, apperr.KindFilesystem, "sync temporary config")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperr.Wrap(err, apperr.KindFilesystem, "close temporary config")
	}
	if err := os.Chmod(tmpName, util.ConfigMode); err != nil {
		cleanup()
		return apperr.Wrap(err, apperr.KindFilesystem, "set config permissions")
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		cleanup()
		return apperr.Wrap(err, apperr.KindFilesystem, "replace ssh config")
	}
	return nil
}

// Lint checks that OpenSSH-style parsing accepts text. It is advisory: the
// store's own parser decides what is written.
func Lint(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, err := ssh_config.Decode(bytes.NewReader([]byte(text))); err != nil {
		return fmt.Errorf("ssh config lint: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
