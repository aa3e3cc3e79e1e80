// Package backup snapshots the credential directory into compressed archives
// and restores them.
package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/util"
)

const (
	archivePrefix = "ssh_backup_"
	archiveSuffix = ".tar.gz"
)

// ErrNoBackups is the warning shown when a restore is requested with nothing
// to restore.
var ErrNoBackups = apperr.New(apperr.KindMissing, "no backups found")

// Manager creates, lists, prunes and restores archives of Dir.
type Manager struct {
	Dir       string
	BackupDir string
	Retain    int
	Archiver  Archiver
	Now       func() time.Time
}

// NewManager creates a manager writing tar.gz archives into backupDir.
func NewManager(dir, backupDir string, retain int) *Manager {
	if retain <= 0 {
		retain = util.DefaultBackupRetain
	}
	return &Manager{Dir: dir, BackupDir: backupDir, Retain: retain, Archiver: TarGz{}, Now: time.Now}
}

// ArchiveName returns the file name for a snapshot taken at t.
func ArchiveName(t time.Time) string {
	return archivePrefix + t.Format(util.TimestampLayout) + archiveSuffix
}

// ParseArchiveName extracts the capture time from an archive file name.
func ParseArchiveName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
	t, err := time.ParseInLocation(util.TimestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Backup archives Dir, excluding BackupDir, then prunes old archives.
func (m *Manager) Backup() (model.BackupArchive, error) {
	if _, err := os.Stat(m.Dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.BackupArchive{}, apperr.New(apperr.KindMissing, "credential directory does not exist")
		}
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "inspect credential directory")
	}
	if err := os.MkdirAll(m.BackupDir, util.DirMode); err != nil {
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "create backup directory")
	}

	at := m.now().Truncate(time.Second)
	path := filepath.Join(m.BackupDir, ArchiveName(at))
	for fileExists(path) {
		at = at.Add(time.Second)
		path = filepath.Join(m.BackupDir, ArchiveName(at))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.PrivateKeyMode)
	if err != nil {
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "create backup archive")
	}
	skip := m.excluded()
	archiver := m.archiver()
	if err := archiver.Create(f, m.Dir, skip); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "write backup archive")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "close backup archive")
	}
	slog.Info("backup created", "path", path)

	if err := m.Prune(); err != nil {
		slog.Warn("prune backups", "error", err)
	}
	return model.BackupArchive{Path: path, CapturedAt: at}, nil
}

// List returns the archives in BackupDir, newest first.
func (m *Manager) List() ([]model.BackupArchive, error) {
	entries, err := os.ReadDir(m.BackupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.Wrap(err, apperr.KindFilesystem, "read backup directory")
	}
	var out []model.BackupArchive
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		at, ok := ParseArchiveName(e.Name())
		if !ok {
			continue
		}
		out = append(out, model.BackupArchive{Path: filepath.Join(m.BackupDir, e.Name()), CapturedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

// Prune deletes all but the Retain newest archives.
func (m *Manager) Prune() error {
	list, err := m.List()
	if err != nil {
		return err
	}
	retain := m.Retain
	if retain <= 0 {
		retain = util.DefaultBackupRetain
	}
	if len(list) <= retain {
		return nil
	}
	for _, old := range list[retain:] {
		if err := os.Remove(old.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(old.Path), err)
		}
		slog.Info("backup pruned", "path", old.Path)
	}
	return nil
}

// Restore snapshots the current state, then extracts archive over Dir. The
// safety snapshot is returned so callers can mention it.
func (m *Manager) Restore(archive model.BackupArchive) (model.BackupArchive, error) {
	f, err := os.Open(archive.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.BackupArchive{}, apperr.Newf(apperr.KindMissing, "backup %s not found", filepath.Base(archive.Path))
		}
		return model.BackupArchive{}, apperr.Wrap(err, apperr.KindFilesystem, "open backup archive")
	}
	defer f.Close()

	var safety model.BackupArchive
	if _, statErr := os.Stat(m.Dir); statErr == nil {
		safety, err = m.Backup()
		if err != nil {
			return model.BackupArchive{}, err
		}
	}
	if err := m.archiver().Extract(f, m.Dir); err != nil {
		return safety, apperr.Wrap(err, apperr.KindFilesystem, "restore backup archive")
	}
	slog.Info("backup restored", "path", archive.Path, "safety", safety.Path)
	return safety, nil
}

func (m *Manager) excluded() func(rel string) bool {
	rel, err := filepath.Rel(m.Dir, m.BackupDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)
	return func(p string) bool {
		return p == rel || strings.HasPrefix(p, rel+"/")
	}
}

func (m *Manager) archiver() Archiver {
	if m.Archiver == nil {
		return TarGz{}
	}
	return m.Archiver
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
