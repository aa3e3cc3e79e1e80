package backup_test

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/sshkit/internal/apperr"
	"github.com/treykane/sshkit/internal/backup"
	"github.com/treykane/sshkit/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T) (*backup.Manager, *clock) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".ssh")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id_ed25519"), []byte("private"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id_ed25519.pub"), []byte("public"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte("Host a\n  HostName a.example\n"), 0o600))

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)}
	m := backup.NewManager(dir, filepath.Join(dir, "backups"), 5)
	m.Now = c.now
	return m, c
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 5, 7, 0, time.Local)
	name := backup.ArchiveName(at)
	assert.Equal(t, "ssh_backup_20260301_090507.tar.gz", name)
	parsed, ok := backup.ParseArchiveName(name)
	require.True(t, ok)
	assert.True(t, parsed.Equal(at))

	_, ok = backup.ParseArchiveName("config_20260301_090507.bak")
	assert.False(t, ok)
}

func TestBackupRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	archive, err := m.Backup()
	require.NoError(t, err)
	assert.FileExists(t, archive.Path)

	// Damage the live directory, then restore.
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir, "config"), []byte("broken"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(m.Dir, "id_ed25519")))

	_, err = m.Restore(archive)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(m.Dir, "config"))
	require.NoError(t, err)
	assert.Equal(t, "Host a\n  HostName a.example\n", string(data))

	st, err := os.Stat(filepath.Join(m.Dir, "id_ed25519"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	st, err = os.Stat(filepath.Join(m.Dir, "config"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestRestoreOverReadOnlyKey(t *testing.T) {
	m, _ := newManager(t)
	pem := filepath.Join(m.Dir, "aws.pem")
	require.NoError(t, os.WriteFile(pem, []byte("original"), 0o400))
	archive, err := m.Backup()
	require.NoError(t, err)

	require.NoError(t, os.Chmod(pem, 0o600))
	require.NoError(t, os.WriteFile(pem, []byte("changed"), 0o600))
	require.NoError(t, os.Chmod(pem, 0o400))

	_, err = m.Restore(archive)
	require.NoError(t, err)

	data, err := os.ReadFile(pem)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	st, err := os.Stat(pem)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), st.Mode().Perm())

	entries, err := os.ReadDir(m.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".restore-", "temp files must not be left behind")
	}
}

func TestBackupExcludesBackupDir(t *testing.T) {
	m, c := newManager(t)
	_, err := m.Backup()
	require.NoError(t, err)
	c.t = c.t.Add(time.Minute)
	second, err := m.Backup()
	require.NoError(t, err)

	names := archiveEntries(t, second.Path)
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "id_ed25519")
	for _, n := range names {
		assert.NotContains(t, n, "backups")
	}
}

func TestBackupRetainsFive(t *testing.T) {
	m, c := newManager(t)
	for i := 0; i < 7; i++ {
		_, err := m.Backup()
		require.NoError(t, err)
		c.t = c.t.Add(time.Hour)
	}
	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.True(t, list[0].CapturedAt.After(list[4].CapturedAt), "list must be newest first")
	assert.Equal(t, time.Date(2026, 3, 1, 18, 0, 0, 0, time.Local), list[0].CapturedAt)
}

func TestBackupSameSecondBumpsTimestamp(t *testing.T) {
	m, _ := newManager(t)
	first, err := m.Backup()
	require.NoError(t, err)
	second, err := m.Backup()
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, time.Second, second.CapturedAt.Sub(first.CapturedAt))
}

func TestRestoreTakesSafetyBackup(t *testing.T) {
	m, c := newManager(t)
	archive, err := m.Backup()
	require.NoError(t, err)
	c.t = c.t.Add(time.Hour)

	safety, err := m.Restore(archive)
	require.NoError(t, err)
	assert.FileExists(t, safety.Path)
	list, err := m.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRestoreMissingArchive(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Restore(model.BackupArchive{Path: filepath.Join(m.BackupDir, "ssh_backup_20000101_000000.tar.gz")})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindMissing))
}

func TestExtractRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape", Mode: 0o600, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := filepath.Join(t.TempDir(), "dest")
	err = backup.TarGz{}.Extract(&buf, dest)
	require.ErrorIs(t, err, backup.ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape"))
}

func archiveEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	return names
}
