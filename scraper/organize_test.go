package scraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchivePath(t *testing.T) {
	now := time.Date(2025, time.May, 4, 9, 5, 7, 0, time.Local)
	got := ArchivePath("/data/acme/power", "ECOTRADE", ".zip", now)
	assert.Equal(t, filepath.Join("/data/acme/power", "2025", "maggio", "4", "20250504_090507_ECOTRADE.zip"), got)
}

func TestOrganize_MovesArtifact(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "scaricati.zip")
	require.NoError(t, os.WriteFile(src, []byte("PK"), 0644))
	now := time.Date(2025, time.December, 31, 23, 59, 1, 0, time.Local)

	dest, err := Organize(src, root, "ECOTRADE", now)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "2025", "dicembre", "31", "20251231_235901_ECOTRADE.zip"), dest)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, src)
}

func TestOrganize_LeavesTextReports(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "flows_log_Gas_20250101_000000.txt")
	require.NoError(t, os.WriteFile(logPath, []byte("log"), 0644))

	dest, err := Organize(logPath, root, "ECOTRADE", time.Now())
	require.NoError(t, err)
	assert.Equal(t, logPath, dest)
	assert.FileExists(t, logPath)
}

func TestOrganize_MissingFile(t *testing.T) {
	_, err := Organize(filepath.Join(t.TempDir(), "gone.zip"), t.TempDir(), "ECOTRADE", time.Now())
	assert.Error(t, err)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.zip")
	dst := filepath.Join(dir, "b.zip")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, dst+".part")
}
