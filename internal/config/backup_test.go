package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_NoFile(t *testing.T) {
	path, err := Backup(filepath.Join(t.TempDir(), "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackup_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "chunk:\n  size: 300\n")

	backupPath, err := Backup(path)

	require.NoError(t, err)
	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "chunk:\n  size: 300\n", string(data))
	assert.Contains(t, filepath.Base(backupPath), "config.yaml.bak.")
}

func TestBackup_KeepsNewest(t *testing.T) {
	// Given: more backups than MaxBackups
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "version: 1\n")

	var created []string
	for range MaxBackups + 2 {
		p, err := Backup(path)
		require.NoError(t, err)
		created = append(created, p)
	}

	// Then: only the newest MaxBackups remain, newest first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, created[len(created)-1], backups[0])
	for _, old := range created[:2] {
		assert.NoFileExists(t, old)
	}
}

func TestListBackups_MissingDirectory(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope", "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, backups)
}
