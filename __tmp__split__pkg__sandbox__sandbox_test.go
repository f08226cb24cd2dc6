package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWriteBlocked_DataSubtree(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "data"), 0o755))

	assert.True(t, IsWriteBlocked(filepath.Join(dataDir, "data", "omega.db"), dataDir))
	assert.True(t, IsWriteBlocked(filepath.Join(dataDir, "data"), dataDir))
}

func TestIsWriteBlocked_ConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	assert.True(t, IsWriteBlocked(filepath.Join(dataDir, "config.toml"), dataDir))
}

func TestIsWriteBlocked_RelativePathFailsClosed(t *testing.T) {
	assert.True(t, IsWriteBlocked("relative/path.txt", t.TempDir()))
}

func TestIsWriteBlocked_AllowsOutsideProtectedAreas(t *testing.T) {
	dataDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "scratch.txt")
	assert.False(t, IsWriteBlocked(outside, dataDir))
}

func TestIsReadBlocked_ExtraConfigPath(t *testing.T) {
	dataDir := t.TempDir()
	other := t.TempDir()
	configPath := filepath.Join(other, "system.toml")
	assert.True(t, IsReadBlocked(configPath, dataDir, configPath))
	assert.False(t, IsReadBlocked(configPath, dataDir, ""))
}

func TestSystemDirBlockList(t *testing.T) {
	dataDir := t.TempDir()
	assert.True(t, IsWriteBlocked("/etc/passwd", dataDir))
	assert.True(t, IsWriteBlocked("/bin/sh", dataDir))
}

// underComponent must match on full path components, never a raw string
// prefix: "/binaries/test" must never be treated as under "/bin".
func TestUnderComponent_NoPrefixFalsePositive(t *testing.T) {
	assert.False(t, underComponent("/binaries/test", "/bin"))
	assert.True(t, underComponent("/bin/sh", "/bin"))
	assert.True(t, underComponent("/bin", "/bin"))
}

func TestIsWriteBlocked_NoStringPrefixFalsePositiveAgainstSystemDirs(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "binaries", "test"), 0o755))
	path := filepath.Join(dataDir, "binaries", "test", "file.txt")
	assert.False(t, IsWriteBlocked(path, dataDir))
}


