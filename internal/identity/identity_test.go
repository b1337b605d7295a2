package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyByHeapBytesBoundary(t *testing.T) {
	const gib = 1024 * 1024 * 1024
	assert.Equal(t, ServerTypeMini, classifyByHeapBytes(8*gib), "exactly 8 GiB must be MINI")
	assert.Equal(t, ServerTypeMega, classifyByHeapBytes(8*gib+1), "anything above 8 GiB must be MEGA")
}

func TestCapsByServerType(t *testing.T) {
	soft, hard := Caps(ServerTypeMini)
	assert.Equal(t, 10, soft)
	assert.Equal(t, 15, hard)

	soft, hard = Caps(ServerTypeMega)
	assert.Equal(t, 60, soft)
	assert.Equal(t, 70, hard)
}

func TestLoadRoleDefaultsToGameWhenMissing(t *testing.T) {
	assert.Equal(t, "game", LoadRole(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestLoadRoleTrimsFileContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ENVIRONMENT")
	require.NoError(t, os.WriteFile(path, []byte("  lobby\n"), 0o644))
	assert.Equal(t, "lobby", LoadRole(path))
}

func TestLoadRoleDefaultsToGameWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ENVIRONMENT")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))
	assert.Equal(t, "game", LoadRole(path))
}

func TestMaxCapacityReturnsHardCap(t *testing.T) {
	id := Identity{SoftCap: 10, HardCap: 15}
	assert.Equal(t, 15, id.MaxCapacity())
}
