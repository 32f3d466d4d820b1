package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreSetGet(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("github.owner", "compass-labs"))
	require.NoError(t, store.Set(KeyWorkers, 4))
	require.NoError(t, store.Set("pipeline.dry_run", true))

	assert.Equal(t, "compass-labs", store.GetString("github.owner"))
	assert.Equal(t, 4, store.GetInt(KeyWorkers))
	assert.True(t, store.GetBool("pipeline.dry_run"))
}

func TestConfigStoreMissingKeys(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "", store.GetString("nope"))
	assert.Equal(t, 0, store.GetInt("nope"))
	assert.False(t, store.GetBool("nope"))

	_, ok := store.Get("nope")
	assert.False(t, ok)
}

func TestConfigStoreWrongTypes(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("key", "string-value"))

	assert.Equal(t, 0, store.GetInt("key"))
	assert.False(t, store.GetBool("key"))
}

func TestConfigStorePersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(KeyConfidenceThreshold, 60))
	require.NoError(t, store.Set(KeyGitHubRepo, "roadmap"))

	// A fresh store against the same directory sees the saved values.
	reopened, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, 60, reopened.GetInt(KeyConfidenceThreshold))
	assert.Equal(t, "roadmap", reopened.GetString(KeyGitHubRepo))
}

func TestConfigStoreFlattensNestedTOML(t *testing.T) {
	dir := t.TempDir()

	content := []byte("[github]\nowner = \"compass-labs\"\nrepo = \"roadmap\"\n\n[pipeline]\nworkers = 2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), content, 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "compass-labs", store.GetString("github.owner"))
	assert.Equal(t, "roadmap", store.GetString("github.repo"))
	assert.Equal(t, 2, store.GetInt("pipeline.workers"))
}

func TestConfigStoreFilePermissions(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyGitHubToken, "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
