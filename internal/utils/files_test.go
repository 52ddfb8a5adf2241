package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRootWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, utils.ProjectFileName), []byte("{}"), 0o644))
	nested := filepath.Join(root, "data", "raw")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := utils.FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	file := filepath.Join(nested, "results.xlsx")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	got, err = utils.FindProjectRoot(file)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFindProjectRootMissing(t *testing.T) {
	_, err := utils.FindProjectRoot(t.TempDir())
	assert.Error(t, err)
}

func TestSafeWriteFileReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, utils.SafeWriteFile(path, []byte("one"), 0o600))
	require.NoError(t, utils.SafeWriteFile(path, []byte("two"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSafeWriteFileMissingDir(t *testing.T) {
	err := utils.SafeWriteFile(filepath.Join(t.TempDir(), "nope", "x.json"), []byte("{}"), 0o644)
	assert.Error(t, err)
}

func TestPrettyJSON(t *testing.T) {
	b, err := utils.PrettyJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(b))
}
