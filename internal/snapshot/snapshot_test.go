package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/snapshot"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestCreateAndRestoreSnapshotRoundTrips(t *testing.T) {
	workdir := t.TempDir()
	writeFile(t, workdir, "a.txt", "original")

	store := snapshot.New(t.TempDir())
	manifest, err := store.CreateSnapshot("sess-1", "latest", []string{"a.txt"}, workdir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, manifest.Paths)

	writeFile(t, workdir, "a.txt", "mutated")
	require.NoError(t, store.RestoreSnapshot("sess-1", "latest", workdir))

	data, err := os.ReadFile(filepath.Join(workdir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestCreateSnapshotSkipsMissingPaths(t *testing.T) {
	workdir := t.TempDir()
	store := snapshot.New(t.TempDir())
	manifest, err := store.CreateSnapshot("sess-1", "latest", []string{"ghost.txt"}, workdir)
	require.NoError(t, err)
	assert.Empty(t, manifest.Paths)
}

func TestRestoreFilesReportsMissing(t *testing.T) {
	workdir := t.TempDir()
	writeFile(t, workdir, "a.txt", "original")
	store := snapshot.New(t.TempDir())
	_, err := store.CreateSnapshot("sess-1", "latest", []string{"a.txt"}, workdir)
	require.NoError(t, err)

	restored, missing, err := store.RestoreFiles("sess-1", "latest", workdir, []string{"a.txt", "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, restored)
	assert.Equal(t, []string{"b.txt"}, missing)
}

func TestPruneRemovesAllLabels(t *testing.T) {
	workdir := t.TempDir()
	writeFile(t, workdir, "a.txt", "x")
	root := t.TempDir()
	store := snapshot.New(root)
	_, err := store.CreateSnapshot("sess-1", "latest", []string{"a.txt"}, workdir)
	require.NoError(t, err)

	require.NoError(t, store.Prune("sess-1"))

	_, err = os.Stat(filepath.Join(root, "sess-1"))
	assert.True(t, os.IsNotExist(err))
}
