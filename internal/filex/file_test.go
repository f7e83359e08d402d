package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDir("backups")
	require.NoError(t, err)

	want := filepath.Join(tmp, "backups")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_AbsolutePathAndIdempotent(t *testing.T) {
	want := filepath.Join(t.TempDir(), "a", "b")

	first, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, first)

	second, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	require.NoError(t, os.WriteFile("backups", []byte("x"), 0o660))

	_, err := EnsureDir("backups")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestEnsureParentDir(t *testing.T) {
	tmp := t.TempDir()

	require.NoError(t, EnsureParentDir(filepath.Join(tmp, "data", "regifarm.db")))
	fi, err := os.Stat(filepath.Join(tmp, "data"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	require.NoError(t, EnsureParentDir(":memory:"))
	require.NoError(t, EnsureParentDir("local.db"))
}
