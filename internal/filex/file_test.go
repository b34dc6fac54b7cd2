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

func TestEnsureSubdDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureSubdDir("preupload")
	require.NoError(t, err)

	want := filepath.Join(tmp, "preupload")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureSubdDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	first, err := EnsureSubdDir("preupload")
	require.NoError(t, err)

	second, err := EnsureSubdDir("preupload")
	require.NoError(t, err)

	require.Equal(t, first, second)
	fi, err := os.Stat(second)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureSubdDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	require.NoError(t, os.WriteFile("preupload", []byte("x"), 0o660))

	_, err := EnsureSubdDir("preupload")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestEnsureDir_CreatesNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, dir, got)
	require.True(t, Exists(dir))
}

func TestAtomicWriteFile_WritesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.enc")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(b))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestAtomicWriteFile_MissingDir(t *testing.T) {
	err := AtomicWriteFile(filepath.Join(t.TempDir(), "nope", "x"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.NoError(t, RemoveIfExists(path))
	require.False(t, Exists(path))
	require.NoError(t, RemoveIfExists(path))
}
