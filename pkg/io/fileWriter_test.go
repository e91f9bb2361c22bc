package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeDirForFile(t *testing.T) {
	d := t.TempDir()
	require.NoError(t, MakeDirForFile(filepath.Join(d, "a", "b", "file.log"), "test"))
	fi, err := os.Stat(filepath.Join(d, "a", "b"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	f := filepath.Join(d, "file")
	require.NoError(t, os.WriteFile(f, []byte{1}, 0644))
	require.Error(t, MakeDirForFile(filepath.Join(f, "file.log"), "test"))
}
